// Package glbuild compiles a [glgraph.NodeGraph] into a GLSL fragment program.
//
// Compilation is a pure function of the graph snapshot, the node catalog and the
// audio setup: it performs no GPU calls and holds no state between calls, so the
// same [Compiler] can run on the caller's goroutine or on a background worker.
package glbuild

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const VersionStr = "#version 330 core\n"

// Global uniforms declared by every compiled program.
const (
	UniformTime         = "uTime"
	UniformResolution   = "uResolution"
	UniformTimelineTime = "uTimelineTime"
)

// ShaderFunction is a GLSL helper function definition needed by node code.
type ShaderFunction struct {
	// Name is the function name parsed from the definition.
	Name   string
	Source []byte
}

// MakeShaderFunction parses the name of the GLSL function definition shaderDef.
func MakeShaderFunction(shaderDef []byte) (sf ShaderFunction, err error) {
	shaderDef = bytes.TrimSpace(shaderDef)
	fnNameEnd := bytes.IndexByte(shaderDef, '(')
	fnNameStart := bytes.IndexByte(shaderDef, ' ')
	if fnNameEnd < 0 || fnNameStart < 0 || fnNameStart > fnNameEnd {
		return ShaderFunction{}, errors.New("unable to parse function name")
	}
	name := bytes.TrimSpace(shaderDef[fnNameStart:fnNameEnd])
	if len(name) == 0 {
		return ShaderFunction{}, errors.New("empty function name")
	}
	return ShaderFunction{Name: string(name), Source: shaderDef}, nil
}

// functionSet accumulates helper functions, writing each name once.
type functionSet struct {
	// names maps function name hashes to body hashes for checking duplicates.
	names map[uint64]uint64
	buf   []byte
}

func (fs *functionSet) reset() {
	if fs.names == nil {
		fs.names = make(map[uint64]uint64)
	}
	clear(fs.names)
	fs.buf = fs.buf[:0]
}

// add appends the function definition unless an identical one was added.
// A distinct function with the same name is an error.
func (fs *functionSet) add(def string) error {
	sf, err := MakeShaderFunction([]byte(def))
	if err != nil {
		return err
	}
	nameHash := hash([]byte(sf.Name), 0)
	bodyHash := hash(sf.Source, nameHash) // Body hash mixes name as well.
	gotBodyHash, nameConflict := fs.names[nameHash]
	if nameConflict {
		if gotBodyHash == bodyHash {
			return nil // Already written and identical.
		}
		return fmt.Errorf("duplicate helper function name %q with distinct bodies", sf.Name)
	}
	fs.names[nameHash] = bodyHash
	fs.buf = append(fs.buf, sf.Source...)
	fs.buf = append(fs.buf, "\n\n"...)
	return nil
}

const decimalDigits = 9

// AppendFloat appends v as a GLSL float literal. Trailing zeros are trimmed
// but at least one decimal digit is kept so the literal is never parsed as an int.
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if decimal != '.' && idx >= 0 {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	// Finally trim zeroes.
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start+1 && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

func AppendFloats(b []byte, sep, neg, decimal byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, neg, decimal, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}

// AppendVec4 appends a vec4 constructor literal.
func AppendVec4(b []byte, v [4]float32) []byte {
	b = append(b, "vec4("...)
	b = AppendFloats(b, ',', '-', '.', v[:]...)
	return append(b, ')')
}

const maxLineLim = 500

// AppendFloatSliceDecl appends a constant float array declaration.
//
//	const float name[N]=float[N](v0,v1,...);
func AppendFloatSliceDecl(b []byte, floatSliceVarname string, vecs []float32) []byte {
	b = append(b, "const "...)
	return AppendGenericSliceDecl(b, "float", floatSliceVarname, len(vecs), func(b []byte, i int) []byte {
		return AppendFloat(b, '-', '.', vecs[i])
	})
}

func AppendGenericSliceDecl(b []byte, typename, varname string, nelem int, appendElement func(b []byte, i int) []byte) []byte {
	lineStart := len(b)
	b = appendStartSliceDecl(b, typename, varname, nelem)
	for i := 0; i < nelem; i++ {
		last := i == nelem-1
		b = appendElement(b, i)
		if !last {
			b = append(b, ',')
			lineLen := len(b) - lineStart
			if lineLen > maxLineLim {
				b = append(b, '\n') // Break up line for VERY long arrays.
				lineStart = len(b)
			}
		}
	}
	b = append(b, ");\n"...)
	return b
}

func appendStartSliceDecl(b []byte, typeName, varName string, length int) []byte {
	l := int64(length)
	typeStart := len(b)
	b = append(b, typeName...)
	b = append(b, "["...)
	b = strconv.AppendInt(b, l, 10)
	b = append(b, ']')
	typeEnd := len(b)
	b = append(b, ' ')
	b = append(b, varName...)
	b = append(b, '=')
	b = append(b, b[typeStart:typeEnd]...) // Reuse typename appended earlier.
	b = append(b, '(')
	return b
}

// zeroExpr returns the zero literal of a GLSL type.
func zeroExpr(glslType string) string {
	switch glslType {
	case "int":
		return "0"
	case "vec2":
		return "vec2(0.0)"
	case "vec3":
		return "vec3(0.0)"
	case "vec4":
		return "vec4(0.0)"
	}
	return "0.0"
}

func typeWidth(glslType string) int {
	switch glslType {
	case "float", "int":
		return 1
	case "vec2":
		return 2
	case "vec3":
		return 3
	case "vec4":
		return 4
	}
	return 0
}

// convertExpr converts expr of GLSL type from to type to. Scalars are
// splatted, wider vectors are swizzled down and narrower vectors are
// padded with zeros and an alpha of one.
func convertExpr(expr, from, to string) string {
	if from == to || from == "" || to == "" {
		return expr
	}
	if to == "int" {
		if from != "float" {
			expr += ".x"
		}
		return "int(" + expr + ")"
	}
	if from == "int" {
		expr = "float(" + expr + ")"
		from = "float"
		if to == "float" {
			return expr
		}
	}
	fw, tw := typeWidth(from), typeWidth(to)
	switch {
	case fw == 0 || tw == 0:
		return expr
	case to == "float":
		return expr + ".x"
	case fw == 1:
		return to + "(" + expr + ")"
	case fw > tw:
		return expr + ".xyzw"[:tw+1]
	case to == "vec4" && fw == 3:
		return "vec4(" + expr + ",1.0)"
	case to == "vec4" && fw == 2:
		return "vec4(" + expr + ",0.0,1.0)"
	default: // vec2 -> vec3
		return "vec3(" + expr + ",0.0)"
	}
}

// indent appends src to b prefixing every non-empty line with prefix.
func indent(b []byte, prefix, src string) []byte {
	for _, line := range strings.Split(src, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b = append(b, prefix...)
		b = append(b, strings.TrimRight(line, " \t\r")...)
		b = append(b, '\n')
	}
	return b
}

func hash(b []byte, in uint64) uint64 {
	x := in
	for len(b) >= 8 {
		x ^= binary.LittleEndian.Uint64(b)
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		b = b[8:]
	}
	if len(b) > 0 {
		var buf [8]byte
		copy(buf[:], b)
		x ^= binary.LittleEndian.Uint64(buf[:])
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return x
}

// hasher accumulates a hash over a sequence of fields. Each field is
// terminated so that ("ab","c") and ("a","bc") hash differently.
type hasher struct {
	h   uint64
	buf []byte
}

func (hs *hasher) str(s string) {
	hs.buf = append(hs.buf[:0], s...)
	hs.buf = append(hs.buf, 0)
	hs.h = hash(hs.buf, hs.h)
}

func (hs *hasher) u64(v uint64) {
	hs.buf = binary.LittleEndian.AppendUint64(hs.buf[:0], v)
	hs.h = hash(hs.buf, hs.h)
}
