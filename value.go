package glgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ValueKind identifies how a [Value] is stored.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindFloat
	KindList
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFloat:
		return "float"
	case KindList:
		return "list"
	case KindString:
		return "string"
	}
	return "ValueKind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a node parameter value. It is either a scalar, a list of
// floats (a 4-tuple is a list of length 4) or a string. How a value is
// interpreted is decided by the parameter's declared [ParamType].
type Value struct {
	kind ValueKind
	f    float32
	list []float32
	s    string
}

// Float returns a scalar value.
func Float(v float32) Value { return Value{kind: KindFloat, f: v} }

// Vec4 returns a 4-tuple value.
func Vec4(x, y, z, w float32) Value {
	return Value{kind: KindList, list: []float32{x, y, z, w}}
}

// Array returns a numeric array value. The argument is copied.
func Array(v ...float32) Value {
	return Value{kind: KindList, list: append([]float32{}, v...)}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsZero() bool    { return v.kind == KindNone }

// IsVec4 reports whether v is a list of exactly 4 elements.
func (v Value) IsVec4() bool { return v.kind == KindList && len(v.list) == 4 }

// Float32 returns the scalar value. Lists return their first element, so
// that a 1-element array behaves like a scalar.
func (v Value) Float32() float32 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindList:
		if len(v.list) > 0 {
			return v.list[0]
		}
	case KindString:
		f, _ := strconv.ParseFloat(v.s, 32)
		return float32(f)
	}
	return 0
}

// Vec4 returns the value as a 4-tuple. Scalars are splatted and short
// lists are zero padded.
func (v Value) Vec4() (vec [4]float32) {
	switch v.kind {
	case KindFloat:
		return [4]float32{v.f, v.f, v.f, v.f}
	case KindList:
		copy(vec[:], v.list)
	}
	return vec
}

// Floats returns the list elements. The returned slice must not be modified.
func (v Value) Floats() []float32 {
	if v.kind == KindFloat {
		return []float32{v.f}
	}
	return v.list
}

// Str returns the string value, or a formatted representation for numeric values.
func (v Value) Str() string {
	if v.kind == KindString {
		return v.s
	}
	return v.GoString()
}

// Equal reports whether a and b hold identical values. NaN compares equal to NaN
// so that diffing graphs holding NaN parameters is stable.
func (a Value) Equal(b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindFloat:
		return feq(a.f, b.f)
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !feq(a.list[i], b.list[i]) {
				return false
			}
		}
	case KindString:
		return a.s == b.s
	}
	return true
}

func feq(a, b float32) bool {
	return a == b || (a != a && b != b)
}

func (v Value) GoString() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	case KindList:
		return fmt.Sprint(v.list)
	case KindString:
		return strconv.Quote(v.s)
	}
	return "<none>"
}

// MarshalJSON encodes scalars as numbers, lists as arrays and strings as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		return appendJSONFloat(nil, v.f)
	case KindList:
		b := []byte{'['}
		var err error
		for i, f := range v.list {
			if i > 0 {
				b = append(b, ',')
			}
			b, err = appendJSONFloat(b, f)
			if err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	case KindString:
		return json.Marshal(v.s)
	}
	return []byte("null"), nil
}

func appendJSONFloat(b []byte, f float32) ([]byte, error) {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return b, errors.New("cannot encode non-finite parameter value")
	}
	return strconv.AppendFloat(b, float64(f), 'g', -1, 32), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Value{}
	case float64:
		*v = Float(float32(x))
	case bool:
		// Editors store toggles as booleans; treat them as 0/1 scalars.
		*v = Float(float32(b2i(x)))
	case string:
		*v = String(x)
	case []any:
		list := make([]float32, len(x))
		for i, e := range x {
			f, ok := e.(float64)
			if !ok {
				return fmt.Errorf("parameter array element %d: expected number, got %T", i, e)
			}
			list[i] = float32(f)
		}
		*v = Value{kind: KindList, list: list}
	default:
		return fmt.Errorf("unsupported parameter value %T", raw)
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
