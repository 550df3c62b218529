package glbuild

import (
	"errors"
	"fmt"
	"strings"
)

// SlotKind is the kind of a typed hole in a code template.
type SlotKind uint8

const (
	SlotText   SlotKind = iota // Literal code.
	SlotParam                  // $param.<name>
	SlotInput                  // $input.<port>
	SlotOutput                 // $output.<port>
)

var slotPrefixes = [...]string{
	SlotParam:  "$param.",
	SlotInput:  "$input.",
	SlotOutput: "$output.",
}

func (k SlotKind) String() string {
	if k == SlotText || int(k) >= len(slotPrefixes) {
		return "text"
	}
	return slotPrefixes[k][1 : len(slotPrefixes[k])-1]
}

// Segment is a piece of a parsed template: literal text or a named slot.
type Segment struct {
	Kind SlotKind
	// Text is the literal code for SlotText and the slot name otherwise.
	Text string
}

// Fragment is a code template parsed into literal text and typed slots.
// Filling a fragment either resolves every slot or reports which did not
// resolve, so a placeholder can never leak into emitted code.
type Fragment []Segment

// ParseFragment splits template into literal text and slots.
func ParseFragment(template string) Fragment {
	var f Fragment
	rest := template
	for len(rest) > 0 {
		i := strings.IndexByte(rest, '$')
		if i < 0 {
			f = f.appendText(rest)
			break
		}
		f = f.appendText(rest[:i])
		rest = rest[i:]
		kind, name := SlotText, ""
		for k := SlotParam; k <= SlotOutput; k++ {
			if !strings.HasPrefix(rest, slotPrefixes[k]) {
				continue
			}
			after := rest[len(slotPrefixes[k]):]
			end := 0
			for end < len(after) && (isAlnum(after[end]) || after[end] == '_') {
				end++
			}
			if end > 0 {
				kind, name = k, after[:end]
			}
			break
		}
		if kind == SlotText {
			f = f.appendText("$")
			rest = rest[1:]
			continue
		}
		f = append(f, Segment{Kind: kind, Text: name})
		rest = rest[len(slotPrefixes[kind])+len(name):]
	}
	return f
}

func (f Fragment) appendText(s string) Fragment {
	if s == "" {
		return f
	}
	if n := len(f); n > 0 && f[n-1].Kind == SlotText {
		f[n-1].Text += s
		return f
	}
	return append(f, Segment{Kind: SlotText, Text: s})
}

// Slots calls fn for every slot in f.
func (f Fragment) Slots(fn func(kind SlotKind, name string)) {
	for _, s := range f {
		if s.Kind != SlotText {
			fn(s.Kind, s.Text)
		}
	}
}

// SlotFiller resolves a slot to a GLSL expression. On error, fallback is
// substituted so the emitted code stays free of placeholders.
type SlotFiller func(kind SlotKind, name string) (expr, fallback string, err error)

// Append fills f into dst. Errors of all unresolved slots are joined.
func (f Fragment) Append(dst []byte, fill SlotFiller) ([]byte, error) {
	var errs []error
	for _, s := range f {
		if s.Kind == SlotText {
			dst = append(dst, s.Text...)
			continue
		}
		expr, fallback, err := fill(s.Kind, s.Text)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", s.Kind, s.Text, err))
			expr = fallback
		}
		dst = append(dst, expr...)
	}
	return dst, errors.Join(errs...)
}

// HasPlaceholder reports whether code contains a placeholder token.
func HasPlaceholder(code string) bool {
	for _, p := range slotPrefixes[SlotParam:] {
		if strings.Contains(code, p) {
			return true
		}
	}
	return false
}
