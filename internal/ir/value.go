package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind is the dynamic type of a Value.
type Kind uint8

const (
	KindNumber Kind = iota
	KindString
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindRef:
		return "reference"
	default:
		return "unknown"
	}
}

// Value is a number, a string, or a reference to anything else (JSON
// objects and arrays, booleans, null, capability results). The zero value
// is the number 0.
type Value struct {
	kind Kind
	num  float64
	str  string
	ref  any
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Ref(v any) Value { return Value{kind: KindRef, ref: v} }

// FromAny wraps a Go value, mapping numeric types to Number and strings to
// String. A Value is returned unchanged.
func FromAny(v any) Value {
	switch val := v.(type) {
	case Value:
		return val
	case float64:
		return Number(val)
	case float32:
		return Number(float64(val))
	case int:
		return Number(float64(val))
	case int64:
		return Number(float64(val))
	case int32:
		return Number(float64(val))
	case uint:
		return Number(float64(val))
	case uint64:
		return Number(float64(val))
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return Number(f)
		}
		return String(val.String())
	case string:
		return String(val)
	default:
		return Ref(val)
	}
}

func (v Value) Kind() Kind { return v.kind }

// Num returns the number held by v.
func (v Value) Num() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Text returns the string held by v.
func (v Value) Text() (string, bool) {
	return v.str, v.kind == KindString
}

// Any returns the plain Go value: float64, string, or the referenced value.
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	default:
		return v.ref
	}
}

// Truthy reports whether v counts as true for JZ: non-zero numbers,
// non-empty strings, and references other than nil and false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	default:
		switch r := v.ref.(type) {
		case nil:
			return false
		case bool:
			return r
		default:
			return true
		}
	}
}

// Literal renders v as a JSON literal, the form PUSH operands take in text.
func (v Value) Literal() (string, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return "", fmt.Errorf("encode literal: %v has no JSON form", v.num)
		}
		return strconv.FormatFloat(v.num, 'g', -1, 64), nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v.Any()); err != nil {
			return "", fmt.Errorf("encode literal: %w", err)
		}
		return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
	}
}

// ParseLiteral decodes a JSON literal into a Value.
func ParseLiteral(s string) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("invalid literal %q: %w", s, err)
	}
	if dec.More() {
		return Value{}, fmt.Errorf("invalid literal %q: trailing data", s)
	}
	return FromAny(raw), nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return v.str
	default:
		if s, ok := v.ref.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprint(v.ref)
	}
}
