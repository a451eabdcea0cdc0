// Package jsonvalue is a small tagged-union model of JSON documents with
// ordered object keys and a bounded recursive visitor. Extraction code uses
// it instead of map[string]any so that every access is explicit about kind.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind is the variant held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// maxNesting bounds parse recursion on hostile input.
const maxNesting = 512

var (
	ErrTooDeep       = errors.New("jsonvalue: nesting too deep")
	ErrTrailingData  = errors.New("jsonvalue: trailing data after value")
	errUnexpectedTok = errors.New("jsonvalue: unexpected token")
)

// Value is one JSON value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	keys []string
	obj  map[string]Value
}

// Constructors.

func NullValue() Value { return Value{} }
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }
func StringValue(s string) Value { return Value{kind: String, str: s} }
func ArrayValue(vs ...Value) Value { return Value{kind: Array, arr: vs} }

// NumberValue wraps a JSON number literal.
func NumberValue(n json.Number) Value { return Value{kind: Number, num: n} }

// FloatValue builds a number from a float64.
func FloatValue(f float64) Value {
	return Value{kind: Number, num: json.Number(strconv.FormatFloat(f, 'f', -1, 64))}
}

// IntValue builds a number from an int.
func IntValue(i int) Value {
	return Value{kind: Number, num: json.Number(strconv.Itoa(i))}
}

// ObjectBuilder assembles an object while preserving insertion order.
type ObjectBuilder struct {
	v Value
}

// NewObject starts an empty object.
func NewObject() *ObjectBuilder {
	return &ObjectBuilder{v: Value{kind: Object, obj: map[string]Value{}}}
}

// Set adds or replaces key. Replacing keeps the original position.
func (b *ObjectBuilder) Set(key string, val Value) *ObjectBuilder {
	if _, ok := b.v.obj[key]; !ok {
		b.v.keys = append(b.v.keys, key)
	}
	b.v.obj[key] = val
	return b
}

// SetString is Set with a string value; empty strings are skipped.
func (b *ObjectBuilder) SetString(key, s string) *ObjectBuilder {
	if s == "" {
		return b
	}
	return b.Set(key, StringValue(s))
}

// Value returns the built object.
func (b *ObjectBuilder) Value() Value { return b.v }

// Accessors.

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }
func (v Value) IsObject() bool { return v.kind == Object }
func (v Value) IsArray() bool { return v.kind == Array }

// Bool returns the boolean and whether v is a bool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == Bool }

// Str returns the string and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == String }

// Number returns the literal and whether v is a number.
func (v Value) Number() (json.Number, bool) { return v.num, v.kind == Number }

// IsInteger reports whether v is a number literal without fraction or
// exponent.
func (v Value) IsInteger() bool {
	if v.kind != Number {
		return false
	}
	return !strings.ContainsAny(string(v.num), ".eE")
}

// Float returns v as a float64. Numeric strings are accepted, with
// thousands separators and a leading currency symbol stripped.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case Number:
		f, err := v.num.Float64()
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case String:
		s := strings.TrimSpace(v.str)
		s = strings.TrimLeft(s, "₹$€£ ")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

// Int returns v truncated to an int.
func (v Value) Int() (int, bool) {
	f, ok := v.Float()
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// Text renders a scalar as a string: strings as-is, numbers as their
// literal, bools as "true"/"false". Containers and null yield "".
func (v Value) Text() string {
	switch v.kind {
	case String:
		return v.str
	case Number:
		return string(v.num)
	case Bool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Len is the number of elements or keys.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.keys)
	default:
		return 0
	}
}

// Elements returns the array elements. Callers must not modify the slice.
func (v Value) Elements() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Keys returns the object keys in document order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	return v.keys
}

// Get returns the member named key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	m, ok := v.obj[key]
	return m, ok
}

// Has reports whether key is present and not null.
func (v Value) Has(key string) bool {
	m, ok := v.Get(key)
	return ok && !m.IsNull()
}

// First returns the first of keys that is present and not null.
func (v Value) First(keys ...string) (Value, string, bool) {
	for _, k := range keys {
		if m, ok := v.Get(k); ok && !m.IsNull() {
			return m, k, true
		}
	}
	return Value{}, "", false
}

// FirstText returns the first non-empty scalar text among keys.
func (v Value) FirstText(keys ...string) string {
	for _, k := range keys {
		if m, ok := v.Get(k); ok {
			if s := strings.TrimSpace(m.Text()); s != "" {
				return s
			}
		}
	}
	return ""
}

// Path follows a chain of object keys.
func (v Value) Path(keys ...string) (Value, bool) {
	cur := v
	for _, k := range keys {
		next, ok := cur.Get(k)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// MarshalJSON encodes v back to JSON, preserving key order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.b))
	case Number:
		buf.WriteString(string(v.num))
	case String:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Array:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.obj[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("jsonvalue: unknown kind %d", v.kind)
	}
	return nil
}

// Parse decodes exactly one JSON document.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decode(dec, 0)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, ErrTrailingData
	}
	return v, nil
}

// ParsePrefix decodes the JSON value that starts at s[0] and ignores
// whatever follows it. It returns the number of bytes consumed.
func ParsePrefix(s string) (Value, int, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	v, err := decode(dec, 0)
	if err != nil {
		return Value{}, 0, err
	}
	return v, int(dec.InputOffset()), nil
}

func decode(dec *json.Decoder, depth int) (Value, error) {
	if depth > maxNesting {
		return Value{}, ErrTooDeep
	}

	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := Value{kind: Object, obj: map[string]Value{}}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, errUnexpectedTok
				}
				member, err := decode(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				if _, dup := obj.obj[key]; !dup {
					obj.keys = append(obj.keys, key)
				}
				obj.obj[key] = member
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return obj, nil
		case '[':
			arr := Value{kind: Array}
			for dec.More() {
				elem, err := decode(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				arr.arr = append(arr.arr, elem)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return arr, nil
		}
	}
	return Value{}, errUnexpectedTok
}
