package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ValueKind identifies which scalar a Value holds.
type ValueKind int

const (
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	}
	return "invalid"
}

// Value is a fact or comparison operand: exactly one of string, number or bool.
type Value struct {
	kind ValueKind
	s    string
	n    float64
	b    bool
}

func String(s string) Value { return Value{kind: KindString, s: s} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// ValueOf converts a decoded scalar (json, yaml or plain Go) into a Value.
func ValueOf(v interface{}) (Value, bool) {
	switch t := v.(type) {
	case Value:
		return t, t.kind != KindInvalid
	case string:
		return String(t), true
	case bool:
		return Bool(t), true
	case float64:
		return Number(t), true
	case float32:
		return Number(float64(t)), true
	case int:
		return Number(float64(t)), true
	case int8:
		return Number(float64(t)), true
	case int16:
		return Number(float64(t)), true
	case int32:
		return Number(float64(t)), true
	case int64:
		return Number(float64(t)), true
	case uint:
		return Number(float64(t)), true
	case uint8:
		return Number(float64(t)), true
	case uint16:
		return Number(float64(t)), true
	case uint32:
		return Number(float64(t)), true
	case uint64:
		return Number(float64(t)), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, false
		}
		return Number(f), true
	}
	return Value{}, false
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }
func (v Value) Number() (float64, bool) { return v.n, v.kind == KindNumber }
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	}
	return false
}

func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return "<invalid>"
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val, ok := ValueOf(raw)
	if !ok {
		return fmt.Errorf("value must be a string, number or bool, got %s", string(data))
	}
	*v = val
	return nil
}

// facts

// Facts is the immutable-per-call input of an evaluation.
type Facts map[string]Value

// NewFacts builds Facts from loosely typed input, rejecting non-scalar values.
func NewFacts(m map[string]interface{}) (Facts, error) {
	facts := make(Facts, len(m))
	for k, raw := range m {
		v, ok := ValueOf(raw)
		if !ok {
			return nil, &MalformedInputError{
				Field:   k,
				Message: fmt.Sprintf("unsupported fact value type %T", raw),
			}
		}
		facts[k] = v
	}
	return facts, nil
}

// MustFacts is NewFacts for literals known to be valid.
func MustFacts(m map[string]interface{}) Facts {
	f, err := NewFacts(m)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Facts) Get(key string) (Value, bool) {
	v, ok := f[key]
	return v, ok
}

// Keys returns the fact names in sorted order.
func (f Facts) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f Facts) Map() map[string]interface{} {
	res := make(map[string]interface{}, len(f))
	for k, v := range f {
		res[k] = v.Interface()
	}
	return res
}

func (f *Facts) UnmarshalJSON(data []byte) error {
	var raw map[string]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Facts(raw)
	return nil
}
