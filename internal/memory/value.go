package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the closed set of shapes a Value can take
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "invalid"
}

// Value is a closed tagged variant for entity metadata and attribute
// payloads: a string, a number, a bool, an ordered list of values, or a
// string-keyed map of values. Values are immutable once constructed;
// constructors and accessors copy, so a Value can be shared freely.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// StringValue wraps a string
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// NumberValue wraps a float64
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// BoolValue wraps a bool
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// ListValue wraps an ordered list of values
func ListValue(items ...Value) Value {
	list := make([]Value, len(items))
	copy(list, items)
	return Value{kind: KindList, list: list}
}

// MapValue wraps a string-keyed map of values
func MapValue(entries map[string]Value) Value {
	m := make(map[string]Value, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the shape of the value
func (v Value) Kind() Kind {
	return v.kind
}

// AsString returns the string payload, if any
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the numeric payload, if any
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean payload, if any
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsList returns a copy of the list payload, if any
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	list := make([]Value, len(v.list))
	copy(list, v.list)
	return list, true
}

// AsMap returns a copy of the map payload, if any
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	m := make(map[string]Value, len(v.m))
	for k, item := range v.m {
		m[k] = item
	}
	return m, true
}

// Equal reports deep equality of kind and payload
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, item := range v.m {
			otherItem, exists := other.m[k]
			if !exists || !item.Equal(otherItem) {
				return false
			}
		}
		return true
	}
	return true
}

// String renders the value for prompt text and logs. Map keys are sorted
// so the rendering is deterministic.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// MarshalJSON emits the natural JSON form of the payload
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	}
	return []byte("null"), nil
}

// UnmarshalJSON infers the kind from the JSON token: strings, numbers,
// booleans, arrays, and objects map onto the closed kind set; null yields
// the invalid zero value.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty value payload")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case 'n':
		var null interface{}
		if err := json.Unmarshal(trimmed, &null); err != nil {
			return err
		}
		*v = Value{}
	case '[':
		var list []Value
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		if list == nil {
			list = []Value{}
		}
		*v = Value{kind: KindList, list: list}
	case '{':
		var m map[string]Value
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return err
		}
		if m == nil {
			m = map[string]Value{}
		}
		*v = Value{kind: KindMap, m: m}
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return fmt.Errorf("unsupported value payload: %s", string(trimmed))
		}
		*v = NumberValue(f)
	}

	return nil
}
