// Package pyvalue decodes the single-line replies produced by the helper
// functions injected into a Python debuggee.
//
// A reply is one of
//
//	None
//	'Value(<literal>)'   or   "Value(<literal>)"
//	'Error(<string>)'    or   "Error(<string>)"
//
// where <literal> is a Python literal restricted to strings, None, lists,
// tuples and dicts with string keys. Strings are opaque: there is no escape
// processing, and a string never contains its own delimiter. The remote
// helpers stringify everything else (numbers, booleans, shapes) before
// replying.
package pyvalue

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindList
	KindTuple
	KindMapping
)

// String returns the grammar name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindString:
		return "String"
	case KindList:
		return "List"
	case KindTuple:
		return "Tuple"
	case KindMapping:
		return "Dict"
	default:
		return "unknown"
	}
}

// Value is a decoded Python literal. The set of implementations is closed:
// None, String, List, Tuple and Mapping.
type Value interface {
	Kind() Kind
	isValue()
}

// None is the Python None literal.
type None struct{}

// String is a quoted Python string.
type String string

// List is a Python list literal.
type List []Value

// Tuple is a Python tuple literal.
type Tuple []Value

// Entry is one key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Value
}

// Mapping is a Python dict literal with string keys, in encounter order.
type Mapping []Entry

func (None) Kind() Kind    { return KindNone }
func (String) Kind() Kind  { return KindString }
func (List) Kind() Kind    { return KindList }
func (Tuple) Kind() Kind   { return KindTuple }
func (Mapping) Kind() Kind { return KindMapping }

func (None) isValue()    {}
func (String) isValue()  {}
func (List) isValue()    {}
func (Tuple) isValue()   {}
func (Mapping) isValue() {}

// Get returns the value of the first entry with the given key.
func (m Mapping) Get(key string) (Value, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in encounter order.
func (m Mapping) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

func (None) String() string { return "None" }

// MarshalJSON encodes None as null.
func (None) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON encodes the mapping as a JSON object, keeping encounter order.
func (m Mapping) MarshalJSON() ([]byte, error) {
	om := orderedmap.New[string, Value](orderedmap.WithCapacity[string, Value](len(m)))
	for _, e := range m {
		om.Set(e.Key, e.Value)
	}
	return json.Marshal(om)
}
