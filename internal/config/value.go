// Package config implements the format-agnostic configuration tree used to
// load pipeline, step, and batch config files. A Value is a tagged variant
// over the handful of shapes any of JSON, JSON-with-comments, YAML, or TOML
// can produce once decoded: null, bool, number, string, list, and an
// order-preserving map. Every accessor returns an error instead of panicking
// on a type mismatch, since a malformed user config file is an expected
// input, not a programming error.
package config

import (
	"fmt"

	"github.com/nrel-gaps/ridge/internal/errkind"
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a dynamically-typed configuration node. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []*Value
	m    *orderedMap
}

// orderedMap preserves key insertion order so a round-tripped YAML dump
// does not reshuffle a user's config file. JSON and TOML dumps go through
// map[string]any and come out key-sorted.
type orderedMap struct {
	keys   []string
	values map[string]*Value
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: map[string]*Value{}}
}

func (o *orderedMap) set(key string, v *Value) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Null returns a null Value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a bool Value.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// Number returns a numeric Value.
func Number(n float64) *Value { return &Value{kind: KindNumber, n: n} }

// String returns a string Value.
func String(s string) *Value { return &Value{kind: KindString, s: s} }

// List returns a list Value over the given elements.
func List(items ...*Value) *Value { return &Value{kind: KindList, list: items} }

// Map returns an empty map Value. Use Set to populate it.
func Map() *Value { return &Value{kind: KindMap, m: newOrderedMap()} }

// Kind reports which variant v holds.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether v is null (including a nil *Value).
func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

func typeErr(component string, want Kind, got *Value) error {
	return errkind.Configf(component, "", "expected %s, got %s", want, got.Kind())
}

// AsBool returns v's bool value, or an error if v is not a bool.
func (v *Value) AsBool() (bool, error) {
	if v == nil || v.kind != KindBool {
		return false, typeErr("config.Value.AsBool", KindBool, v)
	}
	return v.b, nil
}

// AsNumber returns v's numeric value, or an error if v is not a number.
func (v *Value) AsNumber() (float64, error) {
	if v == nil || v.kind != KindNumber {
		return 0, typeErr("config.Value.AsNumber", KindNumber, v)
	}
	return v.n, nil
}

// AsInt returns v's numeric value truncated to int, or an error if v is not
// a number.
func (v *Value) AsInt() (int, error) {
	n, err := v.AsNumber()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// AsString returns v's string value, or an error if v is not a string.
func (v *Value) AsString() (string, error) {
	if v == nil || v.kind != KindString {
		return "", typeErr("config.Value.AsString", KindString, v)
	}
	return v.s, nil
}

// AsList returns v's elements, or an error if v is not a list.
func (v *Value) AsList() ([]*Value, error) {
	if v == nil || v.kind != KindList {
		return nil, typeErr("config.Value.AsList", KindList, v)
	}
	return v.list, nil
}

// Keys returns v's map keys in insertion order, or an error if v is not a
// map.
func (v *Value) Keys() ([]string, error) {
	if v == nil || v.kind != KindMap {
		return nil, typeErr("config.Value.Keys", KindMap, v)
	}
	return v.m.keys, nil
}

// Set assigns key to val within a map Value. It panics if v is not a map,
// since this is a construction-time helper, not a parser outcome.
func (v *Value) Set(key string, val *Value) *Value {
	if v.kind != KindMap {
		panic(fmt.Sprintf("config.Value.Set: receiver is %s, not map", v.kind))
	}
	v.m.set(key, val)
	return v
}

// Get returns the value at key within a map Value, and ok=false if v is not
// a map or key is absent.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.kind != KindMap {
		return nil, false
	}
	val, ok := v.m.values[key]
	return val, ok
}

// GetOr returns the value at key, or fallback if v is not a map or key is
// absent.
func (v *Value) GetOr(key string, fallback *Value) *Value {
	if val, ok := v.Get(key); ok {
		return val
	}
	return fallback
}

// Lookup resolves a dotted path like "execution_control.nodes" against
// nested maps, returning ok=false as soon as a segment is missing or not a
// map.
func (v *Value) Lookup(path string) (*Value, bool) {
	cur := v
	for _, seg := range splitPath(path) {
		if cur == nil || cur.kind != KindMap {
			return nil, false
		}
		next, ok := cur.m.values[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Clone deep-copies v. Scalars are returned as-is since Values are
// treated as immutable once constructed; only maps and lists need a
// fresh backing structure so a caller can mutate the copy without
// aliasing the original.
func Clone(v *Value) *Value {
	switch v.Kind() {
	case KindMap:
		out := Map()
		keys, _ := v.Keys()
		for _, k := range keys {
			val, _ := v.Get(k)
			out.Set(k, Clone(val))
		}
		return out
	case KindList:
		items, _ := v.AsList()
		cloned := make([]*Value, len(items))
		for i, item := range items {
			cloned[i] = Clone(item)
		}
		return List(cloned...)
	default:
		return v
	}
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}
