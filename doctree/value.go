// Package doctree implements the tree model for project documents:
// a tagged recursive value type, field paths that address individual
// leaves, leaf enumeration with content hashing, and the structural
// field classification used by the sync engine.
//
// A document is an arbitrary tree whose internal nodes are ordered maps
// or lists and whose leaves are scalar strings. Map key order is
// preserved so that re-indexing an unchanged document always yields the
// same leaf set in the same order.
package doctree

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Value kinds
// ---------------------------------------------------------------------------

// Kind discriminates the Value union.
type Kind int

const (
	// Null is an absent or empty node.
	Null Kind = iota
	// Scalar is a string leaf.
	Scalar
	// List is an ordered sequence of values.
	List
	// Map is a key-ordered mapping of string keys to values.
	Map
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ---------------------------------------------------------------------------
// Value
// ---------------------------------------------------------------------------

// Value is a single node in a document tree.
type Value struct {
	// Kind selects which of the fields below is meaningful.
	Kind Kind
	// Str is the scalar text (Kind == Scalar).
	Str string
	// Tag is the YAML scalar tag for non-string scalars ("!!int",
	// "!!bool", "!!float"). Empty means plain string. Tagged scalars
	// pass through sync untouched and keep their type on round-trip.
	Tag string
	// Items are the list elements (Kind == List).
	Items []*Value

	// keys and fields hold map entries in insertion order (Kind == Map).
	keys   []string
	fields map[string]*Value
}

// NewNull returns a null value.
func NewNull() *Value { return &Value{Kind: Null} }

// NewScalar returns a scalar string value.
func NewScalar(s string) *Value { return &Value{Kind: Scalar, Str: s} }

// NewList returns an empty list value.
func NewList() *Value { return &Value{Kind: List} }

// NewMap returns an empty map value.
func NewMap() *Value {
	return &Value{Kind: Map, fields: make(map[string]*Value)}
}

// IsNull reports whether v is nil or a null node.
func (v *Value) IsNull() bool { return v == nil || v.Kind == Null }

// Keys returns the map keys in insertion order.
// Returns nil for non-map values.
func (v *Value) Keys() []string {
	if v == nil || v.Kind != Map {
		return nil
	}
	return v.keys
}

// Field returns the map entry for key, or nil if absent.
func (v *Value) Field(key string) *Value {
	if v == nil || v.Kind != Map {
		return nil
	}
	return v.fields[key]
}

// SetField sets the map entry for key, preserving insertion order for
// existing keys and appending new ones.
func (v *Value) SetField(key string, val *Value) {
	if v.Kind != Map {
		panic("doctree: SetField on non-map value")
	}
	if v.fields == nil {
		v.fields = make(map[string]*Value)
	}
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = val
}

// Len returns the number of entries for lists and maps, 0 otherwise.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.Kind {
	case List:
		return len(v.Items)
	case Map:
		return len(v.keys)
	default:
		return 0
	}
}

// At returns the i-th list element, or nil if out of range.
func (v *Value) At(i int) *Value {
	if v == nil || v.Kind != List || i < 0 || i >= len(v.Items) {
		return nil
	}
	return v.Items[i]
}

// Append appends an element to a list value.
func (v *Value) Append(val *Value) {
	if v.Kind != List {
		panic("doctree: Append on non-list value")
	}
	v.Items = append(v.Items, val)
}

// growTo extends a list with null elements so index i is addressable.
func (v *Value) growTo(i int) {
	for len(v.Items) <= i {
		v.Items = append(v.Items, NewNull())
	}
}

// Clone returns a deep copy of v. A nil receiver clones to null.
func (v *Value) Clone() *Value {
	if v == nil {
		return NewNull()
	}
	switch v.Kind {
	case Scalar:
		return &Value{Kind: Scalar, Str: v.Str, Tag: v.Tag}
	case List:
		c := NewList()
		c.Items = make([]*Value, len(v.Items))
		for i, item := range v.Items {
			c.Items[i] = item.Clone()
		}
		return c
	case Map:
		c := NewMap()
		for _, k := range v.keys {
			c.SetField(k, v.fields[k].Clone())
		}
		return c
	default:
		return NewNull()
	}
}

// Equal reports deep equality of two values. Null and nil are equal.
func (v *Value) Equal(other *Value) bool {
	if v.IsNull() || other.IsNull() {
		return v.IsNull() && other.IsNull()
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case Scalar:
		return v.Str == other.Str && v.Tag == other.Tag
	case List:
		if len(v.Items) != len(other.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(other.Items[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(v.keys) != len(other.keys) {
			return false
		}
		for _, k := range v.keys {
			if !v.fields[k].Equal(other.Field(k)) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders a compact single-line representation, for logs and tests.
func (v *Value) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v *Value) write(b *strings.Builder) {
	if v.IsNull() {
		b.WriteString("null")
		return
	}
	switch v.Kind {
	case Scalar:
		fmt.Fprintf(b, "%q", v.Str)
	case List:
		b.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			item.write(b)
		}
		b.WriteByte(']')
	case Map:
		b.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s: ", k)
			v.fields[k].write(b)
		}
		b.WriteByte('}')
	}
}
