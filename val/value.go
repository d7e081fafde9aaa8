// Package val defines the value model shared by the store engine, the
// journal, and the tooling: a small sealed union of JSON-shaped values
// with deterministic serialization, structural equality, and the diff and
// draft machinery the store builds on.
package val

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the supported state shapes.
// Only Null, Bool, Int, Float, String, Array, Object, and Removed
// implement it.
type Value interface {
	value() // sealed
}

// Null represents a JSON null.
// An explicit type rather than a nil interface, so every state slot holds
// a non-nil Value.
type Null struct{}

func (Null) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating-point value. NaN and infinities are not
// representable in JSON and are rejected at serialization boundaries.
type Float float64

func (Float) value() {}

// String represents a string value.
type String string

func (String) value() {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) value() {}

// Object represents keyed record state.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Removed is the explicit removal marker. It is legal only inside
// patches: merging a key mapped to Removed deletes that key from record
// state. It never appears in committed state.
type Removed struct{}

func (Removed) value() {}

// removedKey is the reserved JSON encoding of the removal marker.
// An object of exactly {"$removed": true} round-trips as Removed.
const removedKey = "$removed"

// KindOf names the concrete kind of v for diagnostics and schemas.
func KindOf(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	case Removed:
		return "removed"
	default:
		return "invalid"
	}
}

// Get returns the field value for key, with absence reported through the
// second return rather than an error.
func (o Object) Get(key string) (Value, bool) {
	v, ok := o[key]
	return v, ok
}

// Has reports whether key is present.
func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code
// units). Go's sort.Strings compares UTF-8 bytes, which orders
// supplementary-plane characters differently.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units as required
// by RFC 8785. utf16.Encode handles surrogate pairs.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// isRemovedMarker reports whether v is the reserved removal-marker
// object form {"$removed": true}.
func isRemovedMarker(o Object) bool {
	if len(o) != 1 {
		return false
	}
	b, ok := o[removedKey].(Bool)
	return ok && bool(b)
}
