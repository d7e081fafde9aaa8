package val

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeysUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: UTF-16 code-unit order differs from UTF-8 byte
	// order because the supplementary-plane character encodes as a
	// surrogate pair starting at 0xD800.
	obj := Object{
		"": Int(1),
		"𐀀":      Int(2),
		"a":      Int(3),
	}

	keys := obj.SortedKeys()
	assert.Equal(t, []string{"a", "𐀀", ""}, keys)
}

func TestSortedKeysPrefix(t *testing.T) {
	obj := Object{"ab": Int(1), "a": Int(2), "abc": Int(3)}
	assert.Equal(t, []string{"a", "ab", "abc"}, obj.SortedKeys())
}

func TestObjectGet(t *testing.T) {
	obj := Object{"a": Int(1)}

	v, ok := obj.Get("a")
	assert.True(t, ok)
	assert.Equal(t, Int(1), v)

	_, ok = obj.Get("missing")
	assert.False(t, ok)
	assert.True(t, obj.Has("a"))
	assert.False(t, obj.Has("missing"))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		v    Value
		kind string
	}{
		{Null{}, "null"},
		{Bool(true), "bool"},
		{Int(1), "int"},
		{Float(1.5), "float"},
		{String("x"), "string"},
		{Array{}, "array"},
		{Object{}, "object"},
		{Removed{}, "removed"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.v))
	}
}
