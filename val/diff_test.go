package val

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffMinimalDelta(t *testing.T) {
	prev := Object{"a": Int(0), "b": Int(0)}
	next := Object{"a": Int(5), "b": Int(0)}

	patch, changed := Diff(prev, next)
	require.True(t, changed)
	assert.True(t, Equal(Object{"a": Int(5)}, patch), "delta must contain only the changed key, got %#v", patch)
}

func TestDiffRemovalMarker(t *testing.T) {
	prev := Object{"a": Int(1), "b": Int(2)}
	next := Object{"a": Int(1)}

	patch, changed := Diff(prev, next)
	require.True(t, changed)

	obj := patch.(Object)
	assert.Len(t, obj, 1)
	_, isRemoved := obj["b"].(Removed)
	assert.True(t, isRemoved)
}

func TestDiffAddedKey(t *testing.T) {
	patch, changed := Diff(Object{"a": Int(1)}, Object{"a": Int(1), "b": Int(2)})
	require.True(t, changed)
	assert.True(t, Equal(Object{"b": Int(2)}, patch))
}

func TestDiffNoChange(t *testing.T) {
	_, changed := Diff(Object{"a": Int(1)}, Object{"a": Int(1)})
	assert.False(t, changed)

	_, changed = Diff(Int(3), Int(3))
	assert.False(t, changed)

	_, changed = Diff(Array{Int(1)}, Array{Int(1)})
	assert.False(t, changed)
}

func TestDiffSequenceFullReplace(t *testing.T) {
	prev := Array{Int(1), Int(2)}
	next := Array{Int(1), Int(2), Int(3)}

	patch, changed := Diff(prev, next)
	require.True(t, changed)
	assert.True(t, Equal(next, patch), "sequences replace wholesale, never merge")
}

func TestDiffKindChange(t *testing.T) {
	patch, changed := Diff(Object{"a": Int(1)}, Int(5))
	require.True(t, changed)
	assert.True(t, Equal(Int(5), patch))
}

func TestDiffMergeRoundTrip(t *testing.T) {
	prev := Object{"a": Int(1), "b": String("x"), "c": Bool(true)}
	next := Object{"a": Int(2), "c": Bool(true), "d": Array{Int(9)}}

	patch, changed := Diff(prev, next)
	require.True(t, changed)

	assert.True(t, Equal(next, Merge(prev, patch.(Object))),
		"applying the diff to prev must reproduce next exactly")
}
