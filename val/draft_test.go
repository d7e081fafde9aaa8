package val

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducePurity(t *testing.T) {
	state := Object{"a": Int(0), "nested": Object{"x": Int(1)}}

	next := Produce(state, func(d *Draft) {
		d.Set("a", Int(5))
		nested, ok := d.Get("nested")
		require.True(t, ok)
		nested.(Object)["x"] = Int(99)
	})

	assert.True(t, Equal(Object{"a": Int(5), "nested": Object{"x": Int(99)}}, next))
	// The input is never shared with the draft.
	assert.True(t, Equal(Object{"a": Int(0), "nested": Object{"x": Int(1)}}, state))
}

func TestProduceNoMutation(t *testing.T) {
	state := Object{"a": Int(1)}
	next := Produce(state, func(d *Draft) {})
	assert.True(t, Equal(state, next))
}

func TestDraftDelete(t *testing.T) {
	next := Produce(Object{"a": Int(1), "b": Int(2)}, func(d *Draft) {
		d.Delete("b")
		d.Delete("not-there")
	})
	assert.True(t, Equal(Object{"a": Int(1)}, next))
}

func TestDraftSequenceOps(t *testing.T) {
	next := Produce(Array{Int(1), Int(2)}, func(d *Draft) {
		require.Equal(t, 2, d.Len())
		assert.Equal(t, Int(2), d.Index(1))
		d.SetIndex(0, Int(10))
		d.Append(Int(3), Int(4))
	})
	assert.True(t, Equal(Array{Int(10), Int(2), Int(3), Int(4)}, next))
}

func TestDraftReplace(t *testing.T) {
	next := Produce(Int(1), func(d *Draft) {
		d.Replace(String("swapped"))
	})
	assert.True(t, Equal(String("swapped"), next))
}

func TestDraftShapeMisusePanics(t *testing.T) {
	assert.Panics(t, func() {
		Produce(Int(1), func(d *Draft) { d.Set("a", Int(1)) })
	})
	assert.Panics(t, func() {
		Produce(Object{}, func(d *Draft) { d.Append(Int(1)) })
	})
	assert.Panics(t, func() {
		Produce(Array{Int(1)}, func(d *Draft) { d.SetIndex(5, Int(1)) })
	})
	assert.Panics(t, func() {
		Produce(Object{}, func(d *Draft) { d.Set("a", Removed{}) })
	})
}
