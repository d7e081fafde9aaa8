package val

import "fmt"

// Produce runs mutate against a mutable draft seeded with a deep copy of
// state and returns the draft's final value. The input state is never
// shared with the result, so callers can mutate freely inside the
// closure without observable side effects on the committed value.
//
// Produce itself is pure and does not recover panics; a panicking
// mutator propagates to the caller (the store turns that into a dropped
// write).
func Produce(state Value, mutate func(*Draft)) Value {
	d := &Draft{cur: Clone(state)}
	mutate(d)
	return d.cur
}

// Draft is a mutable view over one state value, consumed by the store's
// draft-style write. Record state is edited with Get/Set/Delete,
// sequence state with Len/Index/SetIndex/Append, and any state can be
// wholesale replaced. Shape misuse panics; the store recovers mutator
// panics and drops the write.
type Draft struct {
	cur Value
}

// Value returns the draft's current value. The returned containers
// belong to the draft; mutating them through Set and friends is the
// intended use.
func (d *Draft) Value() Value {
	return d.cur
}

// Replace substitutes the entire draft value.
func (d *Draft) Replace(v Value) {
	if v == nil {
		panic("val: draft Replace with nil Value")
	}
	if _, removed := v.(Removed); removed {
		panic("val: removal marker is not a state value")
	}
	d.cur = v
}

// Get returns a field of record state. The value belongs to the draft.
func (d *Draft) Get(key string) (Value, bool) {
	obj := d.object("Get")
	v, ok := obj[key]
	return v, ok
}

// Set writes a field of record state.
func (d *Draft) Set(key string, v Value) {
	if v == nil {
		panic("val: draft Set with nil Value")
	}
	if _, removed := v.(Removed); removed {
		panic("val: removal marker is not a state value; use Delete")
	}
	obj := d.object("Set")
	obj[key] = v
}

// Delete removes a field of record state. Deleting an absent key is a
// no-op.
func (d *Draft) Delete(key string) {
	obj := d.object("Delete")
	delete(obj, key)
}

// Len returns the length of sequence state.
func (d *Draft) Len() int {
	return len(d.array("Len"))
}

// Index returns one element of sequence state; out-of-range panics.
func (d *Draft) Index(i int) Value {
	arr := d.array("Index")
	if i < 0 || i >= len(arr) {
		panic(fmt.Sprintf("val: draft index %d out of range [0,%d)", i, len(arr)))
	}
	return arr[i]
}

// SetIndex replaces one element of sequence state; out-of-range panics.
func (d *Draft) SetIndex(i int, v Value) {
	if v == nil {
		panic("val: draft SetIndex with nil Value")
	}
	if _, removed := v.(Removed); removed {
		panic("val: removal marker is not a state value")
	}
	arr := d.array("SetIndex")
	if i < 0 || i >= len(arr) {
		panic(fmt.Sprintf("val: draft index %d out of range [0,%d)", i, len(arr)))
	}
	arr[i] = v
}

// Append extends sequence state.
func (d *Draft) Append(vs ...Value) {
	arr := d.array("Append")
	for _, v := range vs {
		if v == nil {
			panic("val: draft Append with nil Value")
		}
		if _, removed := v.(Removed); removed {
			panic("val: removal marker is not a state value")
		}
		arr = append(arr, v)
	}
	d.cur = arr
}

func (d *Draft) object(op string) Object {
	obj, ok := d.cur.(Object)
	if !ok {
		panic(fmt.Sprintf("val: draft %s on %s state (record required)", op, KindOf(d.cur)))
	}
	return obj
}

func (d *Draft) array(op string) Array {
	arr, ok := d.cur.(Array)
	if !ok {
		panic(fmt.Sprintf("val: draft %s on %s state (sequence required)", op, KindOf(d.cur)))
	}
	return arr
}
