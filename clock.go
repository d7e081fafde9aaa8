package statecell

import "sync/atomic"

// clock issues the store's transition sequence numbers: a monotonically
// increasing logical counter with no relation to wall time. Seq 0 means
// no transition has committed yet.
type clock struct {
	seq atomic.Int64
}

func newClock() *clock {
	return &clock{}
}

// newClockAt starts counting after start, so a store rebuilt from a
// journal resumes numbering where the journal left off.
func newClockAt(start int64) *clock {
	c := &clock{}
	c.seq.Store(start)
	return c
}

func (c *clock) next() int64 {
	return c.seq.Add(1)
}

func (c *clock) current() int64 {
	return c.seq.Load()
}
