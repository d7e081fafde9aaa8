package statecell

import "sync"

// transitionQueue buffers committed transitions between the commit point
// and the dispatch loop. Commits append under the store mutex; the
// single active dispatcher drains in commit order, which is what keeps
// notifications strictly ordered even when a listener re-enters the
// store and commits again mid-dispatch.
type transitionQueue struct {
	mu    sync.Mutex
	items []transition
}

func newTransitionQueue() *transitionQueue {
	return &transitionQueue{}
}

func (q *transitionQueue) push(t transition) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
}

// pop removes and returns the oldest transition. The drained slot is
// zeroed so dispatched states do not pin memory.
func (q *transitionQueue) pop() (transition, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return transition{}, false
	}
	t := q.items[0]
	q.items[0] = transition{}
	q.items = q.items[1:]

	if len(q.items) == 0 {
		q.items = nil
	}
	return t, true
}

func (q *transitionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
