package engine

// laneQueue is a FIFO of work items for one lane.
//
// Not safe for concurrent use: the engine is single-owner and Host
// serializes access. Items are never reordered or mutated while queued.
type laneQueue struct {
	items []WorkItem
}

func newLaneQueue() *laneQueue {
	return &laneQueue{items: make([]WorkItem, 0, 8)}
}

// push appends an item to the tail.
func (q *laneQueue) push(item WorkItem) {
	q.items = append(q.items, item)
}

// peek returns the head without removing it.
func (q *laneQueue) peek() (WorkItem, bool) {
	if len(q.items) == 0 {
		return WorkItem{}, false
	}
	return q.items[0], true
}

// pop removes and returns the head.
func (q *laneQueue) pop() (WorkItem, bool) {
	if len(q.items) == 0 {
		return WorkItem{}, false
	}
	item := q.items[0]

	// Clear the slot so the backing array does not pin the item's ID string
	// under steady load.
	q.items[0] = WorkItem{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return item, true
}

func (q *laneQueue) len() int {
	return len(q.items)
}

// snapshot returns a copy of the queued items, head first.
func (q *laneQueue) snapshot() []WorkItem {
	return append([]WorkItem(nil), q.items...)
}
