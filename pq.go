package gridpath

import "container/heap"

// Key orders open-set entries: lower F first, lower H breaking ties.
type Key struct {
	F int
	H int
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	if k.F != o.F {
		return k.F < o.F
	}
	return k.H < o.H
}

// PriorityQueueItem is a node id with its current key.
type PriorityQueueItem struct {
	ID  int
	Key Key
}

// queueHeap implements heap.Interface. indexInQueue[id] is the slot of id in
// items, or -1 while id is not enqueued.
type queueHeap struct {
	items        []PriorityQueueItem
	indexInQueue []int
}

func (q *queueHeap) Len() int           { return len(q.items) }
func (q *queueHeap) Less(i, j int) bool { return q.items[i].Key.Less(q.items[j].Key) }
func (q *queueHeap) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.indexInQueue[q.items[i].ID] = i
	q.indexInQueue[q.items[j].ID] = j
}

func (q *queueHeap) Push(x any) {
	item := x.(PriorityQueueItem)
	q.indexInQueue[item.ID] = len(q.items)
	q.items = append(q.items, item)
}

func (q *queueHeap) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	q.indexInQueue[item.ID] = -1
	return item
}

// PriorityQueue is an indexed min-heap over node ids in [0, capacity). Every
// operation other than Count and Contains is O(log n).
type PriorityQueue struct {
	heap queueHeap
}

// NewPriorityQueue returns an empty queue accepting ids below capacity.
func NewPriorityQueue(capacity int) *PriorityQueue {
	index := make([]int, capacity)
	for i := range index {
		index[i] = -1
	}
	return &PriorityQueue{heap: queueHeap{indexInQueue: index}}
}

// Capacity is the exclusive upper bound on ids.
func (pq *PriorityQueue) Capacity() int { return len(pq.heap.indexInQueue) }

// Count returns the number of enqueued ids.
func (pq *PriorityQueue) Count() int { return len(pq.heap.items) }

// Contains reports whether id is enqueued.
func (pq *PriorityQueue) Contains(id int) bool {
	return id >= 0 && id < len(pq.heap.indexInQueue) && pq.heap.indexInQueue[id] >= 0
}

// Insert enqueues id with key. Inserting an id that is already enqueued
// updates its key instead.
func (pq *PriorityQueue) Insert(id int, key Key) {
	if pq.Contains(id) {
		pq.UpdateKey(id, key)
		return
	}
	heap.Push(&pq.heap, PriorityQueueItem{ID: id, Key: key})
}

// ExtractMin removes and returns the id with the smallest key.
func (pq *PriorityQueue) ExtractMin() (int, Key, bool) {
	if len(pq.heap.items) == 0 {
		return -1, Key{}, false
	}
	item := heap.Pop(&pq.heap).(PriorityQueueItem)
	return item.ID, item.Key, true
}

// Peek returns the id with the smallest key without removing it.
func (pq *PriorityQueue) Peek() (int, Key, bool) {
	if len(pq.heap.items) == 0 {
		return -1, Key{}, false
	}
	item := pq.heap.items[0]
	return item.ID, item.Key, true
}

// UpdateKey changes the key of an enqueued id and restores heap order from its
// current slot. It reports false if id is not enqueued.
func (pq *PriorityQueue) UpdateKey(id int, key Key) bool {
	if !pq.Contains(id) {
		return false
	}
	slot := pq.heap.indexInQueue[id]
	pq.heap.items[slot].Key = key
	heap.Fix(&pq.heap, slot)
	return true
}

// Key returns the current key of an enqueued id.
func (pq *PriorityQueue) Key(id int) (Key, bool) {
	if !pq.Contains(id) {
		return Key{}, false
	}
	return pq.heap.items[pq.heap.indexInQueue[id]].Key, true
}

// Reset empties the queue, keeping its allocations.
func (pq *PriorityQueue) Reset() {
	for _, item := range pq.heap.items {
		pq.heap.indexInQueue[item.ID] = -1
	}
	pq.heap.items = pq.heap.items[:0]
}
