package scheduler

import "time"

// entry is one pending delayed/retrying task, ordered by eligibleAt.
type entry[T any] struct {
	eligibleAt time.Time
	seq        uint64 // breaks ties in insertion order
	item       T
}

// entryHeap is a container/heap.Interface over entry, min-ordered by
// eligibleAt then seq.
type entryHeap[T any] []*entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].eligibleAt.Equal(h[j].eligibleAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].eligibleAt.Before(h[j].eligibleAt)
}

func (h entryHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap[T]) Push(x any) {
	*h = append(*h, x.(*entry[T]))
}

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
