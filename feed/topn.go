package feed

import (
	"container/heap"
	"slices"

	"golang.org/x/exp/constraints"
)

type Pair[K, V any] struct {
	Key K
	Val V
}

type minHeap[K constraints.Ordered, V any] struct {
	items    []Pair[K, V]
	outranks func(a, b V) bool
}

func (h *minHeap[K, V]) Len() int {
	return len(h.items)
}

func (h *minHeap[K, V]) Less(i, j int) bool {
	return h.below(h.items[i], h.items[j])
}

func (h *minHeap[K, V]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *minHeap[K, V]) Push(x any) {
	h.items = append(h.items, x.(Pair[K, V]))
}

func (h *minHeap[K, V]) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[0 : n-1]
	return x
}

// below reports whether a ranks strictly lower than b.
func (h *minHeap[K, V]) below(a, b Pair[K, V]) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	if h.outranks == nil {
		return false
	}
	return h.outranks(b.Val, a.Val)
}

// TopN keeps the limit highest-keyed values offered to it. Equal keys are
// ordered by outranks, which reports whether a should come before b.
type TopN[K constraints.Ordered, V any] struct {
	limit int
	heap  *minHeap[K, V]
}

func NewTopN[K constraints.Ordered, V any](limit int, outranks func(a, b V) bool) *TopN[K, V] {
	h := &minHeap[K, V]{outranks: outranks}
	heap.Init(h)
	return &TopN[K, V]{limit: limit, heap: h}
}

func (t *TopN[K, V]) Len() int {
	return t.heap.Len()
}

func (t *TopN[K, V]) Offer(key K, val V) {
	if t.limit <= 0 {
		return
	}
	p := Pair[K, V]{Key: key, Val: val}
	if t.heap.Len() < t.limit {
		heap.Push(t.heap, p)
		return
	}
	if t.heap.below(t.heap.items[0], p) {
		t.heap.items[0] = p
		heap.Fix(t.heap, 0)
	}
}

// Sorted returns the retained values, best first.
func (t *TopN[K, V]) Sorted() []V {
	items := slices.Clone(t.heap.items)
	slices.SortFunc(items, func(a, b Pair[K, V]) int {
		switch {
		case t.heap.below(b, a):
			return -1
		case t.heap.below(a, b):
			return 1
		}
		return 0
	})
	out := make([]V, len(items))
	for i, p := range items {
		out[i] = p.Val
	}
	return out
}
