package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/shaneisley/relay/pkg/protocol"
)

// Item wraps a queued envelope with its scheduling key. Ordering invariant:
// items dequeue in descending priority weight, ties broken by ascending
// enqueue time (FIFO within a priority band).
type Item struct {
	Envelope   *protocol.Envelope
	Weight     int
	EnqueuedAt time.Time

	seq uint64 // tiebreaker for identical enqueue timestamps
}

// cancelMarkTTL bounds how long a cancellation mark survives when its
// request is never dequeued or resolved. It must exceed the longest
// possible retry delay so a pending retry stays cancellable.
const cancelMarkTTL = 10 * time.Minute

// Queue is the priority scheduler's ordered structure. A single mutex
// guards it; no other lock is ever taken while it is held.
type Queue struct {
	mu        sync.Mutex
	items     itemHeap
	seq       uint64
	maxDepth  int
	cancelled map[string]time.Time
	cancelTTL time.Duration
}

// New creates an empty priority queue.
func New() *Queue {
	return &Queue{
		cancelled: make(map[string]time.Time),
		cancelTTL: cancelMarkTTL,
	}
}

// Enqueue inserts an envelope maintaining the ordering invariant.
// Queue depth is unbounded here; admission limits are an upstream concern.
func (q *Queue) Enqueue(env *protocol.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, &Item{
		Envelope:   env,
		Weight:     env.Priority.Weight(),
		EnqueuedAt: time.Now(),
		seq:        q.seq,
	})

	if len(q.items) > q.maxDepth {
		q.maxDepth = len(q.items)
	}
}

// DequeueNext removes and returns the highest-priority, oldest envelope.
// Cancelled items are skipped and dropped. Returns false when empty.
func (q *Queue) DequeueNext() (*protocol.Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() > 0 {
		item := heap.Pop(&q.items).(*Item)
		if _, skip := q.cancelled[item.Envelope.RequestID]; skip {
			delete(q.cancelled, item.Envelope.RequestID)
			continue
		}
		return item.Envelope, true
	}
	return nil, false
}

// Cancel marks a request id as cancelled. The item is skipped at dispatch
// time; executors re-check the flag after suspension points. Marks whose
// requests already finished (never dequeued, never resolved) are purged
// here once they outlive the mark TTL, so the map cannot grow unbounded.
func (q *Queue) Cancel(requestID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for id, marked := range q.cancelled {
		if now.Sub(marked) > q.cancelTTL {
			delete(q.cancelled, id)
		}
	}
	q.cancelled[requestID] = now
}

// IsCancelled reports whether a request id has been cancelled.
func (q *Queue) IsCancelled(requestID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[requestID]
	return ok
}

// ClearCancelled drops the cancellation mark for a request id, once the
// cancellation has been observed and surfaced.
func (q *Queue) ClearCancelled(requestID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.cancelled, requestID)
}

// Depth returns the current queue depth.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// MaxDepth returns the maximum depth observed since creation.
func (q *Queue) MaxDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxDepth
}

// itemHeap implements heap.Interface with the scheduling order.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Weight != h[j].Weight {
		return h[i].Weight > h[j].Weight
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(*Item))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
