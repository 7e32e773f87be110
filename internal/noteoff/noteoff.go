// Package noteoff implements the Note-off Scheduler (spec §4.3): a
// time-ordered queue of pending note-offs, flushed when due. No third-party
// priority-queue library appears anywhere in the retrieval pack, so this
// uses the standard library's container/heap — the idiomatic choice for a
// small in-process scheduler, recorded in DESIGN.md.
package noteoff

import (
	"container/heap"
	"sync"
	"time"
)

// Pending is one scheduled note-off.
type Pending struct {
	Channel uint8
	Note    uint8
	OffTime time.Time
}

type item struct {
	pending Pending
	seq     int64 // insertion sequence, for stable tie-break on equal OffTime
}

type minHeap []item

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].pending.OffTime.Equal(h[j].pending.OffTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].pending.OffTime.Before(h[j].pending.OffTime)
}
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Scheduler holds future note-offs and releases them when due.
type Scheduler struct {
	mu      sync.Mutex
	heap    minHeap
	nextSeq int64
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule enqueues a note-off for (channel, note) at offTime. Equal
// timestamps pop in insertion order (spec §4.3).
func (s *Scheduler) Schedule(channel, note uint8, offTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.heap, item{pending: Pending{Channel: channel, Note: note, OffTime: offTime}, seq: s.nextSeq})
	s.nextSeq++
}

// Tick pops and returns every entry with OffTime <= now, in due order. A
// pop that fires up to ~1ms late is within this system's documented
// note-off timing floor (spec §4.3); Tick does not itself sleep or block.
func (s *Scheduler) Tick(now time.Time) []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Pending
	for s.heap.Len() > 0 && !s.heap[0].pending.OffTime.After(now) {
		it := heap.Pop(&s.heap).(item)
		due = append(due, it.pending)
	}
	return due
}

// FlushAll pops and returns every pending note-off regardless of due time.
// Used by panic() and stop() to guarantee no note is left stuck.
func (s *Scheduler) FlushAll() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pending, 0, s.heap.Len())
	for s.heap.Len() > 0 {
		it := heap.Pop(&s.heap).(item)
		out = append(out, it.pending)
	}
	return out
}

// Len reports the number of entries currently pending.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}
