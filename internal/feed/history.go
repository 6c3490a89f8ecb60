package feed

import "sync"

// HistoryBuffer keeps the most recent samples per symbol in arrival order.
// Single writer per symbol (the active feed), many readers.
type HistoryBuffer struct {
	capacity int

	mu    sync.RWMutex
	rings map[string]*sampleRing
}

type sampleRing struct {
	mu      sync.RWMutex
	samples []Sample
	head    int
	count   int
}

func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &HistoryBuffer{
		capacity: capacity,
		rings:    make(map[string]*sampleRing),
	}
}

func (h *HistoryBuffer) Capacity() int { return h.capacity }

func (h *HistoryBuffer) ring(symbol string, create bool) *sampleRing {
	h.mu.RLock()
	r := h.rings[symbol]
	h.mu.RUnlock()
	if r != nil || !create {
		return r
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r = h.rings[symbol]; r == nil {
		r = &sampleRing{samples: make([]Sample, h.capacity)}
		h.rings[symbol] = r
	}
	return r
}

// Append stores sample, evicting the oldest entry once the ring is full.
func (h *HistoryBuffer) Append(sample Sample) {
	r := h.ring(sample.Symbol, true)
	r.mu.Lock()
	idx := (r.head + r.count) % len(r.samples)
	r.samples[idx] = sample
	if r.count < len(r.samples) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.samples)
	}
	r.mu.Unlock()
}

// Latest returns the newest sample for symbol, if any.
func (h *HistoryBuffer) Latest(symbol string) (Sample, bool) {
	r := h.ring(symbol, false)
	if r == nil {
		return Sample{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return Sample{}, false
	}
	idx := (r.head + r.count - 1) % len(r.samples)
	return r.samples[idx], true
}

// Recent returns up to n samples for symbol, oldest first. n <= 0 means
// everything retained.
func (h *HistoryBuffer) Recent(symbol string, n int) []Sample {
	r := h.ring(symbol, false)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return nil
	}
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Sample, 0, n)
	start := r.count - n
	for i := start; i < r.count; i++ {
		out = append(out, r.samples[(r.head+i)%len(r.samples)])
	}
	return out
}

// Len reports how many samples are retained for symbol.
func (h *HistoryBuffer) Len(symbol string) int {
	r := h.ring(symbol, false)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
