package monitor

import "sync"

// Ring is a fixed-capacity buffer that overwrites its oldest entry.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
	full  bool
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{items: make([]T, capacity)}
}

func (r *Ring[T]) Add(v T) {
	r.mu.Lock()
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.items)
	}
	return r.next
}

func (r *Ring[T]) Cap() int { return len(r.items) }

// Snapshot returns up to limit entries, newest first. limit <= 0 means all.
func (r *Ring[T]) Snapshot(limit int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.items)
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	idx := r.next
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = len(r.items) - 1
		}
		out = append(out, r.items[idx])
	}
	return out
}
