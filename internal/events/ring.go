package events

// Ring is a fixed-size cyclic buffer. Once full, Push overwrites the oldest item.
// It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	next  int
	full  bool
}

func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{items: make([]T, size)}
}

func (r *Ring[T]) Push(v T) {
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.items)
	}
	return r.next
}

// Snapshot copies the items oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, 0, r.Len())
	if r.full {
		out = append(out, r.items[r.next:]...)
	}
	return append(out, r.items[:r.next]...)
}
