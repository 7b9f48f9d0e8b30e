// Package slot provides a fixed-capacity table of values addressed by
// generational handles. Allocation always takes the lowest free index;
// freeing a slot bumps its generation so stale handles are rejected.
//
// Table is not safe for concurrent use; callers serialise mutations
// with their own lock.
package slot

import "errors"

var (
	ErrFull  = errors.New("slot table full")
	ErrStale = errors.New("stale or invalid slot handle")
)

// IndexBits is the number of low handle bits holding the slot index.
const IndexBits = 8

// MaxCapacity is the largest capacity a Table may be created with.
const MaxCapacity = 1 << IndexBits

const genMask = 1<<(31-IndexBits) - 1

// Handle packs a generation and an index. The zero Handle is valid and
// names index 0, generation 0.
type Handle uint32

func makeHandle(index int, gen uint32) Handle {
	return Handle(gen<<IndexBits | uint32(index))
}

func (h Handle) Index() int {
	return int(h & (MaxCapacity - 1))
}

func (h Handle) Generation() uint32 {
	return uint32(h) >> IndexBits
}

type entry[T any] struct {
	used  bool
	gen   uint32
	value T
}

type Table[T any] struct {
	slots []entry[T]
	inUse int
}

// New returns a table of the given capacity, clamped to [1, MaxCapacity].
func New[T any](capacity int) *Table[T] {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return &Table[T]{slots: make([]entry[T], capacity)}
}

// Alloc stores v in the lowest free slot.
func (t *Table[T]) Alloc(v T) (Handle, error) {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.used {
			s.used = true
			s.value = v
			t.inUse++
			return makeHandle(i, s.gen), nil
		}
	}
	return 0, ErrFull
}

// Get returns the value for h if h names a live slot.
func (t *Table[T]) Get(h Handle) (T, bool) {
	var zero T
	i := h.Index()
	if i >= len(t.slots) {
		return zero, false
	}
	s := &t.slots[i]
	if !s.used || s.gen != h.Generation() {
		return zero, false
	}
	return s.value, true
}

// Free releases h. Freeing a stale handle is an error and has no effect.
func (t *Table[T]) Free(h Handle) error {
	i := h.Index()
	if i >= len(t.slots) {
		return ErrStale
	}
	s := &t.slots[i]
	if !s.used || s.gen != h.Generation() {
		return ErrStale
	}
	var zero T
	s.used = false
	s.value = zero
	s.gen = (s.gen + 1) & genMask
	t.inUse--
	return nil
}

// Each calls fn for every live slot in index order. fn may Free the
// handle it is given.
func (t *Table[T]) Each(fn func(h Handle, v T)) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.used {
			fn(makeHandle(i, s.gen), s.value)
		}
	}
}

func (t *Table[T]) InUse() int {
	return t.inUse
}

func (t *Table[T]) Capacity() int {
	return len(t.slots)
}
