package weakc

import (
	"fmt"
	"unsafe"
	"weak"

	"go.uber.org/zap"
)

// defaultBagCapacity is the number of slots of a WeakBag created without
// WithPresize.
const defaultBagCapacity = 4

// WeakBag is an unordered set of weakly held *T. It never keeps its items
// alive: once an item is collected, or reports IsDestroyed when T
// implements Destroyable, it is skipped by every read and its slot is
// reclaimed by the next Sweep.
//
// Items are compared by identity (pointer equality). Adding an item that is
// already present is a no-op.
//
// Slots are laid out as a prefix of used slots followed by never-used ones.
// Remove leaves an empty slot behind that the next Add fills; only Sweep
// (called by ToSlice and AppendTo) shifts live slots down and shortens the
// prefix.
//
// A WeakBag must not be copied after first use and must not be used from
// more than one goroutine at a time.
type WeakBag[T any] struct {
	_ [(CacheLineSize - unsafe.Sizeof(struct {
		_      noCopy
		items  []unsafe.Pointer
		count  int
		alive  unsafe.Pointer
		logger unsafe.Pointer
	}{})%CacheLineSize) % CacheLineSize]byte

	_      noCopy
	items  []weak.Pointer[T] // len(items) is the capacity; zero value is an empty slot
	count  int               // slots in use, including empty and dead ones
	r      resolver[T]
	logger *zap.Logger
}

// BagStats is a point-in-time snapshot of WeakBag diagnostics.
type BagStats struct {
	Capacity   int     // allocated slots
	Slots      int     // slots in use (high-water mark since the last Sweep)
	Alive      int     // slots whose item is still usable
	Dead       int     // slots whose item was collected or destroyed
	Free       int     // emptied slots below the high-water mark
	LoadFactor float64 // Alive / Capacity
}

// NewWeakBag creates a new WeakBag.
//
// Parameters:
//   - WithPresize option for the initial number of slots
//   - WithLiveness option to replace the Destroyable check
//   - WithLogger option for growth and sweep events
func NewWeakBag[T any](options ...func(*Config)) *WeakBag[T] {
	cfg := newConfig(options)
	capacity := cfg.sizeHint
	if capacity <= 0 {
		capacity = defaultBagCapacity
	}
	return &WeakBag[T]{
		items:  make([]weak.Pointer[T], capacity),
		r:      newResolver[T](cfg),
		logger: cfg.logger,
	}
}

// Add inserts item unless it is already present. It reports whether the
// item was added, and returns ErrNilItem for a nil item.
func (b *WeakBag[T]) Add(item *T) (bool, error) {
	if item == nil {
		return false, ErrNilItem
	}
	if b.indexOf(item) >= 0 {
		return false, nil
	}
	i := b.freeSlot()
	if i == len(b.items) {
		b.grow(i + 1)
	}
	b.items[i] = weak.Make(item)
	if i >= b.count {
		b.count = i + 1
	}
	return true, nil
}

// AddAll adds every item and returns how many were not already present.
// If any item is nil, nothing is added and the error wraps ErrNilItem.
func (b *WeakBag[T]) AddAll(items ...*T) (int, error) {
	for i, item := range items {
		if item == nil {
			return 0, fmt.Errorf("%w at index %d", ErrNilItem, i)
		}
	}
	added := 0
	for _, item := range items {
		if ok, _ := b.Add(item); ok {
			added++
		}
	}
	return added, nil
}

// Contains reports whether item is present and alive.
func (b *WeakBag[T]) Contains(item *T) bool {
	if item == nil {
		return false
	}
	return b.indexOf(item) >= 0
}

// Remove empties the first slot holding item and reports whether one was
// found. The slot is reused by a later Add; the bag is not compacted.
func (b *WeakBag[T]) Remove(item *T) bool {
	if item == nil {
		return false
	}
	i := b.indexOf(item)
	if i < 0 {
		return false
	}
	b.items[i] = weak.Pointer[T]{}
	return true
}

// Sweep moves all live slots to the front, keeping their relative order,
// and empties the rest. It returns the number of empty or dead slots
// reclaimed.
func (b *WeakBag[T]) Sweep() int {
	return b.sweep(nil)
}

// NeedsSweep reports whether any slot in use holds a dead item. It does not
// modify the bag.
func (b *WeakBag[T]) NeedsSweep() bool {
	for i := 0; i < b.count; i++ {
		if w := b.items[i]; w != (weak.Pointer[T]{}) && b.r.resolve(w) == nil {
			return true
		}
	}
	return false
}

// ToSlice sweeps the bag and returns its live items in slot order.
//
// Notes:
//   - The sweep changes the slot layout, so the order of items returned
//     by later calls is not related to the order before this call.
func (b *WeakBag[T]) ToSlice() []*T {
	return b.AppendTo(make([]*T, 0, b.count))
}

// AppendTo sweeps the bag and appends its live items to dst in slot order.
func (b *WeakBag[T]) AppendTo(dst []*T) []*T {
	b.sweep(func(p *T) {
		dst = append(dst, p)
	})
	return dst
}

// Range calls yield for each live item in slot order until yield returns
// false. It does not compact the bag. Items that die during the walk are
// skipped once reached; adding items during the walk has undefined results.
func (b *WeakBag[T]) Range(yield func(item *T) bool) {
	for i := 0; i < b.count; i++ {
		if p := b.r.resolve(b.items[i]); p != nil {
			if !yield(p) {
				return
			}
		}
	}
}

// All is the iterator version of Range.
func (b *WeakBag[T]) All() func(yield func(*T) bool) {
	return b.Range
}

// Clear empties the bag without releasing its slots.
func (b *WeakBag[T]) Clear() {
	clear(b.items[:b.count])
	b.count = 0
}

// Size returns the number of live items. This is an O(n) operation.
func (b *WeakBag[T]) Size() int {
	return b.AliveCount()
}

// IsZero reports whether the bag holds no live item.
func (b *WeakBag[T]) IsZero() bool {
	for i := 0; i < b.count; i++ {
		if b.r.resolve(b.items[i]) != nil {
			return false
		}
	}
	return true
}

// Capacity returns the number of allocated slots.
func (b *WeakBag[T]) Capacity() int {
	return len(b.items)
}

// TotalSlots returns the number of slots in use since the last Sweep or
// Clear, whatever their state.
func (b *WeakBag[T]) TotalSlots() int {
	return b.count
}

// AliveCount returns the number of slots holding a live item.
func (b *WeakBag[T]) AliveCount() int {
	alive := 0
	for i := 0; i < b.count; i++ {
		if b.r.resolve(b.items[i]) != nil {
			alive++
		}
	}
	return alive
}

// DeadCount returns the number of slots whose item died and was not swept.
func (b *WeakBag[T]) DeadCount() int {
	dead := 0
	for i := 0; i < b.count; i++ {
		if w := b.items[i]; w != (weak.Pointer[T]{}) && b.r.resolve(w) == nil {
			dead++
		}
	}
	return dead
}

// FreeSlotCount returns the number of emptied slots below TotalSlots.
func (b *WeakBag[T]) FreeSlotCount() int {
	free := 0
	for i := 0; i < b.count; i++ {
		if b.items[i] == (weak.Pointer[T]{}) {
			free++
		}
	}
	return free
}

// LoadFactor returns AliveCount divided by Capacity.
func (b *WeakBag[T]) LoadFactor() float64 {
	return float64(b.AliveCount()) / float64(len(b.items))
}

// Stats collects all diagnostics in a single pass.
func (b *WeakBag[T]) Stats() BagStats {
	s := BagStats{Capacity: len(b.items), Slots: b.count}
	for i := 0; i < b.count; i++ {
		w := b.items[i]
		switch {
		case w == (weak.Pointer[T]{}):
			s.Free++
		case b.r.resolve(w) == nil:
			s.Dead++
		default:
			s.Alive++
		}
	}
	s.LoadFactor = float64(s.Alive) / float64(s.Capacity)
	return s
}

// String implement the formatting output interface fmt.Stringer
func (b *WeakBag[T]) String() string {
	s := b.Stats()
	return fmt.Sprintf("WeakBag[alive=%d dead=%d free=%d slots=%d cap=%d]",
		s.Alive, s.Dead, s.Free, s.Slots, s.Capacity)
}

// MarshalJSON encodes the live items as a JSON array in slot order.
func (b *WeakBag[T]) MarshalJSON() ([]byte, error) {
	items := make([]*T, 0, b.count)
	b.Range(func(item *T) bool {
		items = append(items, item)
		return true
	})
	return marshalJSON(items)
}

func (b *WeakBag[T]) indexOf(item *T) int {
	for i := 0; i < b.count; i++ {
		if b.r.resolve(b.items[i]) == item {
			return i
		}
	}
	return -1
}

// freeSlot returns the first emptied slot, or count if there is none.
func (b *WeakBag[T]) freeSlot() int {
	for i := 0; i < b.count; i++ {
		if b.items[i] == (weak.Pointer[T]{}) {
			return i
		}
	}
	return b.count
}

func (b *WeakBag[T]) grow(minCapacity int) {
	newCapacity := max(len(b.items)*2, minCapacity)
	items := make([]weak.Pointer[T], newCapacity)
	copy(items, b.items[:b.count])
	b.logger.Debug("weak bag grown",
		zap.Int("old_capacity", len(b.items)),
		zap.Int("new_capacity", newCapacity))
	b.items = items
}

// sweep compacts live slots to the front and hands each live item to
// collect, if set, in slot order. The strong pointer passed to collect is
// the one the liveness decision was made on.
func (b *WeakBag[T]) sweep(collect func(*T)) int {
	reclaimed, n := 0, 0
	for i := 0; i < b.count; i++ {
		w := b.items[i]
		p := b.r.resolve(w)
		if p == nil {
			b.items[i] = weak.Pointer[T]{}
			reclaimed++
			continue
		}
		if n != i {
			b.items[n] = w
			b.items[i] = weak.Pointer[T]{}
		}
		n++
		if collect != nil {
			collect(p)
		}
	}
	b.count = n
	if reclaimed > 0 {
		b.logger.Debug("weak bag swept",
			zap.Int("reclaimed", reclaimed),
			zap.Int("alive", n))
	}
	return reclaimed
}
