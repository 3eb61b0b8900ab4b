package weakc

import (
	"fmt"
	"unsafe"
	"weak"

	"go.uber.org/zap"
)

const (
	// mapLoadFactor is the share of the capacity that linked entries may
	// occupy before an insertion resizes the table.
	mapLoadFactor = 0.9
	// minMapCapacity is the smallest requested capacity; it is rounded up
	// to the next table prime.
	minMapCapacity = 16
)

// WeakStrongMap maps weakly held keys to strongly held values. It never
// keeps a key alive; an entry whose key was collected, or reports
// IsDestroyed when K implements Destroyable, behaves as if it had been
// deleted. Such entries are reclaimed when a lookup walks over them, by
// Sweep, and by every resize, which only carries live entries over.
//
// Keys are compared with the map's Hasher, pointer identity by default.
// The hash of a key is captured at insertion and a stored key is always
// resolved and checked for liveness before it is compared.
//
// The table is a chained hash table over two parallel arrays: a prime-sized
// bucket array of chain heads and an entry array whose free slots form a
// list threaded through the next field.
//
// A WeakStrongMap must not be copied after first use and must not be used
// from more than one goroutine at a time.
type WeakStrongMap[K any, V any] struct {
	_ [(CacheLineSize - unsafe.Sizeof(struct {
		_        noCopy
		buckets  []int
		entries  []unsafe.Pointer
		count    int
		freeList int
		size     int
		hasher   any
		alive    unsafe.Pointer
		logger   unsafe.Pointer
	}{})%CacheLineSize) % CacheLineSize]byte

	_        noCopy
	buckets  []int // index+1 of the chain head, 0 for an empty chain
	entries  []mapEntry[K, V]
	count    int // entries handed out since the last resize or clear
	freeList int // first free entry, -1 if none
	size     int // entries linked into a chain
	hasher   Hasher[K]
	r        resolver[K]
	logger   *zap.Logger
}

type mapEntry[K any, V any] struct {
	hash  uint64
	next  int // next entry in the chain or free list, -1 at the end
	key   weak.Pointer[K]
	value V
}

// MapStats is a point-in-time snapshot of WeakStrongMap diagnostics.
type MapStats struct {
	Capacity   int     // length of the entry array
	Entries    int     // entries handed out since the last resize or clear
	Linked     int     // entries reachable from a bucket, dead keys included
	Dead       int     // linked entries whose key died
	Free       int     // entries on the free list
	LoadFactor float64 // Linked / Capacity
}

// NewWeakStrongMap creates a new WeakStrongMap comparing keys by identity.
//
// Parameters:
//   - WithPresize option for the initial capacity
//   - WithLiveness option to replace the Destroyable check
//   - WithLogger option for resize and sweep events
func NewWeakStrongMap[K any, V any](options ...func(*Config)) *WeakStrongMap[K, V] {
	return NewWeakStrongMapWithHasher[K, V](nil, options...)
}

// NewWeakStrongMapWithHasher creates a WeakStrongMap with a custom key
// equivalence. A nil hasher uses IdentityHasher.
func NewWeakStrongMapWithHasher[K any, V any](
	hasher Hasher[K],
	options ...func(*Config),
) *WeakStrongMap[K, V] {
	cfg := newConfig(options)
	if hasher == nil {
		hasher = IdentityHasher[K]()
	}
	m := &WeakStrongMap[K, V]{
		hasher: hasher,
		r:      newResolver[K](cfg),
		logger: cfg.logger,
	}
	m.reset(GetPrime(max(cfg.sizeHint, minMapCapacity)))
	return m
}

// Load returns the value stored for key. Dead entries met on the way are
// reclaimed.
func (m *WeakStrongMap[K, V]) Load(key *K) (value V, ok bool) {
	if key == nil {
		return value, false
	}
	_, i, _ := m.find(m.hasher.Hash(key), key)
	if i < 0 {
		return value, false
	}
	return m.entries[i].value, true
}

// HasKey reports whether key is present.
func (m *WeakStrongMap[K, V]) HasKey(key *K) bool {
	_, ok := m.Load(key)
	return ok
}

// Get returns the value stored for key, or ErrKeyNotFound.
func (m *WeakStrongMap[K, V]) Get(key *K) (V, error) {
	if v, ok := m.Load(key); ok {
		return v, nil
	}
	var zero V
	return zero, ErrKeyNotFound
}

// Store sets the value for key, overwriting the value of an existing entry
// in place. It returns ErrNilKey for a nil key.
func (m *WeakStrongMap[K, V]) Store(key *K, value V) error {
	if key == nil {
		return ErrNilKey
	}
	hash := m.hasher.Hash(key)
	bucket, i, _ := m.find(hash, key)
	if i >= 0 {
		m.entries[i].value = value
		return nil
	}
	m.insert(hash, bucket, key, value)
	return nil
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores value and returns it. The loaded result reports whether the value
// was already present.
func (m *WeakStrongMap[K, V]) LoadOrStore(key *K, value V) (actual V, loaded bool, err error) {
	if key == nil {
		return actual, false, ErrNilKey
	}
	hash := m.hasher.Hash(key)
	bucket, i, _ := m.find(hash, key)
	if i >= 0 {
		return m.entries[i].value, true, nil
	}
	m.insert(hash, bucket, key, value)
	return value, false, nil
}

// LoadAndDelete removes the entry for key and returns its value.
func (m *WeakStrongMap[K, V]) LoadAndDelete(key *K) (value V, loaded bool) {
	if key == nil {
		return value, false
	}
	bucket, i, prev := m.find(m.hasher.Hash(key), key)
	if i < 0 {
		return value, false
	}
	value = m.entries[i].value
	m.unlink(bucket, i, prev)
	return value, true
}

// Delete removes the entry for key and reports whether it was present.
func (m *WeakStrongMap[K, V]) Delete(key *K) bool {
	_, ok := m.LoadAndDelete(key)
	return ok
}

// Sweep walks every chain and reclaims all entries whose key died. It
// returns the number of entries reclaimed.
func (m *WeakStrongMap[K, V]) Sweep() int {
	reclaimed := 0
	for bucket := range m.buckets {
		prev := -1
		i := m.buckets[bucket] - 1
		for i >= 0 {
			e := &m.entries[i]
			next := e.next
			if m.r.resolve(e.key) != nil {
				prev = i
				i = next
				continue
			}
			m.unlink(bucket, i, prev)
			reclaimed++
			i = next
		}
	}
	if reclaimed > 0 {
		m.logger.Debug("weak map swept",
			zap.Int("reclaimed", reclaimed),
			zap.Int("size", m.size))
	}
	return reclaimed
}

// Grow makes room for n entries without a resize on insertion.
func (m *WeakStrongMap[K, V]) Grow(n int) {
	if n <= m.size {
		return
	}
	required := int(float64(n)/mapLoadFactor) + 1
	if required > len(m.entries) {
		m.resize(required)
	}
}

// Shrink sweeps the map and rebuilds it when the smallest prime holding the
// remaining entries below the load factor is under the current capacity.
// The rebuild, like every resize, allocates at least twice Size, so the
// resulting capacity is about double that bound. An empty map is rebuilt
// at the minimum capacity.
func (m *WeakStrongMap[K, V]) Shrink() {
	m.Sweep()
	if m.size == 0 {
		m.reset(GetPrime(minMapCapacity))
		return
	}
	target := max(GetPrime(int(float64(m.size)/mapLoadFactor)+1), GetPrime(minMapCapacity))
	if target < len(m.entries) {
		m.resize(target)
	}
}

// Clear drops all entries and keeps the current capacity.
func (m *WeakStrongMap[K, V]) Clear() {
	clear(m.buckets)
	clear(m.entries)
	m.count = 0
	m.size = 0
	m.freeList = -1
}

// Range calls yield for each entry with a live key, in storage order, until
// yield returns false. Unlike Load it does not reclaim dead entries.
func (m *WeakStrongMap[K, V]) Range(yield func(key *K, value V) bool) {
	entries := m.entries[:m.count]
	for i := range entries {
		e := &entries[i]
		if k := m.r.resolve(e.key); k != nil {
			if !yield(k, e.value) {
				return
			}
		}
	}
}

// All is the iterator version of Range.
func (m *WeakStrongMap[K, V]) All() func(yield func(*K, V) bool) {
	return m.Range
}

// Keys is the iterator version for iterating over all live keys.
func (m *WeakStrongMap[K, V]) Keys() func(yield func(*K) bool) {
	return func(yield func(*K) bool) {
		m.Range(func(key *K, _ V) bool {
			return yield(key)
		})
	}
}

// Values is the iterator version for iterating over the values of all live
// keys.
func (m *WeakStrongMap[K, V]) Values() func(yield func(V) bool) {
	return func(yield func(V) bool) {
		m.Range(func(_ *K, value V) bool {
			return yield(value)
		})
	}
}

// Size returns the number of linked entries. This is an O(1) operation.
// Entries whose key died since they were last visited are still counted;
// call Sweep first for an exact count of live keys.
func (m *WeakStrongMap[K, V]) Size() int {
	return m.size
}

// IsZero reports whether the map holds no entry with a live key.
func (m *WeakStrongMap[K, V]) IsZero() bool {
	if m.size == 0 {
		return true
	}
	for i := 0; i < m.count; i++ {
		if m.r.resolve(m.entries[i].key) != nil {
			return false
		}
	}
	return true
}

// Capacity returns the length of the entry array.
func (m *WeakStrongMap[K, V]) Capacity() int {
	return len(m.entries)
}

// TotalEntries returns the number of entries handed out since the last
// resize or clear, including those now on the free list.
func (m *WeakStrongMap[K, V]) TotalEntries() int {
	return m.count
}

// DeadKeyCount returns TotalEntries minus the live entries minus
// FreeSlotCount, that is the linked entries whose key died.
func (m *WeakStrongMap[K, V]) DeadKeyCount() int {
	dead := 0
	for i := 0; i < m.count; i++ {
		if w := m.entries[i].key; w != (weak.Pointer[K]{}) && m.r.resolve(w) == nil {
			dead++
		}
	}
	return dead
}

// FreeSlotCount returns the length of the free list.
func (m *WeakStrongMap[K, V]) FreeSlotCount() int {
	free := 0
	for i := m.freeList; i >= 0; i = m.entries[i].next {
		free++
	}
	return free
}

// LoadFactor returns Size divided by Capacity.
func (m *WeakStrongMap[K, V]) LoadFactor() float64 {
	return float64(m.size) / float64(len(m.entries))
}

// Stats collects all diagnostics.
func (m *WeakStrongMap[K, V]) Stats() MapStats {
	return MapStats{
		Capacity:   len(m.entries),
		Entries:    m.count,
		Linked:     m.size,
		Dead:       m.DeadKeyCount(),
		Free:       m.FreeSlotCount(),
		LoadFactor: m.LoadFactor(),
	}
}

// String implement the formatting output interface fmt.Stringer
func (m *WeakStrongMap[K, V]) String() string {
	s := m.Stats()
	return fmt.Sprintf("WeakStrongMap[size=%d dead=%d free=%d entries=%d cap=%d]",
		s.Linked, s.Dead, s.Free, s.Entries, s.Capacity)
}

type jsonEntry[K any, V any] struct {
	Key   *K `json:"key"`
	Value V  `json:"value"`
}

// MarshalJSON encodes the entries with a live key as a JSON array of
// {"key": ..., "value": ...} objects in storage order.
func (m *WeakStrongMap[K, V]) MarshalJSON() ([]byte, error) {
	out := make([]jsonEntry[K, V], 0, m.size)
	m.Range(func(key *K, value V) bool {
		out = append(out, jsonEntry[K, V]{Key: key, Value: value})
		return true
	})
	return marshalJSON(out)
}

// find walks the chain of hash and returns the index of the live entry
// equal to key, or -1. Dead entries on the chain are unlinked as they are
// met. prev is the chain predecessor of the returned index, -1 for the head.
func (m *WeakStrongMap[K, V]) find(hash uint64, key *K) (bucket, index, prev int) {
	bucket = int(hash % uint64(len(m.buckets)))
	prev = -1
	index = m.buckets[bucket] - 1
	for index >= 0 {
		e := &m.entries[index]
		next := e.next
		k := m.r.resolve(e.key)
		if k == nil {
			m.unlink(bucket, index, prev)
			index = next
			continue
		}
		if e.hash == hash && m.hasher.Equal(k, key) {
			return bucket, index, prev
		}
		prev = index
		index = next
	}
	return bucket, -1, prev
}

// insert links a new entry at the head of the chain of bucket, resizing
// first when the entry array is saturated or the insertion would reach the
// load factor.
func (m *WeakStrongMap[K, V]) insert(hash uint64, bucket int, key *K, value V) {
	if (m.freeList < 0 && m.count == len(m.entries)) ||
		float64(m.size+1) >= float64(len(m.entries))*mapLoadFactor {
		m.resize(len(m.entries) * 2)
		bucket = int(hash % uint64(len(m.buckets)))
	}
	i := m.allocate()
	m.entries[i] = mapEntry[K, V]{
		hash:  hash,
		next:  m.buckets[bucket] - 1,
		key:   weak.Make(key),
		value: value,
	}
	m.buckets[bucket] = i + 1
	m.size++
}

func (m *WeakStrongMap[K, V]) allocate() int {
	if m.freeList >= 0 {
		i := m.freeList
		m.freeList = m.entries[i].next
		return i
	}
	i := m.count
	m.count++
	return i
}

// unlink removes entry index from the chain of bucket and pushes it on the
// free list.
func (m *WeakStrongMap[K, V]) unlink(bucket, index, prev int) {
	e := &m.entries[index]
	if prev < 0 {
		m.buckets[bucket] = e.next + 1
	} else {
		m.entries[prev].next = e.next
	}
	*e = mapEntry[K, V]{next: m.freeList}
	m.freeList = index
	m.size--
}

// resize rebuilds the table with the smallest prime capacity that is at
// least max(newSize, 2*Size), carrying over only entries with a live key.
func (m *WeakStrongMap[K, V]) resize(newSize int) {
	newSize = GetPrime(max(newSize, m.size*2))
	buckets := make([]int, newSize)
	entries := make([]mapEntry[K, V], newSize)
	n := 0
	for i := 0; i < m.count; i++ {
		e := m.entries[i]
		if m.r.resolve(e.key) == nil {
			continue
		}
		b := e.hash % uint64(newSize)
		e.next = buckets[b] - 1
		buckets[b] = n + 1
		entries[n] = e
		n++
	}
	m.logger.Debug("weak map resized",
		zap.Int("old_capacity", len(m.entries)),
		zap.Int("new_capacity", newSize),
		zap.Int("dropped", m.size-n))
	m.buckets = buckets
	m.entries = entries
	m.count = n
	m.size = n
	m.freeList = -1
}

func (m *WeakStrongMap[K, V]) reset(capacity int) {
	m.buckets = make([]int, capacity)
	m.entries = make([]mapEntry[K, V], capacity)
	m.count = 0
	m.size = 0
	m.freeList = -1
}
