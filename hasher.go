package weakc

import "hash/maphash"

// Hasher defines the hash function and the equivalence relation a
// WeakStrongMap uses for its keys. Hash and Equal must be consistent: if
// Equal(x, y) is true then Hash must return the same value for x and y.
//
// The map captures Hash(key) when the entry is inserted and keeps it for
// the lifetime of the entry, so the hashed state of a key must not change
// while it is stored.
type Hasher[K any] interface {
	Hash(key *K) uint64
	Equal(a, b *K) bool
}

// IdentityHasher returns a Hasher that compares keys by pointer identity.
// This is the default for NewWeakStrongMap.
func IdentityHasher[K any]() Hasher[K] {
	return identityHasher[K]{seed: maphash.MakeSeed()}
}

type identityHasher[K any] struct {
	seed maphash.Seed
}

func (h identityHasher[K]) Hash(key *K) uint64 {
	return maphash.Comparable(h.seed, key)
}

func (identityHasher[K]) Equal(a, b *K) bool {
	return a == b
}

// ValueHasher returns a Hasher that compares keys by the value they point
// to, so two distinct objects with equal contents address the same entry.
func ValueHasher[K comparable]() Hasher[K] {
	return valueHasher[K]{seed: maphash.MakeSeed()}
}

type valueHasher[K comparable] struct {
	seed maphash.Seed
}

func (h valueHasher[K]) Hash(key *K) uint64 {
	return maphash.Comparable(h.seed, *key)
}

func (valueHasher[K]) Equal(a, b *K) bool {
	return *a == *b
}

// HasherFunc builds a Hasher from a pair of functions.
func HasherFunc[K any](hash func(key *K) uint64, equal func(a, b *K) bool) Hasher[K] {
	return funcHasher[K]{hash: hash, equal: equal}
}

type funcHasher[K any] struct {
	hash  func(key *K) uint64
	equal func(a, b *K) bool
}

func (h funcHasher[K]) Hash(key *K) uint64 {
	return h.hash(key)
}

func (h funcHasher[K]) Equal(a, b *K) bool {
	return h.equal(a, b)
}
