// Package weakc provides collections that observe externally-owned objects
// without keeping them alive: WeakBag, an unordered deduplicating set of
// weak pointers, and WeakStrongMap, a hash map with weak keys and strong
// values. Entries whose target was collected, or destroyed by its owner,
// disappear from lookups and iteration and their slots are reclaimed.
//
// The collections are not safe for concurrent use. All calls must come from
// the goroutine that owns the collection.
package weakc

import (
	"fmt"
	"weak"
)

// Destroyable is implemented by objects whose owner can tear them down
// while Go references to them still exist. A destroyed object is treated
// as dead by every collection even though its weak pointer still resolves.
type Destroyable interface {
	IsDestroyed() bool
}

// Liveness reports whether a resolved, non-nil target is still usable.
type Liveness[T any] func(*T) bool

// DefaultLiveness returns the liveness check used when none is configured.
// If *T implements Destroyable the check rejects destroyed objects,
// otherwise it returns nil and a successful resolve is enough.
func DefaultLiveness[T any]() Liveness[T] {
	if _, ok := any((*T)(nil)).(Destroyable); !ok {
		return nil
	}
	return func(p *T) bool {
		return !any(p).(Destroyable).IsDestroyed()
	}
}

// resolver turns weak pointers into usable strong pointers.
type resolver[T any] struct {
	alive Liveness[T]
}

func newResolver[T any](cfg *Config) resolver[T] {
	switch fn := cfg.liveness.(type) {
	case nil:
		return resolver[T]{alive: DefaultLiveness[T]()}
	case Liveness[T]:
		return resolver[T]{alive: fn}
	case func(*T) bool:
		return resolver[T]{alive: fn}
	default:
		panic(fmt.Sprintf("weakc: liveness %T does not match element type %T", fn, (*T)(nil)))
	}
}

// resolve returns the target of w, or nil if it was collected or destroyed.
func (r resolver[T]) resolve(w weak.Pointer[T]) *T {
	p := w.Value()
	if p == nil {
		return nil
	}
	if r.alive != nil && !r.alive(p) {
		return nil
	}
	return p
}
