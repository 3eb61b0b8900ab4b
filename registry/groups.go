// Package registry tracks externally-owned objects by string group id
// without keeping them alive. A group is created on the first Register and
// holds its members in a weakc.WeakBag.
package registry

import (
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/llxisdsh/weakc"
)

// defaultGroupPresize is the initial bag capacity of a new group.
const defaultGroupPresize = 4

// Groups maps group ids to weak bags of *T.
//
// The group index may be read from any goroutine. The bags themselves
// follow the weakc contract: Register, Unregister, Items, Range and Sweep
// must be called from the goroutine that owns the registry.
type Groups[T any] struct {
	index      *xsync.MapOf[string, *weakc.WeakBag[T]]
	bagOptions []func(*weakc.Config)
	logger     *zap.Logger
}

// Config defines configurable Groups options.
type Config struct {
	bagOptions []func(*weakc.Config)
	logger     *zap.Logger
}

// WithBagOptions sets the options every group bag is created with.
func WithBagOptions(options ...func(*weakc.Config)) func(*Config) {
	return func(c *Config) {
		c.bagOptions = append(c.bagOptions, options...)
	}
}

// WithLogger sets the logger of the registry and of its bags.
func WithLogger(l *zap.Logger) func(*Config) {
	return func(c *Config) {
		c.logger = l
	}
}

// NewGroups creates an empty registry.
func NewGroups[T any](options ...func(*Config)) *Groups[T] {
	var cfg Config
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = weakc.Logger()
	}
	bagOptions := []func(*weakc.Config){
		weakc.WithPresize(defaultGroupPresize),
		weakc.WithLogger(cfg.logger),
	}
	return &Groups[T]{
		index:      xsync.NewMapOf[string, *weakc.WeakBag[T]](),
		bagOptions: append(bagOptions, cfg.bagOptions...),
		logger:     cfg.logger,
	}
}

// Register adds item to group, creating the group if needed. It reports
// whether the item was not already a member. A nil item is rejected before
// the group is created.
func (g *Groups[T]) Register(group string, item *T) (bool, error) {
	if item == nil {
		return false, fmt.Errorf("registry: group %q: %w", group, weakc.ErrNilItem)
	}
	bag, _ := g.index.LoadOrCompute(group, func() *weakc.WeakBag[T] {
		return weakc.NewWeakBag[T](g.bagOptions...)
	})
	return bag.Add(item)
}

// Unregister removes item from group and reports whether it was a member.
func (g *Groups[T]) Unregister(group string, item *T) bool {
	bag, ok := g.index.Load(group)
	if !ok {
		return false
	}
	return bag.Remove(item)
}

// Contains reports whether item is a live member of group.
func (g *Groups[T]) Contains(group string, item *T) bool {
	bag, ok := g.index.Load(group)
	return ok && bag.Contains(item)
}

// Items sweeps group and returns its live members, or nil if the group
// does not exist.
func (g *Groups[T]) Items(group string) []*T {
	bag, ok := g.index.Load(group)
	if !ok {
		return nil
	}
	return bag.ToSlice()
}

// Range calls yield for each live member of group until yield returns
// false, without sweeping.
func (g *Groups[T]) Range(group string, yield func(item *T) bool) {
	if bag, ok := g.index.Load(group); ok {
		bag.Range(yield)
	}
}

// Lookup returns the bag of group.
func (g *Groups[T]) Lookup(group string) (*weakc.WeakBag[T], bool) {
	return g.index.Load(group)
}

// Has reports whether group exists. A group exists from its first Register
// until it is dropped, even if all its members died.
func (g *Groups[T]) Has(group string) bool {
	_, ok := g.index.Load(group)
	return ok
}

// Names returns the sorted group ids.
func (g *Groups[T]) Names() []string {
	names := make([]string, 0, g.index.Size())
	g.index.Range(func(name string, _ *weakc.WeakBag[T]) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// Len returns the number of groups.
func (g *Groups[T]) Len() int {
	return g.index.Size()
}

// Sweep sweeps every group and drops the groups left without members. It
// returns the number of slots reclaimed.
func (g *Groups[T]) Sweep() int {
	reclaimed := 0
	var empty []string
	g.index.Range(func(name string, bag *weakc.WeakBag[T]) bool {
		reclaimed += bag.Sweep()
		if bag.TotalSlots() == 0 {
			empty = append(empty, name)
		}
		return true
	})
	for _, name := range empty {
		g.index.Delete(name)
	}
	if len(empty) > 0 {
		g.logger.Debug("registry dropped empty groups",
			zap.Strings("groups", empty),
			zap.Int("reclaimed", reclaimed))
	}
	return reclaimed
}

// Drop removes group and reports whether it existed.
func (g *Groups[T]) Drop(group string) bool {
	_, ok := g.index.LoadAndDelete(group)
	return ok
}

// Clear removes every group.
func (g *Groups[T]) Clear() {
	g.index.Clear()
}

// Stats returns the diagnostics of every group keyed by id.
func (g *Groups[T]) Stats() map[string]weakc.BagStats {
	out := make(map[string]weakc.BagStats, g.index.Size())
	g.index.Range(func(name string, bag *weakc.WeakBag[T]) bool {
		out[name] = bag.Stats()
		return true
	})
	return out
}
