// Package weakmetrics exports WeakBag and WeakStrongMap diagnostics as
// Prometheus gauges.
package weakmetrics

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/VictoriaMetrics/metrics"

	"github.com/llxisdsh/weakc"
)

// BagSource is implemented by *weakc.WeakBag.
type BagSource interface {
	Stats() weakc.BagStats
}

// MapSource is implemented by *weakc.WeakStrongMap.
type MapSource interface {
	Stats() weakc.MapStats
}

// Kind is the collection type behind a registered name.
type Kind string

const (
	KindBag Kind = "bag"
	KindMap Kind = "map"
)

// Collector owns a metrics set with one group of gauges per registered
// collection.
//
// Gauges are evaluated by WritePrometheus on the calling goroutine. The
// collections are not safe for concurrent use, so WritePrometheus must run
// on the goroutine that owns them. Each collection's Stats is taken once
// per WritePrometheus call and shared by all of its gauges.
type Collector struct {
	prefix string
	set    *metrics.Set

	mu     sync.Mutex
	scrape uint64 // bumped by every WritePrometheus
	names  map[string]registration
}

type registration struct {
	kind    Kind
	metrics []string
}

// snapshot caches a Stats result for the duration of one scrape.
type snapshot[S any] struct {
	stats func() S
	gen   uint64
	value S
}

func (s *snapshot[S]) get(gen uint64) S {
	if s.gen != gen {
		s.value = s.stats()
		s.gen = gen
	}
	return s.value
}

// NewCollector creates a Collector whose metric names start with prefix.
func NewCollector(prefix string) *Collector {
	if prefix == "" {
		prefix = "weakc"
	}
	return &Collector{
		prefix: prefix,
		set:    metrics.NewSet(),
		names:  make(map[string]registration),
	}
}

// RegisterBag adds the gauges of a bag under name. It returns an error if
// name is already registered.
func (c *Collector) RegisterBag(name string, src BagSource) error {
	s := &snapshot[weakc.BagStats]{stats: src.Stats}
	return c.register(name, KindBag, map[string]func() float64{
		"alive":       func() float64 { return float64(s.get(c.scrape).Alive) },
		"dead":        func() float64 { return float64(s.get(c.scrape).Dead) },
		"free":        func() float64 { return float64(s.get(c.scrape).Free) },
		"slots":       func() float64 { return float64(s.get(c.scrape).Slots) },
		"capacity":    func() float64 { return float64(s.get(c.scrape).Capacity) },
		"load_factor": func() float64 { return s.get(c.scrape).LoadFactor },
	})
}

// RegisterMap adds the gauges of a map under name. It returns an error if
// name is already registered.
func (c *Collector) RegisterMap(name string, src MapSource) error {
	s := &snapshot[weakc.MapStats]{stats: src.Stats}
	return c.register(name, KindMap, map[string]func() float64{
		"linked":      func() float64 { return float64(s.get(c.scrape).Linked) },
		"dead":        func() float64 { return float64(s.get(c.scrape).Dead) },
		"free":        func() float64 { return float64(s.get(c.scrape).Free) },
		"entries":     func() float64 { return float64(s.get(c.scrape).Entries) },
		"capacity":    func() float64 { return float64(s.get(c.scrape).Capacity) },
		"load_factor": func() float64 { return s.get(c.scrape).LoadFactor },
	})
}

// Unregister removes the gauges registered under name and reports whether
// there were any.
func (c *Collector) Unregister(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.names[name]
	if !ok {
		return false
	}
	for _, m := range reg.metrics {
		c.set.UnregisterMetric(m)
	}
	delete(c.names, name)
	return true
}

// Registered reports whether name has gauges.
func (c *Collector) Registered(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.names[name]
	return ok
}

// Names returns the sorted names registered with kind.
func (c *Collector) Names(kind Kind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for name, reg := range c.names {
		if reg.kind == kind {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// WritePrometheus writes every gauge in Prometheus text format to w.
func (c *Collector) WritePrometheus(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrape++
	c.set.WritePrometheus(w)
}

func (c *Collector) register(name string, kind Kind, gauges map[string]func() float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.names[name]; ok {
		return fmt.Errorf("weakmetrics: %q already registered", name)
	}
	metricNames := make([]string, 0, len(gauges))
	for suffix, fn := range gauges {
		m := fmt.Sprintf("%s_%s_%s{name=%q}", c.prefix, kind, suffix, name)
		c.set.NewGauge(m, fn)
		metricNames = append(metricNames, m)
	}
	c.names[name] = registration{kind: kind, metrics: metricNames}
	return nil
}
