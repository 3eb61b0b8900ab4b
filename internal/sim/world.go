package sim

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/llxisdsh/weakc"
	"github.com/llxisdsh/weakc/registry"
	"github.com/llxisdsh/weakc/weakmetrics"
)

// metric names
const (
	timerRegister = "register"
	timerIterate  = "iterate"
	timerBlock    = "block"
	timerUnblock  = "unblock"
	timerSweep    = "sweep"
	timerGC       = "gc"
	histReclaimed = "sweep.reclaimed"
)

const weightsMetricName = "saved_weights"

// World owns the simulated host state. It is not safe for concurrent use;
// Run drives it from a single goroutine.
type World struct {
	cfg     Config
	rng     *rand.Rand
	logger  *zap.Logger
	metrics gometrics.Registry

	groups    *registry.Groups[Object]
	weights   *weakc.WeakStrongMap[Object, float64] // original weights of blocked objects
	collector *weakmetrics.Collector

	held    []*Object // strong references kept by the host
	blocked map[string]bool
	bound   map[string]*weakc.WeakBag[Object] // bag each group's gauges read
	nextID  int

	spawned, destroyed, dropped, restored, reclaimed int
}

// New creates a World. A nil logger uses weakc.Logger().
func New(cfg Config, logger *zap.Logger) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = weakc.Logger()
	}
	w := &World{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		logger:    logger,
		metrics:   gometrics.NewRegistry(),
		groups:    registry.NewGroups[Object](registry.WithLogger(logger)),
		weights:   weakc.NewWeakStrongMap[Object, float64](weakc.WithLogger(logger)),
		collector: weakmetrics.NewCollector("weakc"),
		blocked:   make(map[string]bool),
		bound:     make(map[string]*weakc.WeakBag[Object]),
	}
	if err := w.collector.RegisterMap(weightsMetricName, w.weights); err != nil {
		return nil, err
	}
	return w, nil
}

// Groups returns the group registry.
func (w *World) Groups() *registry.Groups[Object] { return w.groups }

// Weights returns the map of saved weights.
func (w *World) Weights() *weakc.WeakStrongMap[Object, float64] { return w.weights }

// Collector returns the Prometheus collector of the world's collections.
func (w *World) Collector() *weakmetrics.Collector { return w.collector }

// Spawn creates an object in group, registers it and holds it strongly.
func (w *World) Spawn(group string) (*Object, error) {
	o := &Object{ID: w.nextID, Group: group, Weight: 1 + w.rng.Float64()*9}
	w.nextID++

	start := time.Now()
	if _, err := w.groups.Register(group, o); err != nil {
		return nil, err
	}
	gometrics.GetOrRegisterTimer(timerRegister, w.metrics).UpdateSince(start)

	if err := w.bindGauges(group); err != nil {
		return nil, err
	}
	if w.blocked[group] {
		if _, err := w.blockObject(o); err != nil {
			return nil, err
		}
	}
	w.held = append(w.held, o)
	w.spawned++
	return o, nil
}

// Block saves the weight of every live object of group and zeroes it. It
// returns the number of objects blocked. Objects already blocked are left
// alone.
func (w *World) Block(group string) (int, error) {
	defer gometrics.GetOrRegisterTimer(timerBlock, w.metrics).UpdateSince(time.Now())
	w.blocked[group] = true
	n := 0
	for _, o := range w.groups.Items(group) {
		ok, err := w.blockObject(o)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Unblock restores the saved weight of every live object of group. It
// returns the number of weights restored.
func (w *World) Unblock(group string) int {
	defer gometrics.GetOrRegisterTimer(timerUnblock, w.metrics).UpdateSince(time.Now())
	delete(w.blocked, group)
	n := 0
	w.groups.Range(group, func(o *Object) bool {
		if weight, ok := w.weights.LoadAndDelete(o); ok {
			o.Weight = weight
			n++
		}
		return true
	})
	w.restored += n
	return n
}

// Blocked reports whether group is blocked.
func (w *World) Blocked(group string) bool { return w.blocked[group] }

// Sweep sweeps every group and the weight map, and returns the number of
// slots and entries reclaimed.
func (w *World) Sweep() int {
	start := time.Now()
	n := w.groups.Sweep() + w.weights.Sweep()
	gometrics.GetOrRegisterTimer(timerSweep, w.metrics).UpdateSince(start)
	gometrics.GetOrRegisterHistogram(histReclaimed, w.metrics, gometrics.NewUniformSample(1028)).Update(int64(n))
	w.reclaimed += n

	for _, name := range w.collector.Names(weakmetrics.KindBag) {
		if !w.groups.Has(name) {
			w.collector.Unregister(name)
			delete(w.bound, name)
		}
	}
	return n
}

// Run executes cfg.Ticks ticks. It stops between ticks when ctx is done
// and returns the report so far with ctx.Err().
func (w *World) Run(ctx context.Context) (Report, error) {
	w.logger.Info("simulation started",
		zap.Int("ticks", w.cfg.Ticks),
		zap.Int("spawn_per_tick", w.cfg.SpawnPerTick),
		zap.Int("groups", w.cfg.Groups),
		zap.Int64("seed", w.cfg.Seed))
	start := time.Now()
	for tick := 1; tick <= w.cfg.Ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return w.report(tick-1, time.Since(start)), err
		}
		if err := w.tick(tick); err != nil {
			return w.report(tick-1, time.Since(start)), fmt.Errorf("tick %d: %w", tick, err)
		}
	}
	r := w.report(w.cfg.Ticks, time.Since(start))
	w.logger.Info("simulation finished",
		zap.Int("live", r.Live),
		zap.Int("reclaimed", r.Reclaimed),
		zap.Duration("elapsed", r.Elapsed))
	return r, nil
}

func (w *World) tick(tick int) error {
	for i := 0; i < w.cfg.SpawnPerTick; i++ {
		if _, err := w.Spawn(w.groupName(w.rng.Intn(w.cfg.Groups))); err != nil {
			return err
		}
	}

	kept := w.held[:0]
	for _, o := range w.held {
		if !o.destroyed && w.rng.Float64() < w.cfg.DestroyRatio {
			o.Destroy()
			w.destroyed++
		}
		if w.rng.Float64() < w.cfg.DropRatio {
			w.dropped++
			continue
		}
		kept = append(kept, o)
	}
	clear(w.held[len(kept):])
	w.held = kept

	start := time.Now()
	for g := 0; g < w.cfg.Groups; g++ {
		w.groups.Range(w.groupName(g), func(*Object) bool { return true })
	}
	gometrics.GetOrRegisterTimer(timerIterate, w.metrics).UpdateSince(start)

	if every(tick, w.cfg.BlockEvery) {
		group := w.groupName(w.rng.Intn(w.cfg.Groups))
		if w.blocked[group] {
			n := w.Unblock(group)
			w.logger.Debug("group unblocked", zap.String("group", group), zap.Int("restored", n))
		} else {
			n, err := w.Block(group)
			if err != nil {
				return err
			}
			w.logger.Debug("group blocked", zap.String("group", group), zap.Int("saved", n))
		}
	}
	if every(tick, w.cfg.GCEvery) {
		start := time.Now()
		runtime.GC()
		gometrics.GetOrRegisterTimer(timerGC, w.metrics).UpdateSince(start)
	}
	if every(tick, w.cfg.SweepEvery) {
		n := w.Sweep()
		w.logger.Debug("world swept", zap.Int("tick", tick), zap.Int("reclaimed", n))
	}
	return nil
}

// blockObject saves the weight of o and zeroes it unless o is already
// blocked.
func (w *World) blockObject(o *Object) (bool, error) {
	_, loaded, err := w.weights.LoadOrStore(o, o.Weight)
	if err != nil || loaded {
		return false, err
	}
	o.Weight = 0
	return true, nil
}

func (w *World) groupName(i int) string {
	return fmt.Sprintf("group-%d", i)
}

// bindGauges points the gauges of group at its current bag. A group
// dropped and registered again gets a new bag, so the old gauges are
// replaced.
func (w *World) bindGauges(group string) error {
	bag, ok := w.groups.Lookup(group)
	if !ok || w.bound[group] == bag {
		return nil
	}
	w.collector.Unregister(group)
	if err := w.collector.RegisterBag(group, bag); err != nil {
		return err
	}
	w.bound[group] = bag
	return nil
}

func every(tick, n int) bool {
	return n > 0 && tick%n == 0
}
