package sim

import (
	"errors"
	"fmt"
)

// Config defines a simulation run.
type Config struct {
	Ticks        int     // ticks to run
	SpawnPerTick int     // objects spawned each tick
	Groups       int     // number of group ids objects are spread over
	DestroyRatio float64 // per-tick chance a held object is destroyed
	DropRatio    float64 // per-tick chance a held object is dropped by the host
	GCEvery      int     // ticks between forced collections, 0 disables
	SweepEvery   int     // ticks between sweeps, 0 disables
	BlockEvery   int     // ticks between block/unblock toggles, 0 disables
	Seed         int64
}

// DefaultConfig returns the configuration used by the CLI defaults.
func DefaultConfig() Config {
	return Config{
		Ticks:        200,
		SpawnPerTick: 50,
		Groups:       8,
		DestroyRatio: 0.02,
		DropRatio:    0.05,
		GCEvery:      10,
		SweepEvery:   25,
		BlockEvery:   15,
		Seed:         1,
	}
}

var errInvalidConfig = errors.New("sim: invalid config")

// Validate checks the config ranges.
func (c Config) Validate() error {
	switch {
	case c.Ticks < 0:
		return fmt.Errorf("%w: ticks %d < 0", errInvalidConfig, c.Ticks)
	case c.SpawnPerTick < 0:
		return fmt.Errorf("%w: spawn %d < 0", errInvalidConfig, c.SpawnPerTick)
	case c.Groups <= 0:
		return fmt.Errorf("%w: groups %d <= 0", errInvalidConfig, c.Groups)
	case c.DestroyRatio < 0 || c.DestroyRatio > 1:
		return fmt.Errorf("%w: destroy ratio %v not in [0,1]", errInvalidConfig, c.DestroyRatio)
	case c.DropRatio < 0 || c.DropRatio > 1:
		return fmt.Errorf("%w: drop ratio %v not in [0,1]", errInvalidConfig, c.DropRatio)
	case c.GCEvery < 0 || c.SweepEvery < 0 || c.BlockEvery < 0:
		return fmt.Errorf("%w: negative interval", errInvalidConfig)
	}
	return nil
}
