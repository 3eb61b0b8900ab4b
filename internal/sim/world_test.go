package sim

import (
	"bytes"
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func quietConfig() Config {
	return Config{
		Ticks:        10,
		SpawnPerTick: 5,
		Groups:       3,
		Seed:         7,
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.Ticks = -1 },
		func(c *Config) { c.SpawnPerTick = -1 },
		func(c *Config) { c.Groups = 0 },
		func(c *Config) { c.DestroyRatio = 1.5 },
		func(c *Config) { c.DropRatio = -0.1 },
		func(c *Config) { c.GCEvery = -1 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := New(cfg, nil)
		assert.ErrorIs(t, err, errInvalidConfig, "case %d", i)
	}
}

func TestWorld_RunWithoutLossKeepsEverything(t *testing.T) {
	w, err := New(quietConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	r, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, r.Ticks)
	assert.Equal(t, 50, r.Spawned)
	assert.Equal(t, 50, r.Live)
	assert.Equal(t, 0, r.Dead)
	assert.LessOrEqual(t, r.Groups, 3)
	runtime.KeepAlive(w)
}

func TestWorld_DestroyedObjectsLeaveGroups(t *testing.T) {
	cfg := quietConfig()
	cfg.DestroyRatio = 1
	cfg.SweepEvery = 5
	w, err := New(cfg, nil)
	require.NoError(t, err)

	r, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r.Spawned, r.Destroyed)
	assert.Equal(t, 0, r.Live, "destroyed objects are still held but must not be visible")
	assert.Equal(t, 0, r.Dead, "the last tick swept")
	assert.Equal(t, 0, r.Groups, "empty groups are dropped by Sweep")
	assert.Equal(t, r.Spawned, r.Reclaimed)
}

func TestWorld_DroppedObjectsAreCollected(t *testing.T) {
	cfg := quietConfig()
	cfg.DropRatio = 1
	w, err := New(cfg, nil)
	require.NoError(t, err)

	r, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r.Spawned, r.Dropped)

	runtime.GC()
	w.Sweep()
	assert.Equal(t, 0, w.Groups().Len(), "after collection no group survives a sweep")
	assert.True(t, w.Weights().IsZero())
}

func TestWorld_BlockAndUnblockRestoreWeights(t *testing.T) {
	w, err := New(quietConfig(), nil)
	require.NoError(t, err)

	a, err := w.Spawn("g")
	require.NoError(t, err)
	b, err := w.Spawn("g")
	require.NoError(t, err)
	wa, wb := a.Weight, b.Weight

	n, err := w.Block("g")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, w.Blocked("g"))
	assert.Zero(t, a.Weight)
	assert.Zero(t, b.Weight)
	assert.Equal(t, 2, w.Weights().Size())

	n, err = w.Block("g")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "blocking twice must not overwrite the saved weight")

	c, err := w.Spawn("g")
	require.NoError(t, err)
	wc, ok := w.Weights().Load(c)
	require.True(t, ok, "objects spawned into a blocked group are blocked")
	assert.Zero(t, c.Weight)

	assert.Equal(t, 3, w.Unblock("g"))
	assert.False(t, w.Blocked("g"))
	assert.Equal(t, wa, a.Weight)
	assert.Equal(t, wb, b.Weight)
	assert.Equal(t, wc, c.Weight)
	assert.True(t, w.Weights().IsZero())
}

func TestWorld_DestroyedWhileBlocked(t *testing.T) {
	w, err := New(quietConfig(), nil)
	require.NoError(t, err)

	a, _ := w.Spawn("g")
	b, _ := w.Spawn("g")
	_, err = w.Block("g")
	require.NoError(t, err)

	a.Destroy()
	assert.Equal(t, 1, w.Weights().DeadKeyCount())
	assert.False(t, w.Weights().HasKey(a))

	assert.Equal(t, 1, w.Unblock("g"))
	assert.NotZero(t, b.Weight)
	assert.Positive(t, w.Sweep())
	assert.Equal(t, 0, w.Weights().Size())
	assert.Equal(t, []*Object{b}, w.Groups().Items("g"))
	runtime.KeepAlive(a)
}

func TestWorld_RunCanceled(t *testing.T) {
	w, err := New(quietConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := w.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.Ticks)
	assert.Equal(t, 0, r.Spawned)
}

func TestWorld_CollectorTracksGroups(t *testing.T) {
	cfg := quietConfig()
	cfg.Groups = 1
	w, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = w.Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	w.Collector().WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `weakc_bag_alive{name="group-0"} 50`)
	assert.Contains(t, buf.String(), `weakc_map_linked{name="saved_weights"}`)
}

func TestReport_Render(t *testing.T) {
	cfg := quietConfig()
	cfg.Ticks = 4
	cfg.SpawnPerTick = 300
	cfg.SweepEvery = 2
	w, err := New(cfg, nil)
	require.NoError(t, err)
	r, err := w.Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, false))
	out := buf.String()
	assert.Contains(t, out, "weakc simulation")
	assert.Contains(t, out, "1,200", "numbers are grouped")
	assert.Contains(t, out, "register")
	assert.Contains(t, out, "sweep")
	assert.NotContains(t, out, "\x1b[")

	buf.Reset()
	require.NoError(t, r.Render(&buf, true))
	assert.Contains(t, buf.String(), "weakc simulation")
}

func TestWorld_GaugesFollowRecreatedGroup(t *testing.T) {
	w, err := New(quietConfig(), nil)
	require.NoError(t, err)

	a, err := w.Spawn("custom")
	require.NoError(t, err)
	a.Destroy()
	w.Sweep()
	require.False(t, w.Groups().Has("custom"))
	assert.False(t, w.Collector().Registered("custom"), "gauges of a dropped group are removed")

	b, err := w.Spawn("custom")
	require.NoError(t, err)

	var buf bytes.Buffer
	w.Collector().WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `weakc_bag_alive{name="custom"} 1`)
	assert.Contains(t, buf.String(), `weakc_bag_slots{name="custom"} 1`)
	runtime.KeepAlive(b)
}

func TestWorld_GaugesRebindAfterExternalDrop(t *testing.T) {
	w, err := New(quietConfig(), nil)
	require.NoError(t, err)

	a1, err := w.Spawn("custom")
	require.NoError(t, err)
	a2, err := w.Spawn("custom")
	require.NoError(t, err)
	require.True(t, w.Groups().Drop("custom"))

	b, err := w.Spawn("custom")
	require.NoError(t, err)

	var buf bytes.Buffer
	w.Collector().WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `weakc_bag_alive{name="custom"} 1`)
	assert.Contains(t, buf.String(), `weakc_bag_slots{name="custom"} 1`)
	runtime.KeepAlive(a1)
	runtime.KeepAlive(a2)
	runtime.KeepAlive(b)
}
