package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llxisdsh/weakc"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Cleanup(func() { weakc.SetLogger(nil) })
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "weakc v"+Version+"\n", execute(t, "version"))
}

func TestSim(t *testing.T) {
	out := execute(t, "sim", "--ticks", "5", "--spawn", "20", "--groups", "2", "--metrics")
	assert.Contains(t, out, "weakc simulation")
	assert.Contains(t, out, "spawned")
	assert.Contains(t, out, "100")
	assert.Contains(t, out, `weakc_map_capacity{name="saved_weights"}`)
	assert.NotContains(t, out, "\x1b[", "a buffer is not a terminal")
}

func TestSimEnv(t *testing.T) {
	t.Setenv("WEAKC_TICKS", "2")
	t.Setenv("WEAKC_SPAWN", "7")
	out := execute(t, "sim", "--drop-ratio", "0", "--destroy-ratio", "0")
	assert.Regexp(t, `(?m)^spawned\s+14$`, out)
	assert.Regexp(t, `(?m)^ticks\s+2$`, out)
}

func TestSimInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"sim", "--groups", "0"})
	assert.Error(t, cmd.Execute())
}

func TestSimInvalidLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"sim", "--log-level", "loud"})
	assert.ErrorContains(t, cmd.Execute(), "invalid log level")
}
