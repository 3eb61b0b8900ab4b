package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/llxisdsh/weakc"
	"github.com/llxisdsh/weakc/internal/sim"
)

func newSimCmd(v *viper.Viper) *cobra.Command {
	simCmd := &cobra.Command{
		Use:   "sim",
		Short: "Run the host simulation",
		Long: `Run a simulated host that spawns objects into groups, destroys and
drops them, blocks and unblocks groups through a weak-key weight map and
sweeps on a schedule. Prints a report when done.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSim(cmd, v)
		},
	}

	d := sim.DefaultConfig()
	key := "ticks"
	simCmd.Flags().Int(key, d.Ticks, "number of ticks to run")
	key = "spawn"
	simCmd.Flags().Int(key, d.SpawnPerTick, "objects spawned per tick")
	key = "groups"
	simCmd.Flags().Int(key, d.Groups, "number of groups")
	key = "destroy-ratio"
	simCmd.Flags().Float64(key, d.DestroyRatio, "per-tick chance a held object is destroyed")
	key = "drop-ratio"
	simCmd.Flags().Float64(key, d.DropRatio, "per-tick chance a held object is dropped")
	key = "gc-every"
	simCmd.Flags().Int(key, d.GCEvery, "ticks between forced collections (0 disables)")
	key = "sweep-every"
	simCmd.Flags().Int(key, d.SweepEvery, "ticks between sweeps (0 disables)")
	key = "block-every"
	simCmd.Flags().Int(key, d.BlockEvery, "ticks between block/unblock toggles (0 disables)")
	key = "seed"
	simCmd.Flags().Int64(key, d.Seed, "random seed")
	key = "metrics"
	simCmd.Flags().Bool(key, false, "print collection gauges in Prometheus text format")
	key = "no-color"
	simCmd.Flags().Bool(key, false, "disable styled output")
	return simCmd
}

func runSim(cmd *cobra.Command, v *viper.Viper) error {
	logger, err := newLogger(v)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	weakc.SetLogger(logger)

	cfg := sim.Config{
		Ticks:        v.GetInt("ticks"),
		SpawnPerTick: v.GetInt("spawn"),
		Groups:       v.GetInt("groups"),
		DestroyRatio: v.GetFloat64("destroy-ratio"),
		DropRatio:    v.GetFloat64("drop-ratio"),
		GCEvery:      v.GetInt("gc-every"),
		SweepEvery:   v.GetInt("sweep-every"),
		BlockEvery:   v.GetInt("block-every"),
		Seed:         v.GetInt64("seed"),
	}
	world, err := sim.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	report, runErr := world.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	if err := report.Render(out, styled(out, v.GetBool("no-color"))); err != nil {
		return err
	}
	if v.GetBool("metrics") {
		fmt.Fprintln(out)
		world.Collector().WritePrometheus(out)
	}
	if runErr != nil {
		return fmt.Errorf("simulation interrupted: %w", runErr)
	}
	return nil
}

// styled reports whether out is a terminal that should get ANSI styling.
func styled(out any, noColor bool) bool {
	if noColor {
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
