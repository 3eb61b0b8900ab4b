package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	Version = "0.1.0"
)

// newRootCmd builds the command tree. Each call gets its own viper
// instance so flags, env and .env files are resolved per invocation.
func newRootCmd() *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "weakc",
		Short: "weak reference collections",
		Long: fmt.Sprintf(`weakc (v%s)

Weak bags and weak-key maps that also treat destroyed objects as dead.
Flags can be set via environment variables WEAKC_<flag>
(e.g. WEAKC_LOG_LEVEL=debug), also read from .env and .env.local.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			initConfig(v)
			return v.BindPFlags(cmd.Flags())
		},
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of weakc",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "weakc v%s\n", Version)
		},
	}

	key := "log-level"
	rootCmd.PersistentFlags().String(key, "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newSimCmd(v))
	return rootCmd
}

// initConfig loads env files and wires environment variables into v.
func initConfig(v *viper.Viper) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix("weakc")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// newLogger builds a console logger at the configured level.
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(v.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", v.GetString("log-level"), err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.DisableStacktrace = true
	return cfg.Build()
}
