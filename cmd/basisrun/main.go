package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/basisrun/internal/config"
	applog "github.com/sawpanic/basisrun/internal/log"
)

const (
	appName = "basisrun"
	version = "v0.4.0"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Majors-vs-alts regime and carry backtesting",
		Version: version,
		Long: `basisrun classifies the majors-vs-alts regime from daily features, sizes a
long-majors / short-alts book that is dollar or beta neutral, and simulates it
with funding carry and trading costs.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newBacktestCmd(),
		newSweepCmd(),
		newFundingCmd(),
		newCompareCmd(),
		newMonitorCmd(),
	)
	return rootCmd
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "basisrun.yaml", "Path to the YAML run configuration")
	fs.String("env-file", "", "Optional KEY=VALUE file loaded before the config (default ./.env if present)")
	fs.String("log-level", "", "Override log level (trace|debug|info|warn|error)")
	fs.String("log-format", "", "Override log format (auto|console|json)")
}

// setupLogging installs a logger from flags only; commands that load a
// config re-run it with the file's log section
func setupLogging(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	return applyLogConfig(cmd, applog.Config{Level: "info", Format: applog.FormatAuto})
}

func applyLogConfig(cmd *cobra.Command, cfg applog.Config) error {
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Format = applog.Format(v)
	}
	return applog.Setup(cfg)
}

// loadConfig reads --config and reapplies logging from it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyLogConfig(cmd, cfg.Log); err != nil {
		return nil, err
	}
	log.Debug().Str("config", path).Msg("Configuration loaded")
	return cfg, nil
}

// signalContext is cancelled on SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func versionString() string {
	return fmt.Sprintf("%s %s", appName, version)
}
