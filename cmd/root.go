package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/simerr"
)

// Exit codes. Config problems exit 2 so wrappers can tell a bad setup from a
// failed run.
const (
	exitFailure = 1
	exitConfig  = 2
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "dealgen",
	Short:         "Synthetic B2B sales and billing dataset generator",
	Long:          "Simulates deal creation, funnel progression and billing for a list of companies, writing reproducible sales and revenue tables for a given seed.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyLogFlags(cmd, &c.Log)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("dealgen: config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("store", cfg.Store.Driver),
			zap.Uint64("seed", cfg.Run.Seed),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("log-level", "", "log level: debug, info, warn or error (overrides log.level)")
	f.String("log-format", "", "log format: json, console or auto (overrides log.format)")
	f.String("log-file", "", "also write logs to this file, rotated (overrides log.file)")
}

// applyLogFlags copies explicitly set logging flags over the loaded config.
func applyLogFlags(cmd *cobra.Command, lc *config.LogConfig) {
	f := cmd.Flags()
	if f.Changed("log-level") {
		lc.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		lc.Format, _ = f.GetString("log-format")
	}
	if f.Changed("log-file") {
		lc.File, _ = f.GetString("log-file")
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case simerr.IsRange(err), simerr.IsConfiguration(err):
		return exitConfig
	default:
		return exitFailure
	}
}

// reportError prints err for the operator and returns the exit status.
func reportError(w io.Writer, err error) int {
	code := exitCode(err)
	if code != 0 {
		_, _ = fmt.Fprintf(w, "dealgen: %v\n", err)
	}
	return code
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}
