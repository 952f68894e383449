// Package main implements the cerberus CLI: the pull-request review gate
// that runs multiple specialized LLM reviewers in parallel against a PR
// diff and aggregates their structured verdicts into a single merge
// decision.
//
// # File Index
//
//   - main.go     - entry point, rootCmd, global flags
//   - run.go      - `cerberus run` — matrix expand + reviewer fan-out + parse
//   - aggregate.go - `cerberus aggregate` — combine verdict artifacts into one decision
//   - triage.go   - `cerberus triage` — circuit-breaker guard over PR history
//   - render.go   - `cerberus render` — local terminal preview of a verdict
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cerberus/internal/logging"
)

var (
	// Global flags.
	verbose      bool
	configPath   string
	workspace    string
	opTimeout    time.Duration

	// logger is the CLI-edge structured logger (spec §10.1).
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cerberus",
	Short: "Cerberus — a multi-reviewer PR gate",
	Long: `Cerberus runs multiple specialized LLM reviewers in parallel against a
pull-request diff and aggregates their structured verdicts into a single
merge decision.

It is designed to run as one job per reviewer in a CI matrix: "cerberus run"
produces one verdict artifact per invocation, "cerberus aggregate" combines
all of them (plus live PR override comments) into a single cerberus-level
verdict, and "cerberus triage" decides whether a failing PR should trigger
an automated fix attempt.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		workspace = ws

		debug := verbose || os.Getenv("CERBERUS_DEBUG_LOG") == "1"
		if err := logging.Initialize(ws, debug, levelName()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func levelName() string {
	if verbose {
		return "debug"
	}
	return "info"
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose/debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cerberus.yaml", "path to the reviewer roster document")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&opTimeout, "timeout", 600*time.Second, "per-reviewer wall-clock timeout (T_total)")

	rootCmd.AddCommand(runCmd, aggregateCmd, triageCmd, renderCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		// exit code 2: configuration or invocation error (spec §6.7).
		os.Exit(2)
	}
}
