package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cerberus/internal/aggregator"
	"cerberus/internal/config"
	"cerberus/internal/model"
	"cerberus/internal/prstate"
)

var (
	aggregateArtifactsDir   string
	aggregatePRState        string
	aggregateOut            string
	aggregateDiffPath       string
	aggregateInlineOut      string
	aggregateInlineMax      int
	aggregateFailOnVerdict  bool
	aggregateFailOnSkip     bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Combine per-reviewer verdict artifacts into one CerberusVerdict",
	Long: `aggregate reads every *.json ReviewerVerdict artifact in --artifacts-dir
plus a PRState snapshot document (produced by the out-of-scope CI wrapper,
spec §1/§9) and applies the §4.5 decision rule, override authorization, and
wave-gating predicate to emit a single CerberusVerdict.

Exit codes follow spec §6.7: 0 for PASS/WARN (or when --fail-on-verdict is
false), 1 for FAIL (or SKIP with --fail-on-skip), 2 for a configuration or
invocation error.`,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateArtifactsDir, "artifacts-dir", ".cerberus/artifacts", "directory of ReviewerVerdict JSON artifacts")
	aggregateCmd.Flags().StringVar(&aggregatePRState, "pr-state", "", "path to a PRState snapshot JSON document (required)")
	aggregateCmd.Flags().StringVar(&aggregateOut, "out", "", "path to write the CerberusVerdict JSON (default: stdout only)")
	aggregateCmd.Flags().BoolVar(&aggregateFailOnVerdict, "fail-on-verdict", true, "exit 1 when the cerberus verdict is FAIL")
	aggregateCmd.Flags().BoolVar(&aggregateFailOnSkip, "fail-on-skip", false, "also exit 1 when the cerberus verdict is SKIP")
	aggregateCmd.Flags().StringVar(&aggregateDiffPath, "diff", "", "path to the PR diff artifact, required to emit inline review comments (spec §4.5.4)")
	aggregateCmd.Flags().StringVar(&aggregateInlineOut, "inline-comments-out", "", "path to write the diff-anchored inline comment list (default: skip)")
	aggregateCmd.Flags().IntVar(&aggregateInlineMax, "inline-comments-max", 30, "cap on the number of inline comments emitted")
	aggregateCmd.MarkFlagRequired("pr-state")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		return err
	}

	pr, err := prstate.LoadSnapshot(aggregatePRState)
	if err != nil {
		return err
	}

	verdicts, err := loadVerdicts(aggregateArtifactsDir)
	if err != nil {
		return err
	}
	aggregator.AnnotateCriticality(cfg, verdicts)

	cv, err := aggregator.Aggregate(ctx, cfg, verdicts, pr)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cv, "", "  ")
	if err != nil {
		return fmt.Errorf("cerberus: marshal cerberus verdict: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if aggregateOut != "" {
		if err := os.WriteFile(aggregateOut, data, 0o644); err != nil {
			return fmt.Errorf("cerberus: write %s: %w", aggregateOut, err)
		}
	}

	if aggregateInlineOut != "" {
		if aggregateDiffPath == "" {
			return fmt.Errorf("cerberus: --inline-comments-out requires --diff")
		}
		diffBytes, err := os.ReadFile(aggregateDiffPath)
		if err != nil {
			return fmt.Errorf("cerberus: read diff %s: %w", aggregateDiffPath, err)
		}
		inline := aggregator.InlineComments(cv, string(diffBytes), aggregateInlineMax)
		inlineData, err := json.MarshalIndent(inline, "", "  ")
		if err != nil {
			return fmt.Errorf("cerberus: marshal inline comments: %w", err)
		}
		if err := os.WriteFile(aggregateInlineOut, inlineData, 0o644); err != nil {
			return fmt.Errorf("cerberus: write %s: %w", aggregateInlineOut, err)
		}
		logger.Info("inline comments written", zap.Int("count", len(inline)))
	}

	logger.Info("cerberus verdict", zap.String("verdict", string(cv.Verdict)))

	switch cv.Verdict {
	case model.VerdictFail:
		if aggregateFailOnVerdict {
			os.Exit(1)
		}
	case model.VerdictSkip:
		if aggregateFailOnSkip {
			os.Exit(1)
		}
	}
	return nil
}

func loadVerdicts(dir string) ([]model.ReviewerVerdict, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cerberus: read artifacts dir %s: %w", dir, err)
	}
	var out []model.ReviewerVerdict
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("cerberus: read artifact %s: %w", e.Name(), err)
		}
		var v model.ReviewerVerdict
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("cerberus: parse artifact %s: %w", e.Name(), err)
		}
		out = append(out, v)
	}
	return out, nil
}
