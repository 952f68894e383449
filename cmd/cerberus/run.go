package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cerberus/internal/config"
	"cerberus/internal/logging"
	"cerberus/internal/matrix"
	"cerberus/internal/model"
	"cerberus/internal/parser"
	"cerberus/internal/runner"
)

var (
	runWave        string
	runTier        string
	runReviewer    string
	runBinary      string
	runDiffPath    string
	runPromptsDir  string
	runOutDir      string
	runAPIKeyEnv   string
	runPRTitle     string
	runPRAuthor    string
	runPRBase      string
	runPRHead      string
	runPRBody      string
	runAgentConfig string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one or more reviewer tasks against a diff and write verdict artifacts",
	Long: `run expands the reviewer roster via the Matrix Expander (C2) and invokes
the Reviewer Runner (C3) plus Output Parser (C4) for each resulting task. Every
reviewer task runs in its own goroutine via errgroup, matching the
process-level isolation CI gives each matrix job; each task writes exactly
one ReviewerVerdict artifact to --out-dir.

Pass --reviewer to run a single task (the normal CI-matrix-job shape).
Omit it to fan out over the whole roster (or the selected --wave) locally.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runWave, "wave", "", "run only this wave's reviewers")
	runCmd.Flags().StringVar(&runTier, "tier", "", "model tier selector (flash|standard|pro)")
	runCmd.Flags().StringVar(&runReviewer, "reviewer", "", "run only this reviewer codename (the normal CI-matrix-job shape)")
	runCmd.Flags().StringVar(&runBinary, "cli", "llm-review", "the LLM CLI binary to invoke (spec §6.3)")
	runCmd.Flags().StringVar(&runDiffPath, "diff", "", "path to the PR diff artifact (required)")
	runCmd.Flags().StringVar(&runPromptsDir, "prompts-dir", "prompts", "directory of trusted per-perspective system prompt files")
	runCmd.Flags().StringVar(&runOutDir, "out-dir", ".cerberus/artifacts", "directory to write verdict artifacts into")
	runCmd.Flags().StringVar(&runAPIKeyEnv, "api-key-env", "", "KEY=VALUE to export as the model API key")
	runCmd.Flags().StringVar(&runPRTitle, "pr-title", "", "PR title (untrusted)")
	runCmd.Flags().StringVar(&runPRAuthor, "pr-author", "", "PR author login (untrusted)")
	runCmd.Flags().StringVar(&runPRBase, "pr-base", "", "PR base branch")
	runCmd.Flags().StringVar(&runPRHead, "pr-head", "", "PR head branch")
	runCmd.Flags().StringVar(&runPRBody, "pr-body", "", "PR description (untrusted)")
	runCmd.Flags().StringVar(&runAgentConfig, "agent-config", "", "trusted agent-definition file to stage into the workspace for CLI auto-discovery (spec §4.3.2)")
	runCmd.MarkFlagRequired("diff")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	runID := uuid.NewString()
	rlog := logging.WithRequestID(logging.CategoryRunner, runID)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		return err
	}

	tasks, err := matrix.Expand(cfg, runWave, runTier)
	if err != nil {
		return err
	}
	if runReviewer != "" {
		tasks = filterByReviewer(tasks, runReviewer)
		if len(tasks) == 0 {
			return fmt.Errorf("cerberus: unknown reviewer %q (or not in selected wave)", runReviewer)
		}
	}

	diffBytes, err := os.ReadFile(runDiffPath)
	if err != nil {
		return fmt.Errorf("cerberus: read diff %s: %w", runDiffPath, err)
	}
	diffContent := string(diffBytes)

	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return fmt.Errorf("cerberus: create out-dir: %w", err)
	}
	scratchBase, err := os.MkdirTemp("", "cerberus-scratch-*")
	if err != nil {
		return fmt.Errorf("cerberus: create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchBase)

	prMeta := runner.PRMetadata{
		Title:      runPRTitle,
		Author:     runPRAuthor,
		BaseBranch: runPRBase,
		HeadBranch: runPRHead,
		Body:       runPRBody,
	}

	var stageFiles []runner.StagedFile
	if runAgentConfig != "" {
		stageFiles = []runner.StagedFile{
			{TargetPath: filepath.Join(".cerberus", "agent.json"), SourcePath: runAgentConfig},
		}
	}

	logger.Info("run starting", zap.String("run_id", runID), zap.Int("tasks", len(tasks)))

	// Fan out one goroutine per reviewer task, mirroring each matrix job's
	// process-level isolation in CI (spec §5 scheduling model). Each task
	// writes to its own perspective-scoped artifact path; there is no
	// shared mutable state between reviewers (spec §5(b)).
	eg, egCtx := errgroup.WithContext(ctx)

	for _, task := range tasks {
		task := task
		eg.Go(func() error {
			timer := logging.StartTimer(logging.CategoryRunner, "task:"+task.Perspective)
			defer timer.Stop()

			profile, err := cfg.GetReviewer(task.Codename)
			if err != nil {
				return err
			}

			sysPrompt, _ := os.ReadFile(filepath.Join(runPromptsDir, task.Perspective+".md"))

			primary, err := cfg.ResolveModel(task.Codename, task.ModelTier, task.ModelWave, "", config.DefaultPoolSelector)
			if err != nil {
				return err
			}
			models := append([]string{primary}, cfg.Model.Fallback...)

			deps := runner.Deps{
				Invoker:      runner.OSInvoker{},
				Binary:       runBinary,
				APIKeyEnv:    runAPIKeyEnv,
				WorkDir:      workspace,
				ScratchDir:   scratchBase,
				SystemPrompt: string(sysPrompt),
				PR:           prMeta,
				DiffPath:     runDiffPath,
				DiffContent:  diffContent,
				TotalTimeout: opTimeout,
				WatchEnabled: true,
				StageFiles:   stageFiles,
			}

			rtask := runner.Task{Codename: task.Codename, Perspective: task.Perspective}
			desc, err := runner.Run(egCtx, rtask, *profile, models, deps)
			if err != nil {
				rlog.Error("reviewer %s failed with a programmer error: %v", task.Codename, err)
				return err
			}

			v := parser.Parse(task.Codename, task.Perspective, desc)

			outPath := filepath.Join(runOutDir, task.Perspective+".json")
			if err := writeVerdict(outPath, v); err != nil {
				return err
			}
			logger.Info("task finished", zap.String("perspective", task.Perspective), zap.String("verdict", string(v.Verdict)))
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	return nil
}

func filterByReviewer(tasks []matrix.Task, codename string) []matrix.Task {
	var out []matrix.Task
	for _, t := range tasks {
		if t.Codename == codename {
			out = append(out, t)
		}
	}
	return out
}

func writeVerdict(path string, v model.ReviewerVerdict) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cerberus: marshal verdict: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cerberus: write verdict %s: %w", path, err)
	}
	return nil
}
