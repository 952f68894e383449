// Package runner implements the Reviewer Runner (C3): rendering a prompt,
// invoking the external LLM CLI with timeout/retry/fallback handling, and
// salvaging the best available output artifact for the parser to read.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cerberus/internal/logging"
	"cerberus/internal/model"
)

// The runner's fenced "```json" block regexp (jsonFenceRe, salvage.go) only
// detects whether an artifact holds a block; the parser package keeps its
// own copy of the pattern and does the extraction.

// backoffSchedule is the inner-loop per-model retry backoff (spec §4.3.3):
// 2s, 4s, 8s, capped at the last value for any further attempt.
var backoffSchedule = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

const maxInnerRetries = 3

// Task identifies one reviewer invocation to run.
type Task struct {
	Codename    string
	Perspective string
}

// Deps bundles the runner's external dependencies so tests can substitute
// fakes without touching the real filesystem or spawning processes.
type Deps struct {
	Invoker       Invoker
	Binary        string
	APIKeyEnv     string // e.g. "ANTHROPIC_API_KEY=sk-..."
	WorkDir       string
	ScratchDir    string // base temp dir for perspective-scoped scratchpads
	SystemPrompt  string // read from trusted on-disk file by the caller
	PR            PRMetadata
	DiffPath      string
	DiffContent   string // used only for fast-path inlining
	Now           func() time.Time
	Sleep         func(time.Duration)
	TotalTimeout  time.Duration // T_total, default 600s
	WatchEnabled  bool

	// StageFiles, when non-empty and WorkDir is a consumer checkout,
	// are staged into WorkDir before invocation and restored on every
	// exit path (spec §4.3.2's scoped working tree).
	StageFiles []StagedFile
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) sleep(dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	time.Sleep(dur)
}

// fastPathBudget computes T_fastpath = clamp(T_total/5, 60, 120), or 0 when
// T_total < 120s (spec §4.3.2).
func fastPathBudget(total time.Duration) time.Duration {
	if total < 120*time.Second {
		return 0
	}
	fp := total / 5
	if fp < 60*time.Second {
		fp = 60 * time.Second
	}
	if fp > 120*time.Second {
		fp = 120 * time.Second
	}
	return fp
}

// ArtifactDescriptor is the one-way handoff from runner to parser (spec §9,
// §13.3): the artifact path plus enough classification that the parser
// never needs to reach back into the runner's state.
type ArtifactDescriptor struct {
	Path           string
	TimedOut       bool
	SynthesizedSkip model.SkipCategory // "" unless the runner itself determined the SKIP subtype
	SkipTitle      string
	ModelUsed      string
	PrimaryModel   string
	FallbackUsed   bool
	RuntimeSeconds float64
}

// Run executes the full §4.3 state machine for one reviewer task: render
// the prompt, try the model list with retry+fallback, and salvage whatever
// output is available. It never returns a non-nil error for provider
// failures — those become a SynthesizedSkip descriptor for the parser;
// error is reserved for programmer mistakes (§10.2).
func Run(ctx context.Context, task Task, profile model.ReviewerProfile, models []string, deps Deps) (ArtifactDescriptor, error) {
	if len(models) == 0 {
		return ArtifactDescriptor{}, fmt.Errorf("runner: no candidate models for reviewer %q", task.Codename)
	}
	if deps.TotalTimeout == 0 {
		deps.TotalTimeout = 600 * time.Second
	}

	log := logging.Get(logging.CategoryRunner)
	start := deps.now()

	perspDir := filepath.Join(deps.ScratchDir, task.Perspective)
	if err := os.MkdirAll(perspDir, 0o755); err != nil {
		return ArtifactDescriptor{}, fmt.Errorf("runner: create scratch dir: %w", err)
	}
	// perspDir is intentionally not removed here: the returned
	// ArtifactDescriptor.Path points inside it, and the parser (C4) reads
	// that path after Run returns (spec §9's one-way runner→parser
	// handoff). The caller owns perspDir's lifetime — typically by
	// removing the whole ScratchDir once every task's artifact has been
	// parsed.

	scratchPath := ScratchpadPath(perspDir, task.Perspective)
	stdoutPath := filepath.Join(perspDir, task.Perspective+".stdout.txt")

	// Scoped working tree: when the runner executes inside a consumer
	// checkout, stage the CLI's auto-discovered project config and agent
	// definition from trusted locations, then restore on every exit path
	// (spec §4.3.2, invariant P7).
	if len(deps.StageFiles) > 0 && deps.WorkDir != "" {
		stage := NewWorkspaceStage(deps.WorkDir)
		if err := stage.Stage(deps.StageFiles); err != nil {
			return ArtifactDescriptor{}, err
		}
		defer stage.Restore()
	}

	if deps.WatchEnabled {
		if sw, err := newScratchpadWatcher(perspDir); err == nil {
			stopWatch := make(chan struct{})
			go func() {
				watchCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					<-stopWatch
					cancel()
				}()
				sw.WaitForActivity(watchCtx)
				if fileHasContent(scratchPath) {
					log.Debug("scratchpad activity observed for perspective=%s", task.Perspective)
				}
			}()
			defer func() {
				close(stopWatch)
				sw.Close()
			}()
		} else {
			log.Debug("scratchpad watcher unavailable, falling back to post-exit file checks: %v", err)
		}
	}

	primaryModel := models[0]
	fastpath := fastPathBudget(deps.TotalTimeout)
	primaryBudget := deps.TotalTimeout - fastpath

	var lastTimedOut bool
	var lastCls Classification

	for modelIdx, m := range models {
		budget := primaryBudget
		if modelIdx > 0 {
			// Fallback attempts do not get a carved-out fast-path budget of
			// their own: each fallback model's invocation gets the full
			// T_total as its timeout, and time already spent on earlier
			// models is not deducted from it.
			budget = deps.TotalTimeout
		}

		for attempt := 0; attempt < maxInnerRetries; attempt++ {
			prompt := RenderPrompt(task.Perspective, deps.PR, deps.DiffPath, start)
			req := InvocationRequest{
				Binary:      deps.Binary,
				Model:       m,
				Perspective: task.Perspective,
				Prompt:      prompt,
				Env:         []string{deps.APIKeyEnv, "CERBERUS_SCRATCHPAD=" + scratchPath},
				Timeout:     budget,
				WorkDir:     deps.WorkDir,
			}

			log.Debug("invoking model=%s perspective=%s attempt=%d", m, task.Perspective, attempt+1)
			result, err := deps.Invoker.Invoke(ctx, req)
			if err != nil {
				return ArtifactDescriptor{}, fmt.Errorf("runner: invoke %s: %w", m, err)
			}
			lastTimedOut = result.TimedOut

			_ = os.WriteFile(stdoutPath, []byte(result.Combined()), 0o644)

			if result.TimedOut {
				break // to salvage, below — no further retries once the wall clock is gone
			}

			hasScratch := fileHasContent(scratchPath)
			cls := Classify(result.ExitCode, result.Combined(), false, hasScratch)
			lastCls = cls

			switch cls.Outcome {
			case OutcomeSuccess:
				return ArtifactDescriptor{
					Path:           pickSalvagePath(scratchPath, stdoutPath),
					ModelUsed:      m,
					PrimaryModel:   primaryModel,
					FallbackUsed:   m != primaryModel,
					RuntimeSeconds: deps.now().Sub(start).Seconds(),
				}, nil

			case OutcomeAuthOrQuota:
				// No fallback for auth/quota: the same key applies to every model.
				return ArtifactDescriptor{
					SynthesizedSkip: model.SkipAPIError,
					SkipTitle:       cls.AuthTitle(),
					ModelUsed:       m,
					PrimaryModel:    primaryModel,
					FallbackUsed:    m != primaryModel,
					RuntimeSeconds:  deps.now().Sub(start).Seconds(),
				}, nil

			case OutcomeClient4xx:
				log.Warn("model=%s client error, advancing to next model", m)
				goto nextModel

			case OutcomeRateLimit, OutcomeServer5xx, OutcomeNetwork, OutcomeProviderGeneric, OutcomeEmptyOutput:
				wait := backoffFor(attempt, cls.RetryAfter)
				if attempt < maxInnerRetries-1 {
					log.Debug("model=%s transient error (%v), retrying in %v", m, cls.Outcome, wait)
					deps.sleep(wait)
					continue
				}
				log.Warn("model=%s exhausted retries on transient error, advancing model", m)
				goto nextModel

			default: // OutcomeUnknown: non-zero exit but not classified — delegate to parser
				return ArtifactDescriptor{
					Path:           pickSalvagePath(scratchPath, stdoutPath),
					ModelUsed:      m,
					PrimaryModel:   primaryModel,
					FallbackUsed:   m != primaryModel,
					RuntimeSeconds: deps.now().Sub(start).Seconds(),
				}, nil
			}
		}
	nextModel:
		if lastTimedOut {
			break
		}
	}

	runtime := deps.now().Sub(start).Seconds()

	// Salvage (§4.3.4) only applies to the timeout path: a non-timeout
	// exhaustion of every model's retries is the "transient/non-auth
	// permanent error" failure mode of §4.3.3, which resolves straight to
	// SKIP/api_error — it must not be mistaken for salvageable partial
	// review content just because the last error text was non-empty.
	if lastTimedOut {
		if path, ok := salvageByJSONBlock(scratchPath, stdoutPath); ok {
			return ArtifactDescriptor{
				Path:           path,
				TimedOut:       true,
				ModelUsed:      primaryModel,
				PrimaryModel:   primaryModel,
				RuntimeSeconds: runtime,
			}, nil
		}

		if path, ok := salvagePartial(scratchPath, stdoutPath); ok {
			return ArtifactDescriptor{
				Path:           path,
				TimedOut:       true,
				ModelUsed:      primaryModel,
				PrimaryModel:   primaryModel,
				RuntimeSeconds: runtime,
			}, nil
		}

		if fastpath > 0 {
			fastPathResult, fpPath, attempted := runFastPath(ctx, deps, task, primaryModel, fastpath, perspDir)
			if attempted && fastPathResult {
				return ArtifactDescriptor{
					Path:           fpPath,
					TimedOut:       true,
					ModelUsed:      primaryModel,
					PrimaryModel:   primaryModel,
					RuntimeSeconds: deps.now().Sub(start).Seconds(),
				}, nil
			}
			return ArtifactDescriptor{
				Path:            writeTimeoutMarker(perspDir, task, deps, runtime, true),
				TimedOut:        true,
				SynthesizedSkip: model.SkipTimeout,
				ModelUsed:       primaryModel,
				PrimaryModel:    primaryModel,
				RuntimeSeconds:  deps.now().Sub(start).Seconds(),
			}, nil
		}

		return ArtifactDescriptor{
			Path:            writeTimeoutMarker(perspDir, task, deps, runtime, false),
			TimedOut:        true,
			SynthesizedSkip: model.SkipTimeout,
			ModelUsed:       primaryModel,
			PrimaryModel:    primaryModel,
			RuntimeSeconds:  deps.now().Sub(start).Seconds(),
		}, nil
	}

	// Transient (or non-auth permanent) failure exhausted with no fallback
	// remaining: SKIP/api_error, titled from the last classified outcome
	// (spec §4.4.4: RATE_LIMITED, SERVICE_UNAVAILABLE, or generic API_ERROR).
	return ArtifactDescriptor{
		SynthesizedSkip: model.SkipAPIError,
		SkipTitle:       lastCls.SkipTitle(),
		ModelUsed:       models[len(models)-1],
		PrimaryModel:    primaryModel,
		FallbackUsed:    models[len(models)-1] != primaryModel,
		RuntimeSeconds:  runtime,
	}, nil
}

func backoffFor(attempt int, retryAfterSeconds int) time.Duration {
	if retryAfterSeconds > 0 {
		return time.Duration(retryAfterSeconds) * time.Second
	}
	idx := attempt
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}

func fileHasContent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func readIfExists(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// hasMeaningfulContent reports whether path holds anything beyond whitespace.
// stdout capture is always written as stdout+"\n"+stderr even when both are
// empty, so a raw byte-size check (fileHasContent) would treat that lone
// newline as salvageable content; trim it away first.
func hasMeaningfulContent(path string) bool {
	content, ok := readIfExists(path)
	return ok && strings.TrimSpace(content) != ""
}

// pickSalvagePath prefers the scratchpad over stdout capture whenever both
// are present and non-empty, per §4.3.4's stated preference order.
func pickSalvagePath(scratchPath, stdoutPath string) string {
	if fileHasContent(scratchPath) {
		return scratchPath
	}
	return stdoutPath
}

// salvageByJSONBlock returns the first of (scratchpad, stdout) that
// contains a fenced json block (spec §4.3.4 step 1/2).
func salvageByJSONBlock(scratchPath, stdoutPath string) (string, bool) {
	for _, p := range []string{scratchPath, stdoutPath} {
		if content, ok := readIfExists(p); ok && containsJSONFence(content) {
			return p, true
		}
	}
	return "", false
}

// salvagePartial returns whichever of (scratchpad, stdout) is non-empty,
// even without a JSON block, per §4.3.4's "use whichever has non-empty
// content (partial)" fallback.
func salvagePartial(scratchPath, stdoutPath string) (string, bool) {
	for _, p := range []string{scratchPath, stdoutPath} {
		if hasMeaningfulContent(p) {
			return p, true
		}
	}
	return "", false
}

func containsJSONFence(s string) bool {
	return jsonFenceRe.MatchString(s)
}
