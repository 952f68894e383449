package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"cerberus/internal/diffutil"
)

// jsonFenceRe matches a fenced ```json ... ``` block, used to decide whether
// an artifact is salvageable. The parser package extracts the block with
// its own copy of the same pattern.
var jsonFenceRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n```")

const fastPathMaxInlineBytes = 50 * 1024

// runFastPath performs the §4.3.4 stripped-down re-invocation: the diff is
// inlined (truncated at 50 KiB), tools disabled, steps capped at 1, timeout
// = T_fastpath. Returns (succeeded, artifactPath, attempted).
func runFastPath(ctx context.Context, deps Deps, task Task, primaryModel string, budget time.Duration, perspDir string) (bool, string, bool) {
	inlined := diffutil.TruncateForPrompt(deps.DiffContent, fastPathMaxInlineBytes)
	prompt := RenderFastPathPrompt(task.Perspective, deps.PR, inlined, deps.now())

	stdoutPath := filepath.Join(perspDir, task.Perspective+".fastpath.stdout.txt")
	req := InvocationRequest{
		Binary:      deps.Binary,
		Model:       primaryModel,
		Perspective: task.Perspective,
		Prompt:      prompt,
		Env:         []string{deps.APIKeyEnv, "CERBERUS_FASTPATH=1", "CERBERUS_MAX_STEPS=1", "CERBERUS_TOOLS=disabled"},
		Timeout:     budget,
		WorkDir:     deps.WorkDir,
	}

	result, err := deps.Invoker.Invoke(ctx, req)
	if err != nil {
		return false, "", true
	}
	_ = os.WriteFile(stdoutPath, []byte(result.Combined()), 0o644)

	if containsJSONFence(result.Combined()) {
		return true, stdoutPath, true
	}
	return false, "", true
}

// writeTimeoutMarker synthesizes the §4.3.4 timeout marker file: elapsed
// budget, perspective name, a short list of diffed files, and whether
// fast-path was attempted.
func writeTimeoutMarker(perspDir string, task Task, deps Deps, elapsedSeconds float64, fastPathAttempted bool) string {
	files := diffutil.FileList(deps.DiffContent)
	if len(files) > 10 {
		files = files[:10]
	}

	content := fmt.Sprintf("TIMEOUT\nperspective: %s\nelapsed_seconds: %.1f\nbudget_seconds: %.1f\nfast_path_attempted: %t\nfiles:\n",
		task.Perspective, elapsedSeconds, deps.TotalTimeout.Seconds(), fastPathAttempted)
	for _, f := range files {
		content += "  - " + f + "\n"
	}

	path := filepath.Join(perspDir, task.Perspective+".timeout-marker.txt")
	_ = os.WriteFile(path, []byte(content), 0o644)
	return path
}
