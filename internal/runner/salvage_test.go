package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunFastPath_SucceedsWithJSONFence(t *testing.T) {
	inv := &fakeInvoker{results: []InvocationResult{
		{ExitCode: 0, Stdout: "```json\n{\"verdict\":\"PASS\"}\n```"},
	}}
	deps := Deps{Invoker: inv, Binary: "llm-review", DiffContent: "+line one\n-line two\n", Now: func() time.Time { return time.Unix(0, 0) }}
	dir := t.TempDir()

	ok, path, attempted := runFastPath(context.Background(), deps, Task{Perspective: "security"}, "model-a", 60*time.Second, dir)
	if !attempted {
		t.Fatal("expected fast path to be attempted")
	}
	if !ok {
		t.Fatal("expected fast path to succeed when output has a JSON fence")
	}
	if !strings.Contains(path, "fastpath.stdout.txt") {
		t.Fatalf("unexpected fast-path artifact path: %q", path)
	}
	req := inv.calls[0]
	var sawFastpathEnv bool
	for _, e := range req.Env {
		if e == "CERBERUS_FASTPATH=1" {
			sawFastpathEnv = true
		}
	}
	if !sawFastpathEnv {
		t.Fatal("expected fast-path invocation to set CERBERUS_FASTPATH=1")
	}
}

func TestRunFastPath_FailsWithoutJSONFence(t *testing.T) {
	inv := &fakeInvoker{results: []InvocationResult{
		{ExitCode: 0, Stdout: "no structured output here"},
	}}
	deps := Deps{Invoker: inv, Binary: "llm-review", Now: func() time.Time { return time.Unix(0, 0) }}
	dir := t.TempDir()

	ok, _, attempted := runFastPath(context.Background(), deps, Task{Perspective: "security"}, "model-a", 60*time.Second, dir)
	if !attempted {
		t.Fatal("expected fast path to be attempted")
	}
	if ok {
		t.Fatal("expected fast path to fail without a JSON fence")
	}
}

func TestWriteTimeoutMarker_ListsDiffedFiles(t *testing.T) {
	dir := t.TempDir()
	deps := Deps{
		DiffContent:  "diff --git a/foo.go b/foo.go\n--- a/foo.go\n+++ b/foo.go\n@@\n+x\n",
		TotalTimeout: 600 * time.Second,
	}
	path := writeTimeoutMarker(dir, Task{Perspective: "security"}, deps, 601.2, true)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading marker: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "perspective: security") {
		t.Fatalf("expected perspective in marker, got %q", content)
	}
	if !strings.Contains(content, "fast_path_attempted: true") {
		t.Fatalf("expected fast_path_attempted flag, got %q", content)
	}
	if !strings.Contains(content, "foo.go") {
		t.Fatalf("expected diffed file listed, got %q", content)
	}
	if filepath.Base(path) != "security.timeout-marker.txt" {
		t.Fatalf("unexpected marker filename: %q", path)
	}
}

func TestContainsJSONFence(t *testing.T) {
	if !containsJSONFence("some text\n```json\n{\"a\":1}\n```\nmore text") {
		t.Fatal("expected fenced JSON block to be detected")
	}
	if containsJSONFence("no fence here") {
		t.Fatal("expected no match without a fenced block")
	}
}
