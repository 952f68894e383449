package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"cerberus/internal/model"
)

func writeVerdictArtifact(t *testing.T, dir, name string, v model.ReviewerVerdict) {
	t.Helper()
	if err := writeVerdict(filepath.Join(dir, name), v); err != nil {
		t.Fatalf("writeVerdict: %v", err)
	}
}

func TestLoadVerdicts_ReadsOnlyJSONFiles(t *testing.T) {
	dir := t.TempDir()
	writeVerdictArtifact(t, dir, "security.json", model.ReviewerVerdict{Reviewer: "sentinel", Verdict: model.VerdictPass})
	writeVerdictArtifact(t, dir, "style.json", model.ReviewerVerdict{Reviewer: "stylist", Verdict: model.VerdictWarn})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := loadVerdicts(dir)
	if err != nil {
		t.Fatalf("loadVerdicts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 verdicts (ignoring the non-JSON file), got %d", len(got))
	}
}

func TestLoadVerdicts_MissingDirErrors(t *testing.T) {
	if _, err := loadVerdicts(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected an error reading a nonexistent artifacts directory")
	}
}

func TestWriteVerdict_RoundTrips(t *testing.T) {
	logger = zap.NewNop()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	v := model.ReviewerVerdict{Reviewer: "sentinel", Perspective: "security", Verdict: model.VerdictFail}

	if err := writeVerdict(path, v); err != nil {
		t.Fatalf("writeVerdict: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a non-empty written artifact")
	}

	got, err := loadVerdicts(dir)
	if err != nil {
		t.Fatalf("loadVerdicts: %v", err)
	}
	if len(got) != 1 || got[0].Reviewer != v.Reviewer || got[0].Perspective != v.Perspective || got[0].Verdict != v.Verdict {
		t.Fatalf("expected the written verdict to read back unchanged, got %+v", got)
	}
}
