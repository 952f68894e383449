package config

import (
	"path/filepath"
	"strings"
	"testing"

	"cerberus/internal/model"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default() should be valid: %v", err)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	c := Default()
	c.Reviewers = append(c.Reviewers, model.ReviewerProfile{
		Codename:    "guard",
		Perspective: "security",
		Critical:    true,
	})
	c.index()

	path := filepath.Join(t.TempDir(), "reviewers.yaml")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Reviewers) != 2 {
		t.Fatalf("expected 2 reviewers after round trip, got %d", len(loaded.Reviewers))
	}
	r, err := loaded.GetReviewer("guard")
	if err != nil {
		t.Fatalf("GetReviewer: %v", err)
	}
	if !r.Critical {
		t.Fatal("expected guard to remain critical after round trip")
	}
}

func TestLoadRejectsEmptyRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	c := &Config{Model: model.ModelPool{Default: "x"}, Overrides: OverrideConfig{Command: "/cerberus override", TrustedBotLogin: "bot"}}
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error loading a config with an empty roster (B1)")
	} else if !strings.Contains(err.Error(), "roster is empty") {
		t.Fatalf("expected roster-empty error, got: %v", err)
	}
}

func TestLoadRejectsUnknownFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateCatchesDanglingWaveReference(t *testing.T) {
	c := Default()
	c.Waves = &WavesConfig{
		Definitions: map[string]model.Wave{
			"wave1": {Name: "wave1", Reviewers: []string{"nonexistent"}},
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for wave referencing unknown reviewer")
	}
}

func TestValidateCatchesDuplicateCodename(t *testing.T) {
	c := Default()
	c.Reviewers = append(c.Reviewers, c.Reviewers[0])
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for duplicate codename")
	}
}

func TestResolveModelExplicitBinding(t *testing.T) {
	c := Default()
	c.Reviewers[0].ModelBinding = "gpt-5-explicit"
	model, err := c.ResolveModel("trace", "", "", "", nil)
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if model != "gpt-5-explicit" {
		t.Fatalf("expected explicit model binding to win, got %q", model)
	}
}

func TestResolveModelActionOverrideWins(t *testing.T) {
	c := Default()
	c.Reviewers[0].ModelBinding = "gpt-5-explicit"
	model, err := c.ResolveModel("trace", "", "", "gpt-5-action-override", nil)
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if model != "gpt-5-action-override" {
		t.Fatalf("expected action-level override to win over explicit binding, got %q", model)
	}
}

func TestResolveModelPoolIsDeterministicWithInjectedSelector(t *testing.T) {
	c := Default()
	c.Reviewers[0].ModelBinding = "pool"
	c.Model.Pool = []string{"a", "b", "c"}
	pinned := func(pool []string) string { return pool[0] }
	got, err := c.ResolveModel("trace", "", "", "", pinned)
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if got != "a" {
		t.Fatalf("expected pinned selector to choose %q, got %q", "a", got)
	}
}

func TestResolveModelFallsBackToDefault(t *testing.T) {
	c := Default()
	got, err := c.ResolveModel("trace", "", "", "", nil)
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if got != c.Model.Default {
		t.Fatalf("expected default model %q, got %q", c.Model.Default, got)
	}
}

func TestResolveModelUnknownReviewerIsFatal(t *testing.T) {
	c := Default()
	if _, err := c.ResolveModel("nope", "", "", "", nil); err == nil {
		t.Fatal("expected error for unknown reviewer codename")
	}
}
