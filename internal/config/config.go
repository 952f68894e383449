// Package config loads the declarative reviewer-roster document: the
// reviewer roster, model pool(s), optional wave definitions, and override
// command policy (spec §4.1, §6.1).
package config

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cerberus/internal/model"
)

// OverrideConfig describes the PR-comment override command surface.
type OverrideConfig struct {
	Command         string `yaml:"command"`
	TrustedBotLogin string `yaml:"trusted_bot_login"`
}

// WaveGate describes the severity ceiling a wave's findings must stay under
// for the next wave to be eligible to run.
type WaveGate struct {
	Severity model.Severity `yaml:"severity"`
}

// WavesConfig is the optional multi-wave policy document section.
type WavesConfig struct {
	Definitions map[string]model.Wave `yaml:"definitions"`
	Gate        WaveGate              `yaml:"gate"`
	MaxForTier  map[string]string     `yaml:"max_for_tier,omitempty"`
}

// Config is the full roster document (spec §6.1).
type Config struct {
	Reviewers []model.ReviewerProfile `yaml:"reviewers"`
	Model     model.ModelPool         `yaml:"model"`
	Waves     *WavesConfig            `yaml:"waves,omitempty"`
	Overrides OverrideConfig          `yaml:"overrides"`

	DebugMode bool `yaml:"debug_mode,omitempty"`

	byCodename map[string]*model.ReviewerProfile `yaml:"-"`
}

// Default returns a minimal valid config, useful for tests.
func Default() *Config {
	c := &Config{
		Reviewers: []model.ReviewerProfile{
			{Codename: "trace", Perspective: "correctness", Description: "correctness reviewer", OverridePolicy: model.OverridePRAuthor},
		},
		Model: model.ModelPool{Default: "gpt-5-codex"},
		Overrides: OverrideConfig{
			Command:         "/cerberus override",
			TrustedBotLogin: "cerberus-bot",
		},
	}
	c.index()
	return c
}

// Load reads and validates a roster document from path. Any failure —
// missing file, malformed YAML, empty roster, or a validation error — is
// fatal per spec §4.1 / §6.7 (exit code 2 at the CLI layer).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyEnvOverrides()
	c.index()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid document %s: %w", path, err)
	}
	return &c, nil
}

// applyEnvOverrides layers CERBERUS_<SECTION>_<FIELD> environment variables
// over the parsed document, checked in a fixed order after YAML unmarshal —
// the same "env wins over file" placement as the reference's own
// applyEnvOverrides. Each override only fires when the variable is set and
// non-empty; an unset variable never clears a value the document provided.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CERBERUS_MODEL_DEFAULT"); v != "" {
		c.Model.Default = v
	}
	if v := os.Getenv("CERBERUS_MODEL_FALLBACK"); v != "" {
		c.Model.Fallback = strings.Split(v, ",")
	}
	if v := os.Getenv("CERBERUS_OVERRIDES_COMMAND"); v != "" {
		c.Overrides.Command = v
	}
	if v := os.Getenv("CERBERUS_OVERRIDES_TRUSTED_BOT_LOGIN"); v != "" {
		c.Overrides.TrustedBotLogin = v
	}
	if v := os.Getenv("CERBERUS_DEBUG_MODE"); v != "" {
		c.DebugMode = v == "1" || strings.EqualFold(v, "true")
	}
}

// Save writes the config back out as YAML, for round-trip tests.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c *Config) index() {
	c.byCodename = make(map[string]*model.ReviewerProfile, len(c.Reviewers))
	for i := range c.Reviewers {
		c.byCodename[c.Reviewers[i].Codename] = &c.Reviewers[i]
	}
}

// Validate enumerates every problem found rather than stopping at the
// first, per the reference's fail-fast-but-complete validation convention.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Reviewers) == 0 {
		problems = append(problems, "roster is empty: at least one reviewer is required")
	}

	seen := make(map[string]bool)
	perspectives := make(map[string]bool)
	for _, r := range c.Reviewers {
		if r.Codename == "" {
			problems = append(problems, "reviewer with empty codename")
			continue
		}
		if seen[r.Codename] {
			problems = append(problems, fmt.Sprintf("duplicate reviewer codename %q", r.Codename))
		}
		seen[r.Codename] = true

		if r.Perspective == "" {
			problems = append(problems, fmt.Sprintf("reviewer %q: empty perspective", r.Codename))
		} else if perspectives[r.Perspective] {
			problems = append(problems, fmt.Sprintf("duplicate perspective %q", r.Perspective))
		}
		perspectives[r.Perspective] = true

		switch r.OverridePolicy {
		case "", model.OverridePRAuthor, model.OverrideWriteAccess, model.OverrideMaintainersOnly:
		default:
			problems = append(problems, fmt.Sprintf("reviewer %q: unknown override_policy %q", r.Codename, r.OverridePolicy))
		}

		if r.ModelBinding != "" && r.ModelBinding != "pool" {
			// explicit model id — nothing further to validate, it is opaque to us
			continue
		}
		if r.ModelBinding == "pool" && len(c.Model.Pool) == 0 && len(c.Model.Tiers) == 0 && len(c.Model.WavePools) == 0 {
			problems = append(problems, fmt.Sprintf("reviewer %q: model_binding=pool but no pool/tiers/wave_pools configured", r.Codename))
		}
	}

	if c.Model.Default == "" && len(c.Reviewers) > 0 {
		// Only fatal if some reviewer actually needs the default (no explicit binding).
		for _, r := range c.Reviewers {
			if r.ModelBinding == "" {
				problems = append(problems, fmt.Sprintf("reviewer %q inherits the default model, but model.default is unset", r.Codename))
			}
		}
	}

	if c.Waves != nil {
		for name, w := range c.Waves.Definitions {
			if len(w.Reviewers) == 0 {
				problems = append(problems, fmt.Sprintf("wave %q has no reviewers", name))
			}
			for _, codename := range w.Reviewers {
				if !seen[codename] {
					problems = append(problems, fmt.Sprintf("wave %q references unknown reviewer %q", name, codename))
				}
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// GetReviewer returns the profile for codename, or an error if unknown.
func (c *Config) GetReviewer(codename string) (*model.ReviewerProfile, error) {
	if c.byCodename == nil {
		c.index()
	}
	r, ok := c.byCodename[codename]
	if !ok {
		return nil, fmt.Errorf("config: unknown reviewer %q", codename)
	}
	return r, nil
}

// GetOverridePolicy returns the override policy for the reviewer identified
// by perspective.
func (c *Config) GetOverridePolicy(perspective string) (model.OverridePolicy, error) {
	for _, r := range c.Reviewers {
		if r.Perspective == perspective {
			if r.OverridePolicy == "" {
				return model.OverrideWriteAccess, nil
			}
			return r.OverridePolicy, nil
		}
	}
	return "", fmt.Errorf("config: unknown perspective %q", perspective)
}

// PoolSelector draws one model identifier from a candidate pool. The
// default is a uniform random draw; tests inject a deterministic stand-in
// (spec §9, "randomized model draw... surfaced as an injectable pool
// selector").
type PoolSelector func(pool []string) string

// DefaultPoolSelector draws uniformly at random using math/rand/v2.
func DefaultPoolSelector(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.IntN(len(pool))]
}

// ResolveModel implements the §4.1 resolution order: action-level override
// (actionOverride, empty if none) → reviewer's explicit model_binding →
// wave pool → tier pool → global default. A "pool" binding at any stage
// triggers selector() over the applicable pool.
func (c *Config) ResolveModel(codename, tier, wave string, actionOverride string, selector PoolSelector) (string, error) {
	if selector == nil {
		selector = DefaultPoolSelector
	}
	r, err := c.GetReviewer(codename)
	if err != nil {
		return "", err
	}

	if actionOverride != "" {
		return actionOverride, nil
	}

	if r.ModelBinding != "" && r.ModelBinding != "pool" {
		return r.ModelBinding, nil
	}

	if r.ModelBinding == "pool" {
		if wave != "" {
			if pool, ok := c.Model.WavePools[wave]; ok && len(pool) > 0 {
				return selector(pool), nil
			}
		}
		if tier != "" {
			if pool, ok := c.Model.Tiers[tier]; ok && len(pool) > 0 {
				return selector(pool), nil
			}
		}
		if len(c.Model.Pool) > 0 {
			return selector(c.Model.Pool), nil
		}
		return "", fmt.Errorf("config: reviewer %q has model_binding=pool but no applicable pool resolved", codename)
	}

	// Inherit-from-default.
	if wave != "" {
		if pool, ok := c.Model.WavePools[wave]; ok && len(pool) > 0 {
			return selector(pool), nil
		}
	}
	if tier != "" {
		if pool, ok := c.Model.Tiers[tier]; ok && len(pool) > 0 {
			return selector(pool), nil
		}
	}
	if c.Model.Default == "" {
		return "", fmt.Errorf("config: no default model configured for reviewer %q", codename)
	}
	return c.Model.Default, nil
}
