// Package model holds the entity types shared across the Cerberus pipeline:
// reviewer configuration, per-reviewer findings and verdicts, PR overrides,
// and the final aggregated verdict.
package model

import "strings"

// Severity is a finding's normalized severity level.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityInfo     Severity = "info"
)

// NormalizeSeverity coerces an arbitrary string to a valid Severity, defaulting
// to info when the value is not one of the enumerated levels.
func NormalizeSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityMajor:
		return SeverityMajor
	case SeverityMinor:
		return SeverityMinor
	default:
		return SeverityInfo
	}
}

// Verdict is the outcome of a review, whether per-reviewer or aggregated.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictWarn Verdict = "WARN"
	VerdictFail Verdict = "FAIL"
	VerdictSkip Verdict = "SKIP"
)

// OverridePolicy controls who may override a reviewer's FAIL.
type OverridePolicy string

const (
	OverridePRAuthor       OverridePolicy = "pr_author"
	OverrideWriteAccess    OverridePolicy = "write_access"
	OverrideMaintainersOnly OverridePolicy = "maintainers_only"
)

// FindingScope distinguishes findings about the diff itself from findings
// about defaults/config whose evidence may cite unchanged code.
type FindingScope string

const (
	ScopeDiff           FindingScope = "diff"
	ScopeDefaultsChange FindingScope = "defaults-change"
)

// SkipCategory classifies why a reviewer produced SKIP instead of a verdict.
type SkipCategory string

const (
	SkipTimeout      SkipCategory = "timeout"
	SkipAPIError     SkipCategory = "api_error"
	SkipParseFailure SkipCategory = "parse_failure"
)

// ReviewerProfile is the static, config-loaded identity of one reviewer.
type ReviewerProfile struct {
	Codename        string         `yaml:"codename" json:"codename"`
	Perspective     string         `yaml:"perspective" json:"perspective"`
	Description     string         `yaml:"description" json:"description"`
	ModelBinding    string         `yaml:"model,omitempty" json:"model,omitempty"` // explicit model id, "pool", or "" (inherit default)
	OverridePolicy  OverridePolicy `yaml:"override_policy,omitempty" json:"override_policy,omitempty"`
	Critical        bool           `yaml:"critical,omitempty" json:"critical,omitempty"`
}

// ModelPool is the static set of model identifiers a "pool" binding draws from.
type ModelPool struct {
	Default   string              `yaml:"default" json:"default"`
	Tiers     map[string][]string `yaml:"tiers,omitempty" json:"tiers,omitempty"`
	Pool      []string            `yaml:"pool,omitempty" json:"pool,omitempty"`
	WavePools map[string][]string `yaml:"wave_pools,omitempty" json:"wave_pools,omitempty"`
	// Fallback is the ordered chain of additional models tried when the
	// primary fails with a transient or non-auth permanent error (spec
	// §4.3.3, glossary "fallback chain").
	Fallback []string `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// Wave is an ordered group of reviewers gated by the previous wave's findings.
type Wave struct {
	Name         string   `yaml:"name" json:"name"`
	Reviewers    []string `yaml:"reviewers" json:"reviewers"`
	GateSeverity Severity `yaml:"gate_severity,omitempty" json:"gate_severity,omitempty"`
}

// Finding is one issue reported by a reviewer.
type Finding struct {
	Severity           Severity     `json:"severity"`
	Category           string       `json:"category"`
	File               string       `json:"file,omitempty"`
	Line               int          `json:"line,omitempty"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Suggestion         string       `json:"suggestion,omitempty"`
	Evidence           string       `json:"evidence,omitempty"`
	Scope              FindingScope `json:"scope,omitempty"`
	SuggestionVerified *bool        `json:"suggestion_verified,omitempty"`
	Confidence         float64      `json:"confidence,omitempty"`
}

// IsUnverifiedTitle reports whether a finding's title carries the
// "[unverified]" prefix that exempts it from the evidence-demotion rule.
func (f Finding) IsUnverifiedTitle() bool {
	return strings.HasPrefix(strings.TrimSpace(f.Title), "[unverified]")
}

// Stats summarizes a reviewer's findings.
type Stats struct {
	FilesReviewed   int `json:"files_reviewed"`
	FilesWithIssues int `json:"files_with_issues"`
	Critical        int `json:"critical"`
	Major           int `json:"major"`
	Minor           int `json:"minor"`
	Info            int `json:"info"`
}

// ReviewerVerdict is the primary per-reviewer artifact: the model-supplied
// fields plus pipeline-added runtime metadata.
type ReviewerVerdict struct {
	Reviewer    string    `json:"reviewer"`
	Perspective string    `json:"perspective"`
	Verdict     Verdict   `json:"verdict"`
	Confidence  float64   `json:"confidence"`
	Summary     string    `json:"summary"`
	Findings    []Finding `json:"findings"`
	Stats       Stats     `json:"stats"`

	// Pipeline-added metadata.
	RuntimeSeconds float64 `json:"runtime_seconds,omitempty"`
	ModelUsed      string  `json:"model_used,omitempty"`
	PrimaryModel   string  `json:"primary_model,omitempty"`
	FallbackUsed   bool    `json:"fallback_used,omitempty"`
	RawReview      string  `json:"raw_review,omitempty"`

	// Overridden records whether an authorized override downgraded this
	// reviewer's FAIL to non-blocking (the FAIL verdict itself is retained).
	Overridden       bool   `json:"overridden,omitempty"`
	OverrideReason   string `json:"override_reason,omitempty"`
	OverrideActor    string `json:"override_actor,omitempty"`

	// CriticalReviewer mirrors this reviewer's ReviewerProfile.Critical at
	// aggregation time (spec §4.5.3's "C" term), so the aggregator's decide
	// function stays a pure function of []ReviewerVerdict without reaching
	// back into config.
	CriticalReviewer bool `json:"critical_reviewer,omitempty"`
}

// CountableFindings returns findings whose confidence meets the threshold
// rules use for FAIL/WARN thresholding (spec §4.4.3, §4.5.3: confidence >= 0.7).
func (v ReviewerVerdict) CountableFindings() []Finding {
	out := make([]Finding, 0, len(v.Findings))
	for _, f := range v.Findings {
		if f.Confidence >= 0.7 {
			out = append(out, f)
		}
	}
	return out
}

// Override is one override command parsed from a PR comment, together with
// the result of checking it (Authorized, RejectReason).
type Override struct {
	SHA             string `json:"sha"`
	Reason          string `json:"reason"`
	Actor           string `json:"actor"`
	TargetReviewers []string `json:"target_reviewers,omitempty"` // empty = applies to whichever reviewer(s) produced the FAIL
	Authorized      bool   `json:"authorized"`
	RejectReason    string `json:"reject_reason,omitempty"`
}

// WaveResult records what happened for one wave during a multi-wave run.
type WaveResult struct {
	Name        string `json:"name"`
	Ran         bool   `json:"ran"`
	GatedNext   bool   `json:"gated_next"`
}

// CerberusVerdict is the final, per-run aggregated outcome.
type CerberusVerdict struct {
	Verdict          Verdict           `json:"verdict"`
	ReviewerVerdicts []ReviewerVerdict `json:"reviewer_verdicts"`
	AppliedOverrides []Override        `json:"applied_overrides,omitempty"`
	RejectedOverrides []Override       `json:"rejected_overrides,omitempty"`
	Waves            []WaveResult      `json:"waves,omitempty"`
	HeadSHA          string            `json:"head_sha"`
}
