// Package parser implements the Output Parser (C4): extracting a
// structured verdict from semi-structured reviewer output, normalizing
// findings, recomputing the verdict, and distinguishing SKIP subtypes.
// Parse never raises — every artifact, however malformed, yields exactly
// one ReviewerVerdict (spec §4.4, invariant P1).
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"cerberus/internal/logging"
	"cerberus/internal/model"
	"cerberus/internal/runner"
)

// maxRawReviewBytes caps how much free-form text is retained in
// RawReview for debugging malformed output (spec §4.4.1, §7).
const maxRawReviewBytes = 50 * 1024

var jsonFenceRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n```")

// rawVerdict mirrors the wire shape (spec §6.2) before normalization.
type rawVerdict struct {
	Reviewer    *string       `json:"reviewer"`
	Perspective *string       `json:"perspective"`
	Verdict     *string       `json:"verdict"`
	Confidence  *float64      `json:"confidence"`
	Summary     *string       `json:"summary"`
	Findings    []rawFinding  `json:"findings"`
	Stats       *rawStats     `json:"stats"`
}

type rawFinding struct {
	Severity           string  `json:"severity"`
	Category           string  `json:"category"`
	File               string  `json:"file"`
	Line               json.RawMessage `json:"line"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Suggestion         string  `json:"suggestion"`
	Evidence           string  `json:"evidence"`
	Scope              string  `json:"scope"`
	SuggestionVerified *bool   `json:"suggestion_verified"`
	Confidence         float64 `json:"confidence"`
}

type rawStats struct {
	FilesReviewed   int `json:"files_reviewed"`
	FilesWithIssues int `json:"files_with_issues"`
}

// Parse reads desc.Path and produces a ReviewerVerdict. It attaches the
// runner's pipeline metadata (model_used, runtime_seconds, ...) regardless
// of how parsing went, per §3's ReviewerVerdict "pipeline-added" fields.
func Parse(reviewerCodename, perspective string, desc runner.ArtifactDescriptor) model.ReviewerVerdict {
	log := logging.Get(logging.CategoryParser)

	base := model.ReviewerVerdict{
		Reviewer:       reviewerCodename,
		Perspective:    perspective,
		RuntimeSeconds: desc.RuntimeSeconds,
		ModelUsed:      desc.ModelUsed,
		PrimaryModel:   desc.PrimaryModel,
		FallbackUsed:   desc.FallbackUsed,
	}

	// The runner already determined a SKIP subtype (timeout, or an
	// auth/quota api_error) — no artifact content to parse.
	if desc.SynthesizedSkip != "" {
		return skipVerdict(base, desc.SynthesizedSkip, skipTitleFor(desc), skipDescriptionFor(desc))
	}

	if desc.Path == "" {
		return skipVerdict(base, model.SkipParseFailure, "NO_OUTPUT", "the reviewer produced no output artifact")
	}

	content, err := os.ReadFile(desc.Path)
	if err != nil {
		log.Warn("could not read artifact %s: %v", desc.Path, err)
		return skipVerdict(base, model.SkipParseFailure, "ARTIFACT_UNREADABLE", fmt.Sprintf("could not read artifact: %v", err))
	}

	if desc.TimedOut && looksLikeTimeoutMarker(content) {
		return skipVerdict(base, model.SkipTimeout, "TIMEOUT", string(truncate(content, maxRawReviewBytes)))
	}

	block, ok := extractLastJSONBlock(content)
	if !ok {
		if len(bytes.TrimSpace(content)) == 0 {
			return skipVerdict(base, model.SkipParseFailure, "EMPTY_OUTPUT", "the reviewer produced no parseable output")
		}
		v := skipVerdict(base, model.SkipParseFailure, "NO_JSON_BLOCK", "no fenced json block found in reviewer output")
		v.RawReview = string(truncate(content, maxRawReviewBytes))
		return v
	}

	raw, ok := parseJSONObject(block)
	if !ok {
		v := skipVerdict(base, model.SkipParseFailure, "MALFORMED_JSON", "the fenced json block did not parse")
		v.RawReview = string(truncate(content, maxRawReviewBytes))
		return v
	}

	verdict, missing := toVerdict(raw, base)
	if len(missing) > 0 {
		v := skipVerdict(base, model.SkipParseFailure, "MISSING_FIELDS", fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")))
		v.RawReview = string(truncate(content, maxRawReviewBytes))
		return v
	}

	normalizeFindings(verdict.Findings)
	recomputeStats(verdict)

	modelVerdict := verdict.Verdict
	recomputed := recomputeVerdict(verdict.Findings)
	if recomputed != verdict.Verdict {
		log.Warn("reviewer %s: model-supplied verdict %s disagrees with recomputed %s; using recomputed", reviewerCodename, verdict.Verdict, recomputed)
		verdict.Verdict = recomputed
	}

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	} else if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	if modelVerdict == model.VerdictSkip && len(verdict.Findings) == 0 {
		// A model that claims SKIP must still carry a synthetic finding
		// (spec invariant, §3 ReviewerVerdict). Absent one, treat it as a
		// parse failure rather than silently accepting a bare SKIP.
		v := skipVerdict(base, model.SkipParseFailure, "SKIP_WITHOUT_FINDING", "model reported SKIP with no synthetic finding")
		v.RawReview = string(truncate(content, maxRawReviewBytes))
		return v
	}

	return *verdict
}

func skipTitleFor(desc runner.ArtifactDescriptor) string {
	if desc.SkipTitle != "" {
		return desc.SkipTitle
	}
	if desc.SynthesizedSkip == model.SkipTimeout {
		return "TIMEOUT"
	}
	return "API_ERROR"
}

func skipDescriptionFor(desc runner.ArtifactDescriptor) string {
	switch desc.SynthesizedSkip {
	case model.SkipTimeout:
		return fmt.Sprintf("reviewer timed out after %.1fs", desc.RuntimeSeconds)
	case model.SkipAPIError:
		return fmt.Sprintf("reviewer failed with a provider error (%s)", desc.SkipTitle)
	default:
		return "reviewer did not produce a verdict"
	}
}

// skipVerdict builds a SKIP ReviewerVerdict carrying exactly one synthetic
// finding whose category encodes the subtype (spec §4.4.4, invariant P2).
func skipVerdict(base model.ReviewerVerdict, category model.SkipCategory, title, description string) model.ReviewerVerdict {
	v := base
	v.Verdict = model.VerdictSkip
	v.Confidence = 0
	v.Summary = description
	v.Findings = []model.Finding{{
		Severity:    model.SeverityInfo,
		Category:    string(category),
		Title:       title,
		Description: description,
		Confidence:  1.0,
	}}
	v.Stats = model.Stats{Info: 1}
	return v
}

func looksLikeTimeoutMarker(content []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(content), []byte("TIMEOUT"))
}

// extractLastJSONBlock scans for the last fenced ```json block (spec
// §4.4.1: "the last fenced code block tagged json").
func extractLastJSONBlock(content []byte) ([]byte, bool) {
	matches := jsonFenceRe.FindAllSubmatch(content, -1)
	if len(matches) == 0 {
		return nil, false
	}
	last := matches[len(matches)-1]
	return last[1], true
}

// parseJSONObject parses block strictly; on failure it falls back to the
// largest top-level JSON object substring that does parse (spec §4.4.1).
func parseJSONObject(block []byte) (rawVerdict, bool) {
	var raw rawVerdict
	dec := json.NewDecoder(bytes.NewReader(block))
	if err := dec.Decode(&raw); err == nil {
		return raw, true
	}

	candidates := findBraceObjects(block)
	var best rawVerdict
	bestLen := 0
	for _, c := range candidates {
		if len(c) <= bestLen {
			continue
		}
		var r rawVerdict
		if err := json.Unmarshal(c, &r); err == nil {
			best = r
			bestLen = len(c)
		}
	}
	if bestLen == 0 {
		return rawVerdict{}, false
	}
	return best, true
}

// findBraceObjects returns every balanced {...} substring in b, used as
// fallback candidates when strict decoding of the whole block fails.
func findBraceObjects(b []byte) [][]byte {
	var out [][]byte
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, c := range b {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, b[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

func toVerdict(raw rawVerdict, base model.ReviewerVerdict) (*model.ReviewerVerdict, []string) {
	var missing []string
	if raw.Reviewer == nil {
		missing = append(missing, "reviewer")
	}
	if raw.Perspective == nil {
		missing = append(missing, "perspective")
	}
	if raw.Verdict == nil {
		missing = append(missing, "verdict")
	}
	if raw.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if raw.Summary == nil {
		missing = append(missing, "summary")
	}
	if raw.Findings == nil {
		missing = append(missing, "findings")
	}
	if raw.Stats == nil {
		missing = append(missing, "stats")
	}
	if len(missing) > 0 {
		return nil, missing
	}

	v := base
	v.Summary = *raw.Summary
	v.Confidence = *raw.Confidence
	v.Verdict = model.Verdict(strings.ToUpper(strings.TrimSpace(*raw.Verdict)))
	v.Stats = model.Stats{FilesReviewed: raw.Stats.FilesReviewed}
	v.Findings = make([]model.Finding, 0, len(raw.Findings))
	for _, rf := range raw.Findings {
		v.Findings = append(v.Findings, model.Finding{
			Severity:           model.NormalizeSeverity(rf.Severity),
			Category:           rf.Category,
			File:               rf.File,
			Line:               parseLine(rf.Line),
			Title:              rf.Title,
			Description:        rf.Description,
			Suggestion:         rf.Suggestion,
			Evidence:           rf.Evidence,
			Scope:              parseScope(rf.Scope),
			SuggestionVerified: rf.SuggestionVerified,
			Confidence:         rf.Confidence,
		})
	}
	return &v, nil
}

func parseLine(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var parsed int
		if _, err := fmt.Sscanf(s, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return 0
}

func parseScope(s string) model.FindingScope {
	if model.FindingScope(s) == model.ScopeDefaultsChange {
		return model.ScopeDefaultsChange
	}
	return model.ScopeDiff
}

// normalizeFindings applies the §4.4.2 per-finding normalization rules in
// place: severity coercion happened already in toVerdict via
// NormalizeSeverity; here we apply the evidence-demotion and
// suggestion_verified rules (invariant P3).
func normalizeFindings(findings []model.Finding) {
	for i := range findings {
		f := &findings[i]
		if f.SuggestionVerified != nil && !*f.SuggestionVerified {
			f.Severity = model.SeverityInfo
			continue
		}
		if strings.TrimSpace(f.Evidence) == "" && !f.IsUnverifiedTitle() && f.Scope != model.ScopeDefaultsChange {
			f.Severity = model.SeverityInfo
		}
	}
}

func recomputeStats(v *model.ReviewerVerdict) {
	var s model.Stats
	filesSeen := make(map[string]bool)
	filesWithIssues := make(map[string]bool)
	for _, f := range v.Findings {
		if f.File != "" {
			filesSeen[f.File] = true
			filesWithIssues[f.File] = true
		}
		switch f.Severity {
		case model.SeverityCritical:
			s.Critical++
		case model.SeverityMajor:
			s.Major++
		case model.SeverityMinor:
			s.Minor++
		default:
			s.Info++
		}
	}
	s.FilesReviewed = len(filesSeen)
	s.FilesWithIssues = len(filesWithIssues)
	// Preserve any files_reviewed count the model reported if it exceeds
	// what we can infer from findings' file fields (the model may have
	// reviewed files with no issues).
	if v.Stats.FilesReviewed > s.FilesReviewed {
		s.FilesReviewed = v.Stats.FilesReviewed
	}
	v.Stats = s
}

// recomputeVerdict implements the §4.4.3 decision rule over
// confidence>=0.7 findings only. It is a pure function of its input
// (invariant P4).
func recomputeVerdict(findings []model.Finding) model.Verdict {
	var critical, major, minor int
	byCategoryMinor := make(map[string]int)
	for _, f := range findings {
		if f.Confidence < 0.7 {
			continue
		}
		switch f.Severity {
		case model.SeverityCritical:
			critical++
		case model.SeverityMajor:
			major++
		case model.SeverityMinor:
			minor++
			byCategoryMinor[f.Category]++
		}
	}

	if critical > 0 || major >= 2 {
		return model.VerdictFail
	}

	maxCategoryMinor := 0
	for _, n := range byCategoryMinor {
		if n > maxCategoryMinor {
			maxCategoryMinor = n
		}
	}

	if major == 1 || minor >= 5 || maxCategoryMinor >= 3 {
		return model.VerdictWarn
	}

	return model.VerdictPass
}

func truncate(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	return b[:max]
}
