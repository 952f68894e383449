package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"cerberus/internal/diffutil"
	"cerberus/internal/model"
)

// VerdictMarker is the hidden comment tag that identifies the cerberus
// verdict comment for idempotent upsert (spec §6.4).
const VerdictMarker = "<!-- cerberus:verdict -->"

// RenderMarkdown is the pure CerberusVerdict → string renderer called out
// in §9's "markdown rendering intermixed with decision logic" redesign
// note: the aggregator computes the verdict, this function only formats
// it. The PR-comment upsert layer (out of scope, §1) is responsible for
// locating VerdictMarker and updating in place.
func RenderMarkdown(cv model.CerberusVerdict) string {
	var b strings.Builder

	fmt.Fprintln(&b, VerdictMarker)
	fmt.Fprintf(&b, "## Cerberus: %s\n\n", cv.Verdict)

	reviewers := make([]model.ReviewerVerdict, len(cv.ReviewerVerdicts))
	copy(reviewers, cv.ReviewerVerdicts)
	sort.Slice(reviewers, func(i, j int) bool { return reviewers[i].Reviewer < reviewers[j].Reviewer })

	for _, rv := range reviewers {
		fmt.Fprintf(&b, "<details>\n<summary>%s — %s (%s)</summary>\n\n", rv.Reviewer, rv.Perspective, rv.Verdict)
		if rv.Verdict == model.VerdictSkip {
			renderSkipBanner(&b, rv)
		} else {
			if rv.Overridden {
				fmt.Fprintf(&b, "> **Overridden** by @%s: %s\n\n", rv.OverrideActor, rv.OverrideReason)
			}
			fmt.Fprintf(&b, "%s\n\n", rv.Summary)
			for _, f := range rv.Findings {
				renderFinding(&b, f)
			}
		}
		fmt.Fprintf(&b, "\nmodel: `%s`", rv.ModelUsed)
		if rv.FallbackUsed {
			fmt.Fprintf(&b, " (fallback from `%s`)", rv.PrimaryModel)
		}
		fmt.Fprintf(&b, "\n</details>\n\n")
	}

	if len(cv.AppliedOverrides) > 0 {
		fmt.Fprintln(&b, "### Applied overrides")
		for _, o := range cv.AppliedOverrides {
			fmt.Fprintf(&b, "- `%s` by @%s: %s\n", o.SHA, o.Actor, o.Reason)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "_head: `%s`_\n", cv.HeadSHA)
	return b.String()
}

func renderSkipBanner(b *strings.Builder, rv model.ReviewerVerdict) {
	if len(rv.Findings) == 0 {
		fmt.Fprintln(b, "> SKIP (no further detail available)\n")
		return
	}
	f := rv.Findings[0]
	switch model.SkipCategory(f.Category) {
	case model.SkipTimeout:
		fmt.Fprintf(b, "> ⏱️ **Timed out**: %s\n\n", f.Description)
	case model.SkipAPIError:
		fmt.Fprintf(b, "> 🔌 **API error** (`%s`): %s\n\n", f.Title, f.Description)
	case model.SkipParseFailure:
		fmt.Fprintf(b, "> ⚠️ **Parse failure** (`%s`): %s\n\n", f.Title, f.Description)
	default:
		fmt.Fprintf(b, "> SKIP: %s\n\n", f.Description)
	}
}

func renderFinding(b *strings.Builder, f model.Finding) {
	tag := severityTag(f.Severity)
	loc := f.File
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d", f.File, f.Line)
	}
	if loc != "" {
		fmt.Fprintf(b, "- %s **%s** (`%s`) — %s\n", tag, f.Title, loc, f.Description)
	} else {
		fmt.Fprintf(b, "- %s **%s** — %s\n", tag, f.Title, f.Description)
	}
	if f.Suggestion != "" {
		fmt.Fprintf(b, "  - suggestion: %s\n", f.Suggestion)
	}
}

func severityTag(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "🔴 CRITICAL"
	case model.SeverityMajor:
		return "🟠 MAJOR"
	case model.SeverityMinor:
		return "🟡 minor"
	default:
		return "ℹ️ info"
	}
}

// InlineComments returns up to maxComments findings suitable for an inline
// PR review (spec §4.5.4, "capped at 30"), ordered by severity then by
// reviewer codename for determinism. A finding only becomes an inline
// comment if diff anchors it to a live diff position — GitHub's review API
// rejects comments on lines outside the diff, so unanchored findings are
// dropped rather than surfaced with a broken position. When a finding
// carries an evidence quote, it is fuzzy-matched against the diff so the
// renderer can flag evidence that doesn't actually appear where claimed.
func InlineComments(cv model.CerberusVerdict, diff string, maxComments int) []InlineComment {
	var out []InlineComment
	for _, rv := range cv.ReviewerVerdicts {
		for _, f := range rv.Findings {
			if f.File == "" || f.Line <= 0 {
				continue
			}
			pos, ok := diffutil.InlinePosition(diff, f.File, f.Line)
			if !ok {
				continue
			}
			verified := f.Evidence == "" || diffutil.QuoteMatches(diff, f.Evidence)
			out = append(out, InlineComment{
				Reviewer:         rv.Reviewer,
				Finding:          f,
				Position:         pos,
				EvidenceVerified: verified,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := severityRank(out[i].Finding.Severity), severityRank(out[j].Finding.Severity)
		if ri != rj {
			return ri > rj
		}
		return out[i].Reviewer < out[j].Reviewer
	})
	if len(out) > maxComments {
		out = out[:maxComments]
	}
	return out
}

// InlineComment anchors one finding to a diff position for a PR review.
type InlineComment struct {
	Reviewer string
	Finding  model.Finding
	// Position is the diff position (GitHub review-comment anchor) computed
	// by diffutil.InlinePosition.
	Position int
	// EvidenceVerified is false when the finding carries an evidence quote
	// that doesn't actually appear (even fuzzily) in the diff.
	EvidenceVerified bool
}
