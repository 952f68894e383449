// Package triage implements the Triage Guard (C6): deciding whether a
// follow-up "fix" attempt runs, under circuit-breaker rules that prevent
// infinite re-review loops (spec §4.6).
package triage

import (
	"context"
	"regexp"
	"strings"
	"time"

	"cerberus/internal/model"
	"cerberus/internal/prstate"
)

// Mode is the triage guard's decision.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeSkip     Mode = "skip"
	ModeDiagnose Mode = "diagnose"
	ModeFix      Mode = "fix"
)

// Trigger is how this triage evaluation was invoked.
type Trigger string

const (
	TriggerAutomatic Trigger = "automatic" // the PR event itself
	TriggerComment   Trigger = "comment"   // a manual PR comment
	TriggerSchedule  Trigger = "schedule"  // a scheduled/cron trigger
)

// Request bundles everything the guard needs to decide (spec §4.6).
type Request struct {
	Trigger           Trigger
	KillSwitch        bool
	TrustedBotLogin   string
	MaxAttempts       int
	StaleAfter        time.Duration
	RequestedMode     Mode // "diagnose" or "fix", as requested by the caller
	VerdictCommentAge time.Duration
	Now               time.Time
}

// triageMarkerRe matches the per-run triage comment marker (spec §6.4):
// `<!-- cerberus:triage sha=<prefix> run=<id> -->`.
var triageMarkerRe = regexp.MustCompile(`cerberus:triage sha=([0-9a-fA-F]+)`)

// Decide implements the §4.6 skip predicates and mode selection.
func Decide(ctx context.Context, req Request, latest model.CerberusVerdict, pr prstate.PRState) (Mode, error) {
	if req.KillSwitch {
		return ModeDisabled, nil
	}

	comments, err := pr.Comments(ctx)
	if err != nil {
		return ModeDisabled, err
	}

	verdictComment, found := latestTrustedVerdictComment(comments, req.TrustedBotLogin)
	if !found {
		return ModeSkip, nil
	}
	// When the caller gives no verdict age, derive it from the latest
	// trusted verdict comment's timestamp.
	verdictAge := req.VerdictCommentAge
	if verdictAge == 0 && !verdictComment.CreatedAt.IsZero() {
		now := req.Now
		if now.IsZero() {
			now = time.Now()
		}
		verdictAge = now.Sub(verdictComment.CreatedAt)
	}

	if latest.Verdict != model.VerdictFail {
		return ModeSkip, nil
	}

	headSHA := pr.HeadSHA()
	attempts := countTriageAttempts(comments, req.TrustedBotLogin, headSHA)
	if req.MaxAttempts > 0 && attempts >= req.MaxAttempts {
		return ModeSkip, nil
	}

	if strings.Contains(pr.HeadCommitMessage(), "[triage]") {
		return ModeSkip, nil
	}

	if req.Trigger == TriggerSchedule && verdictAge < req.StaleAfter {
		return ModeSkip, nil
	}

	if req.Trigger != TriggerAutomatic {
		return ModeDiagnose, nil
	}
	if pr.IsFork() {
		return ModeDiagnose, nil
	}
	if !pr.IsGitCheckout() {
		return ModeDiagnose, nil
	}

	if req.RequestedMode == ModeFix {
		return ModeFix, nil
	}
	return ModeDiagnose, nil
}

// latestTrustedVerdictComment returns the most recent comment authored by
// the trusted bot login containing the verdict marker.
func latestTrustedVerdictComment(comments []prstate.Comment, botLogin string) (prstate.Comment, bool) {
	var latest prstate.Comment
	var found bool
	for _, c := range comments {
		if c.Author != botLogin {
			continue
		}
		if !strings.Contains(c.Body, "cerberus:verdict") {
			continue
		}
		if !found || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
			found = true
		}
	}
	return latest, found
}

// countTriageAttempts counts triage-marker comments authored by the
// trusted bot for the current HEAD prefix (spec §4.6: "count triage-marker
// comments... authored by the trusted bot"). Only the configured bot
// login's comments count — PR-author or outsider comments never
// influence the circuit breaker.
func countTriageAttempts(comments []prstate.Comment, botLogin, headSHA string) int {
	count := 0
	headSHA = strings.ToLower(headSHA)
	for _, c := range comments {
		if c.Author != botLogin {
			continue
		}
		m := triageMarkerRe.FindStringSubmatch(c.Body)
		if m == nil {
			continue
		}
		prefix := strings.ToLower(m[1])
		if strings.HasPrefix(headSHA, prefix) {
			count++
		}
	}
	return count
}

// FixOutcome is the result of a fix-mode triage attempt.
type FixOutcome string

const (
	FixOutcomeFixed     FixOutcome = "fixed"
	FixOutcomeNoChanges FixOutcome = "no_changes"
	FixOutcomeFailed    FixOutcome = "fix_failed"
)

// TriageCommentMarker builds the per-run triage marker (spec §6.4).
func TriageCommentMarker(headSHA, runID string) string {
	prefix := headSHA
	if len(prefix) > 7 {
		prefix = prefix[:7]
	}
	return "<!-- cerberus:triage sha=" + prefix + " run=" + runID + " -->"
}
