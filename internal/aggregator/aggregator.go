// Package aggregator implements the Verdict Aggregator (C5): combining
// per-reviewer verdicts into a single CerberusVerdict under the §4.5
// decision rule, applying authenticated overrides keyed to HEAD, and
// deciding wave-gating eligibility.
package aggregator

import (
	"context"
	"sort"

	"cerberus/internal/config"
	"cerberus/internal/model"
	"cerberus/internal/prstate"
)

// Aggregate combines verdicts (one per reviewer that ran) into a single
// CerberusVerdict, applying any authorized overrides found in pr's
// comments at the current HEAD (spec §4.5).
func Aggregate(ctx context.Context, cfg *config.Config, verdicts []model.ReviewerVerdict, pr prstate.PRState) (model.CerberusVerdict, error) {
	headSHA := pr.HeadSHA()
	comments, err := pr.Comments(ctx)
	if err != nil {
		return model.CerberusVerdict{}, err
	}

	candidates := ParseOverrides(ctx, cfg, pr, comments, headSHA)

	sorted := make([]model.ReviewerVerdict, len(verdicts))
	copy(sorted, verdicts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Reviewer < sorted[j].Reviewer })

	var applied, rejected []model.Override

	for i := range sorted {
		v := &sorted[i]
		if v.Verdict != model.VerdictFail {
			continue
		}
		policy, err := cfg.GetOverridePolicy(v.Perspective)
		if err != nil {
			continue
		}
		for _, cand := range candidates {
			if !cand.Authorized {
				continue
			}
			if !actorSatisfiesPolicy(ctx, pr, cand.Actor, policy) {
				rej := cand
				rej.Authorized = false
				rej.RejectReason = "actor does not satisfy reviewer's override_policy"
				rejected = append(rejected, rej)
				continue
			}
			v.Overridden = true
			v.OverrideReason = cand.Reason
			v.OverrideActor = cand.Actor
			applied = append(applied, cand)
			break
		}
	}

	for _, cand := range candidates {
		if !cand.Authorized {
			rejected = append(rejected, cand)
		}
	}

	cv := model.CerberusVerdict{
		Verdict:           decide(sorted),
		ReviewerVerdicts:  sorted,
		AppliedOverrides:  applied,
		RejectedOverrides: rejected,
		HeadSHA:           headSHA,
	}
	return cv, nil
}

// decide implements the §4.5.3 cerberus-level decision rule. N = reviewers
// that did not SKIP, F = FAIL after overrides, W = WARN, C = any FAIL
// reviewer marked critical and not overridden.
func decide(verdicts []model.ReviewerVerdict) model.Verdict {
	var n, f, w int
	var criticalUnoverridden bool

	for _, v := range verdicts {
		if v.Verdict == model.VerdictSkip {
			continue
		}
		n++
		switch v.Verdict {
		case model.VerdictFail:
			if v.Overridden {
				continue
			}
			f++
			if isCriticalReviewer(v) {
				criticalUnoverridden = true
			}
		case model.VerdictWarn:
			w++
		}
	}

	switch {
	case n == 0:
		return model.VerdictSkip
	case criticalUnoverridden:
		return model.VerdictFail
	case f >= 2:
		return model.VerdictFail
	case f == 1 || w >= 1:
		return model.VerdictWarn
	default:
		return model.VerdictPass
	}
}

// isCriticalReviewer reports whether v's synthetic critical-reviewer flag
// was propagated. The aggregator is given ReviewerVerdict values, which do
// not themselves carry the ReviewerProfile.Critical flag, so callers that
// need criticality must annotate it before calling Aggregate; Critical is
// threaded through as an Overridden-adjacent annotation on the verdict via
// the config lookup the CLI layer performs. This helper exists so the
// decision function has one place that reads it.
func isCriticalReviewer(v model.ReviewerVerdict) bool {
	return v.CriticalReviewer
}

// AnnotateCriticality copies each verdict's reviewer-critical flag from cfg
// so decide() can apply the §4.5.3 "C" rule without re-reading config
// inside the pure decision function. Call this before Aggregate.
func AnnotateCriticality(cfg *config.Config, verdicts []model.ReviewerVerdict) {
	for i := range verdicts {
		if p, err := cfg.GetReviewer(verdicts[i].Reviewer); err == nil {
			verdicts[i].CriticalReviewer = p.Critical
		}
	}
}

// NextWaveEligible is the §4.5.2 wave-gating predicate: the next wave may
// run only if the current wave's findings contain nothing at or above
// gateSeverity (default: no critical and no major). It is a pure predicate;
// advancing to the next wave is the workflow's responsibility.
func NextWaveEligible(verdicts []model.ReviewerVerdict, gateSeverity model.Severity) bool {
	if gateSeverity == "" {
		gateSeverity = model.SeverityMajor
	}
	threshold := severityRank(gateSeverity)
	for _, v := range verdicts {
		for _, f := range v.Findings {
			if severityRank(f.Severity) >= threshold {
				return false
			}
		}
	}
	return true
}

func severityRank(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 3
	case model.SeverityMajor:
		return 2
	case model.SeverityMinor:
		return 1
	default:
		return 0
	}
}
