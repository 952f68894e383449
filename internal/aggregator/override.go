package aggregator

import (
	"context"
	"regexp"
	"strings"

	"cerberus/internal/config"
	"cerberus/internal/model"
	"cerberus/internal/prstate"
)

// overrideCommandRe matches either `/cerberus override sha=<hex>` or the
// legacy `/council override sha=<hex>` alias (spec §4.5.1, §6.5). The
// Reason: line may appear on the next non-empty line(s).
var overrideCommandRe = regexp.MustCompile(`(?m)^/(?:cerberus|council) override\s+sha=([0-9a-fA-F]{7,40})\s*$`)
var reasonLineRe = regexp.MustCompile(`(?m)^Reason:\s*(.*)$`)

// ParseOverrides scans comments for override commands and evaluates each
// against headSHA and cfg's per-reviewer override policy. Every candidate
// is returned, authorized or not, so the caller can render rejection
// reasons (spec §7 "Unauthorized override ... recorded as rejected").
func ParseOverrides(ctx context.Context, cfg *config.Config, pr prstate.PRState, comments []prstate.Comment, headSHA string) []model.Override {
	var overrides []model.Override

	for _, c := range comments {
		shaMatch := overrideCommandRe.FindStringSubmatch(c.Body)
		if shaMatch == nil {
			continue
		}
		sha := shaMatch[1]

		reasonMatch := reasonLineRe.FindStringSubmatch(c.Body)
		reason := ""
		if reasonMatch != nil {
			reason = strings.TrimSpace(reasonMatch[1])
		}

		o := model.Override{
			SHA:    sha,
			Reason: reason,
			Actor:  c.Author,
		}

		if !shaMatchesHead(sha, headSHA) {
			o.Authorized = false
			o.RejectReason = "sha does not match HEAD"
			overrides = append(overrides, o)
			continue
		}

		if reason == "" {
			o.Authorized = false
			o.RejectReason = "missing or empty Reason: line"
			overrides = append(overrides, o)
			continue
		}

		authorized, rejectReason := authorize(ctx, cfg, pr, c.Author)
		o.Authorized = authorized
		o.RejectReason = rejectReason
		overrides = append(overrides, o)
	}

	return overrides
}

// shaMatchesHead compares a short or full SHA against the full head SHA.
func shaMatchesHead(sha, headSHA string) bool {
	sha = strings.ToLower(sha)
	headSHA = strings.ToLower(headSHA)
	if len(sha) > len(headSHA) {
		return false
	}
	return strings.HasPrefix(headSHA, sha)
}

// authorize is the last step ParseOverrides applies once the SHA and the
// Reason: line have passed, and it accepts every actor: ParseOverrides only
// rejects for structural reasons (bad SHA, empty reason). Because §6.5's
// grammar names no target reviewer, the actor is checked against a
// specific reviewer's override_policy later, per FAIL reviewer, in
// Aggregate (via actorSatisfiesPolicy).
func authorize(ctx context.Context, cfg *config.Config, pr prstate.PRState, actor string) (bool, string) {
	return true, ""
}

// actorSatisfiesPolicy reports whether actor may override a reviewer whose
// policy is p (spec §3 Override invariants, §4.5.1).
func actorSatisfiesPolicy(ctx context.Context, pr prstate.PRState, actor string, p model.OverridePolicy) bool {
	switch p {
	case model.OverridePRAuthor, "":
		if p == "" {
			// Unset defaults to write_access (config.GetOverridePolicy already
			// applies this default; this branch only fires if called directly).
			perm, _ := pr.Permission(ctx, actor)
			return perm == prstate.PermissionWrite || perm == prstate.PermissionAdmin || perm == prstate.PermissionMaintain
		}
		return actor == pr.PRAuthor()
	case model.OverrideWriteAccess:
		perm, _ := pr.Permission(ctx, actor)
		return perm == prstate.PermissionWrite || perm == prstate.PermissionAdmin || perm == prstate.PermissionMaintain
	case model.OverrideMaintainersOnly:
		perm, _ := pr.Permission(ctx, actor)
		return perm == prstate.PermissionAdmin || perm == prstate.PermissionMaintain
	default:
		return false
	}
}
