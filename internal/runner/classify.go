package runner

import (
	"regexp"
	"strconv"
	"strings"
)

// Outcome classifies one invocation attempt's result (spec §4.3.3).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeAuthOrQuota
	OutcomeClient4xx
	OutcomeRateLimit
	OutcomeServer5xx
	OutcomeNetwork
	OutcomeProviderGeneric
	OutcomeEmptyOutput
	OutcomeTimeout
	OutcomeUnknown
)

// AuthSubtype names the specific api_error SKIP title for auth/quota failures.
type AuthSubtype string

const (
	AuthSubtypeKeyInvalid     AuthSubtype = "API_KEY_INVALID"
	AuthSubtypeCreditsDepleted AuthSubtype = "API_CREDITS_DEPLETED"
	AuthSubtypeGeneric        AuthSubtype = "API_ERROR"
)

// Classification is the result of classifying one invocation attempt.
type Classification struct {
	Outcome Outcome
	// Retryable: retry the *same* model after backoff.
	Retryable bool
	// AdvanceModel: on retry exhaustion, move to the next model in the
	// fallback chain (false for auth/quota — no fallback is attempted).
	AdvanceModel bool
	AuthSubtype  AuthSubtype
	RetryAfter   int // seconds, 0 if not specified by the provider
}

var (
	reInvalidKey    = regexp.MustCompile(`(?i)(invalid[_ ]api[_ ]key|invalid[_ ]key|authentication[_ ]failed|unauthorized|no credentials|not authenticated)`)
	reCreditsOut    = regexp.MustCompile(`(?i)(insufficient[_ ]credits|quota[_ ]exceeded|credit[s]?[_ ]depleted|billing)`)
	reRateLimit     = regexp.MustCompile(`(?i)(rate[_ ]limit|too many requests|429)`)
	reServerError   = regexp.MustCompile(`(?i)(5\d\d|internal server error|service unavailable|bad gateway|gateway timeout)`)
	reNetworkError  = regexp.MustCompile(`(?i)(connection reset|connection refused|dns|no route to host|network is unreachable|i/o timeout|broken pipe)`)
	reProviderGeneric = regexp.MustCompile(`(?i)(provider error|upstream error|model error|overloaded)`)
	reClient4xx     = regexp.MustCompile(`(?i)\b4\d\d\b`)
	reRetryAfter    = regexp.MustCompile(`(?i)retry-after:?\s*(\d+)`)
)

// Classify determines the outcome of one invocation attempt from its exit
// code and combined stdout+stderr text, per the ordered rules in spec §4.3.3.
func Classify(exitCode int, combined string, timedOut bool, hasScratchpadContent bool) Classification {
	if timedOut {
		return Classification{Outcome: OutcomeTimeout}
	}

	switch {
	case reInvalidKey.MatchString(combined):
		return Classification{Outcome: OutcomeAuthOrQuota, AuthSubtype: AuthSubtypeKeyInvalid}
	case reCreditsOut.MatchString(combined):
		return Classification{Outcome: OutcomeAuthOrQuota, AuthSubtype: AuthSubtypeCreditsDepleted}
	case reRateLimit.MatchString(combined) || exitCode == 429:
		return Classification{Outcome: OutcomeRateLimit, Retryable: true, AdvanceModel: true, RetryAfter: parseRetryAfter(combined)}
	case reServerError.MatchString(combined):
		return Classification{Outcome: OutcomeServer5xx, Retryable: true, AdvanceModel: true}
	case reNetworkError.MatchString(combined):
		return Classification{Outcome: OutcomeNetwork, Retryable: true, AdvanceModel: true}
	case reProviderGeneric.MatchString(combined):
		return Classification{Outcome: OutcomeProviderGeneric, Retryable: true, AdvanceModel: true}
	case exitCode != 0 && reClient4xx.MatchString(strconv.Itoa(exitCode)):
		return Classification{Outcome: OutcomeClient4xx, AdvanceModel: true}
	}

	if exitCode == 0 && strings.TrimSpace(combined) == "" && !hasScratchpadContent {
		return Classification{Outcome: OutcomeEmptyOutput, Retryable: true, AdvanceModel: true}
	}

	if exitCode == 0 {
		return Classification{Outcome: OutcomeSuccess}
	}

	return Classification{Outcome: OutcomeUnknown}
}

func parseRetryAfter(combined string) int {
	m := reRetryAfter.FindStringSubmatch(combined)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// AuthTitle returns the SKIP finding title for an auth/quota classification.
func (c Classification) AuthTitle() string {
	if c.AuthSubtype == "" {
		return string(AuthSubtypeGeneric)
	}
	return string(c.AuthSubtype)
}

// SkipTitle returns the api_error SKIP finding title for a non-auth
// classification once every model in the fallback chain is exhausted
// (spec §4.4.4: RATE_LIMITED, SERVICE_UNAVAILABLE, or the generic
// API_ERROR for every other transient/unknown outcome).
func (c Classification) SkipTitle() string {
	switch c.Outcome {
	case OutcomeRateLimit:
		return "RATE_LIMITED"
	case OutcomeServer5xx:
		return "SERVICE_UNAVAILABLE"
	default:
		return string(AuthSubtypeGeneric)
	}
}
