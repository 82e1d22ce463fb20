package domain

// FailureCode tags a collaborator-reported failure. Transient codes are
// operational hiccups eligible for explicit retry; terminal codes are
// legitimate non-match outcomes and become matching_status = not_found
// instead of an error.
type FailureCode string

const (
	// Transient failures.
	CodeNetwork      FailureCode = "NETWORK"
	CodeTimeout      FailureCode = "TIMEOUT"
	CodeBrowserCrash FailureCode = "BROWSER_CRASH"
	CodeAPIQuota     FailureCode = "API_QUOTA"

	// Terminal non-matches.
	CodeNoSearchResult      FailureCode = "NO_SEARCH_RESULT"
	CodeNoMatchingCandidate FailureCode = "NO_MATCHING_CANDIDATE"
)

// Terminal reports whether the code is a deliberate non-match outcome
// that must never be retried.
func (c FailureCode) Terminal() bool {
	switch c {
	case CodeNoSearchResult, CodeNoMatchingCandidate:
		return true
	}
	return false
}

// Transient reports whether the code should land the product in the
// failed stage and wait for an explicit retry. Unknown codes count as
// transient so they stay visible to an operator instead of being
// silently closed as not_found.
func (c FailureCode) Transient() bool {
	return !c.Terminal()
}
