package domain

import "testing"

func TestFailureCodeClassification(t *testing.T) {
	terminal := []FailureCode{CodeNoSearchResult, CodeNoMatchingCandidate}
	transient := []FailureCode{CodeNetwork, CodeTimeout, CodeBrowserCrash, CodeAPIQuota}

	for _, code := range terminal {
		if !code.Terminal() {
			t.Errorf("%s should be terminal", code)
		}
		if code.Transient() {
			t.Errorf("%s should not be transient", code)
		}
	}

	for _, code := range transient {
		if code.Terminal() {
			t.Errorf("%s should not be terminal", code)
		}
		if !code.Transient() {
			t.Errorf("%s should be transient", code)
		}
	}
}

// A code this store has never seen must land on the retryable side:
// closing a product as not_found on an unknown error would silently
// drop it from the pipeline.
func TestUnknownFailureCodeIsTransient(t *testing.T) {
	for _, code := range []FailureCode{"", "SOMETHING_NEW", "network"} {
		if code.Terminal() {
			t.Errorf("unknown code %q must not be terminal", code)
		}
		if !code.Transient() {
			t.Errorf("unknown code %q must be transient", code)
		}
	}
}
