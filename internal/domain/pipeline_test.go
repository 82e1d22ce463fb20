package domain

import (
	"testing"
	"time"
)

func TestStageValid(t *testing.T) {
	for _, stage := range []Stage{StageCrawled, StageTranslated, StageMatched, StageFailed} {
		if !stage.Valid() {
			t.Errorf("%s should be valid", stage)
		}
	}
	for _, stage := range []Stage{"", "done", "Crawled", "matching"} {
		if stage.Valid() {
			t.Errorf("%q should not be valid", stage)
		}
	}
}

func TestMatchingStatusValid(t *testing.T) {
	for _, status := range []MatchingStatus{MatchingPending, MatchingSuccess, MatchingNotFound} {
		if !status.Valid() {
			t.Errorf("%s should be valid", status)
		}
	}
	for _, status := range []MatchingStatus{"", "failed", "notfound"} {
		if status.Valid() {
			t.Errorf("%q should not be valid", status)
		}
	}
}

func TestProductLocked(t *testing.T) {
	now := time.Now()
	ttl := 10 * time.Minute
	owner := "worker-1"

	fresh := now.Add(-time.Minute)
	stale := now.Add(-11 * time.Minute)

	tests := []struct {
		name       string
		owner      *string
		acquiredAt *time.Time
		want       bool
	}{
		{"never locked", nil, nil, false},
		{"live lock", &owner, &fresh, true},
		{"expired lock", &owner, &stale, false},
		{"owner without timestamp", &owner, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{LockOwner: tt.owner, LockAcquiredAt: tt.acquiredAt}
			if got := p.Locked(ttl, now); got != tt.want {
				t.Errorf("Locked() = %v, want %v", got, tt.want)
			}
		})
	}
}
