package db

import (
	"errors"
	"testing"
)

func TestWithRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := withRetry(func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected 1 call and no error, got %d calls, err=%v", calls, err)
	}
}

func TestWithRetry_RetriesExactlyOnceThenSucceeds(t *testing.T) {
	calls := 0
	err := withRetry(func() error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected 2 calls and no error after retry, got %d calls, err=%v", calls, err)
	}
}

func TestWithRetry_SurfacesErrorAfterSecondFailure(t *testing.T) {
	calls := 0
	sentinel := errors.New("persistent failure")
	err := withRetry(func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) || calls != 2 {
		t.Fatalf("expected the error surfaced after exactly 2 attempts, got %d calls, err=%v", calls, err)
	}
}

func TestRecomputeEligible_RejectsNonAllowlistedColumn(t *testing.T) {
	s := &Store{}
	_, err := s.RecomputeEligible(nil, "endpoint_id; DROP TABLE membership;--", 100)
	if err == nil {
		t.Fatal("expected rejection of non-allowlisted order column")
	}
}

func TestRecomputeEligible_AllowlistedColumnsPresent(t *testing.T) {
	for _, col := range []string{"confirmed_at", "confidence"} {
		if !eligibleColumns[col] {
			t.Errorf("expected %q to be allowlisted", col)
		}
	}
}
