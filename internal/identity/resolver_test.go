package identity

import (
	"testing"
	"time"
)

func TestResolver_LateArrivingIdentity(t *testing.T) {
	sessions := NewSessionIndex(60 * time.Second)
	directory := NewDirectoryIndex()
	pending := NewPendingQueue(1000)
	resolver := NewResolver(sessions, directory, pending, DefaultConfidenceWeights(), 0.0)

	base := time.Unix(0, 0)
	for i := 0; i < 5; i++ {
		res := resolver.Resolve("ep-1", "10.0.0.5", base.Add(time.Duration(i)*time.Second))
		if !res.Pending {
			t.Fatalf("expected pending resolution before session arrives, iteration %d", i)
		}
	}
	if pending.Len() != 5 {
		t.Fatalf("expected 5 pending attributions, got %d", pending.Len())
	}

	sessions.Put(Session{
		Address: "10.0.0.5",
		UserID:  "alice",
		Groups:  []string{"G1"},
		Source:  "access-control",
		Start:   base,
	})

	replayed := resolver.ReplayPending("10.0.0.5", base.Add(90*time.Second))
	if len(replayed) != 5 {
		t.Fatalf("expected 5 replayed resolutions, got %d", len(replayed))
	}
	for _, r := range replayed {
		if r.UserID != "alice" {
			t.Errorf("expected alice, got %q", r.UserID)
		}
	}
	if pending.Len() != 0 {
		t.Errorf("expected pending queue drained, got %d remaining", pending.Len())
	}
}

func TestPendingQueue_CapacityDropsOldest(t *testing.T) {
	q := NewPendingQueue(3)
	for i := 0; i < 5; i++ {
		q.Push(PendingAttribution{EndpointID: "ep", Address: "a"})
	}
	if q.Len() != 3 {
		t.Fatalf("expected queue capped at 3, got %d", q.Len())
	}
	if q.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", q.Dropped())
	}
}
