package store

import (
	"testing"
	"time"

	"github.com/clarion-segmentation/clarion/internal/sketch"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

func testConfig() Config {
	return Config{HLLPrecision: 8, CMSWidth: 256, CMSDepth: 3, TopKCap: 8}
}

func TestRecordFlow_FirstLastSeenMonotonic(t *testing.T) {
	s := New(testConfig())
	start := time.Unix(1000, 0)
	end := time.Unix(1010, 0)

	s.RecordFlow("ep-a", "ep-b", models.FlowRecord{
		SrcAddr: "10.0.0.1", DstAddr: "10.0.0.2", DstPort: 443,
		Bytes: 100, Packets: 1, Start: start, End: end,
	})

	snap, ok := s.Snapshot("ep-a")
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	if snap.LastSeen.Before(end) {
		t.Errorf("last seen %v before flow end %v", snap.LastSeen, end)
	}
	if snap.FirstSeen.After(start) {
		t.Errorf("first seen %v after flow start %v", snap.FirstSeen, start)
	}

	// A later flow should not move first-seen backward even earlier in time.
	earlier := time.Unix(1, 0)
	s.RecordFlow("ep-a", "ep-b", models.FlowRecord{
		SrcAddr: "10.0.0.1", DstAddr: "10.0.0.3", DstPort: 80,
		Bytes: 10, Packets: 1, Start: earlier, End: earlier,
	})
	snap2, _ := s.Snapshot("ep-a")
	if !snap2.FirstSeen.Equal(snap.FirstSeen) {
		t.Errorf("first-seen changed on subsequent flow: %v -> %v", snap.FirstSeen, snap2.FirstSeen)
	}
}

func TestMergePartial_IdempotentUnderReplay(t *testing.T) {
	s := New(testConfig())
	mkPartial := func() Partial {
		peerHLL := sketch.NewHLL(8)
		peerHLL.Add([]byte("1.1.1.1"))
		portHLL := sketch.NewHLL(8)
		portHLL.Add([]byte("443"))
		portCMS := sketch.NewCMS(256, 3, 8)
		portCMS.Add("443", 5)
		peerCMS := sketch.NewCMS(256, 3, 8)
		peerCMS.Add("1.1.1.1", 5)
		return Partial{
			PeerHLL: peerHLL,
			PortHLL: portHLL,
			PortCMS: portCMS,
			PeerCMS: peerCMS,
			BytesIn: 500, BytesOut: 200, FlowCount: 3,
			FirstSeen: time.Unix(10, 0), LastSeen: time.Unix(20, 0),
		}
	}

	for i := 0; i < 3; i++ {
		applied, err := s.MergePartial("ep-x", "agent-1", 42, mkPartial())
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 && !applied {
			t.Error("expected first delivery to be newly applied")
		}
		if i > 0 && applied {
			t.Errorf("expected replay %d to be rejected as duplicate", i)
		}
	}

	snap, _ := s.Snapshot("ep-x")
	if snap.FlowCount != 3 {
		t.Errorf("replay was not idempotent: flow count = %d, want 3", snap.FlowCount)
	}
	if snap.BytesIn != 500 {
		t.Errorf("replay was not idempotent: bytes in = %d, want 500", snap.BytesIn)
	}
}
