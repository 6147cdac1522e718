package matrix

import (
	"testing"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

type fakeResolver map[string]uint32

func (f fakeResolver) Resolve(endpointID string) (uint32, bool) {
	v, ok := f[endpointID]
	return v, ok
}

func TestBuilder_AggregatesBySGTPair(t *testing.T) {
	resolver := fakeResolver{"ep1": 10, "ep2": 20}
	start := time.Now().Add(-time.Hour)
	end := time.Now()
	b := NewBuilder(resolver, start, end, false)

	b.AddFlow("ep1", "ep2", models.FlowRecord{DstPort: 443, Protocol: 6, Bytes: 1000, Packets: 5})
	b.AddFlow("ep1", "ep2", models.FlowRecord{DstPort: 443, Protocol: 6, Bytes: 2000, Packets: 8})
	b.AddFlow("ep1", "ep2", models.FlowRecord{DstPort: 22, Protocol: 6, Bytes: 500, Packets: 2})

	snap := b.Build(1, 5, time.Now())
	if len(snap.Cells) != 1 {
		t.Fatalf("expected 1 cell, got %d", len(snap.Cells))
	}
	cell := snap.Cells[0]
	if cell.SrcSGT != 10 || cell.DstSGT != 20 {
		t.Fatalf("unexpected cell keys: %+v", cell)
	}
	if cell.FlowCount != 3 {
		t.Errorf("expected 3 flows, got %d", cell.FlowCount)
	}
	if cell.ByteCount != 3500 {
		t.Errorf("expected 3500 bytes, got %d", cell.ByteCount)
	}
	if len(cell.TopPorts) != 2 {
		t.Fatalf("expected 2 distinct ports, got %d", len(cell.TopPorts))
	}
	if cell.TopPorts[0].Port != 443 || cell.TopPorts[0].Flows != 2 {
		t.Errorf("expected port 443 to rank first with 2 flows, got %+v", cell.TopPorts[0])
	}
}

func TestBuilder_UnresolvedEndpointGoesToUnknownBucket(t *testing.T) {
	resolver := fakeResolver{"ep1": 10}
	b := NewBuilder(resolver, time.Now().Add(-time.Hour), time.Now(), false)
	b.AddFlow("ep1", "ep-unresolved", models.FlowRecord{DstPort: 80, Protocol: 6, Bytes: 100})

	snap := b.Build(1, 5, time.Now())
	if len(snap.Cells) != 0 {
		t.Errorf("expected no resolved cells, got %d", len(snap.Cells))
	}
	if snap.UnknownSGTFlows != 1 {
		t.Errorf("expected 1 unknown-SGT flow, got %d", snap.UnknownSGTFlows)
	}
}

func TestBuilder_ApproximateFlagCarriesThrough(t *testing.T) {
	b := NewBuilder(fakeResolver{}, time.Now(), time.Now(), true)
	snap := b.Build(1, 5, time.Now())
	if !snap.Approximate {
		t.Error("expected Approximate to be true")
	}
}
