package sketch

import (
	"testing"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

func TestExtract_Deterministic(t *testing.T) {
	snap := models.SketchSnapshot{
		EndpointID:      "ep-1",
		PeerCardinality: 42,
		PortCardinality: 3,
		TopPorts:        []models.KeyCount{{Key: "443", Count: 900}, {Key: "22", Count: 100}},
		BytesIn:         1000,
		BytesOut:        9000,
		FlowCount:       50,
		FirstSeen:       time.Unix(0, 0),
		LastSeen:        time.Unix(3600, 0),
		UpdateCount:     10,
	}

	v1 := Extract(snap)
	v2 := Extract(snap)

	if len(v1) != models.FeatureDimension {
		t.Fatalf("expected %d dims, got %d", models.FeatureDimension, len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Errorf("feature %d not deterministic: %f != %f", i, v1[i], v2[i])
		}
	}
}

func TestExtract_EmptySketchUsesSentinelNotNaN(t *testing.T) {
	v := Extract(models.SketchSnapshot{})
	for i, f := range v {
		if f != f { // NaN check
			t.Errorf("feature %d is NaN, want sentinel", i)
		}
	}
}
