package sgt

import (
	"testing"
	"time"

	"github.com/clarion-segmentation/clarion/internal/cluster"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

func TestRegistry_AllocateSequentialNeverReuses(t *testing.T) {
	r := NewRegistry(2)
	a, err := r.Allocate("Printers", "auto", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Allocate("Scanners", "auto", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Value != 2 || b.Value != 3 {
		t.Fatalf("expected sequential values 2,3, got %d,%d", a.Value, b.Value)
	}

	r.Deprecate(a.Value)
	c, err := r.Allocate("Cameras", "auto", "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Value == a.Value {
		t.Errorf("deprecated value %d was reused", a.Value)
	}
}

func TestRegistry_DuplicateActiveNameRejected(t *testing.T) {
	r := NewRegistry(2)
	if _, err := r.Allocate("Printers", "auto", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Allocate("Printers", "auto", ""); err == nil {
		t.Fatal("expected error for duplicate active name")
	} else if kind, _ := models.KindOf(err); kind != models.ConfigurationInvalid {
		t.Errorf("expected ConfigurationInvalid, got %v", kind)
	}
}

func TestBinder_LabelMatchWinsOverOverlap(t *testing.T) {
	registry := NewRegistry(2)
	membership := NewMembershipTable()

	printers, _ := registry.Allocate("Printers", "auto", "")
	other, _ := registry.Allocate("Other", "auto", "")

	now := time.Now()
	// ep1 currently belongs to "Other" — overlap would point there —
	// but the new cluster's label matches the active "Printers" SGT.
	membership.Set(models.Membership{EndpointID: "ep1", SGTValue: other.Value, AssignedAt: now})
	membership.Set(models.Membership{EndpointID: "ep2", SGTValue: other.Value, AssignedAt: now})

	binder := NewBinder(registry, membership, DefaultBindConfig())
	result := cluster.BatchResult{
		Clusters: []models.Cluster{
			{ID: 0, Label: "Printers", Members: []string{"ep1", "ep2"}, Confidence: 0.9},
		},
	}

	binds := binder.Bind(result, nil, now)
	if len(binds) != 1 || binds[0].SGTValue != printers.Value {
		t.Fatalf("expected label match to bind to %d, got %+v", printers.Value, binds)
	}
	if binds[0].Minted {
		t.Error("expected reuse via label match, not minting")
	}
}

func TestBinder_NoMatchMintsNewSGT(t *testing.T) {
	registry := NewRegistry(2)
	membership := NewMembershipTable()
	binder := NewBinder(registry, membership, DefaultBindConfig())

	result := cluster.BatchResult{
		Clusters: []models.Cluster{
			{ID: 0, Label: "IoT-Sensors", Members: []string{"ep1", "ep2"}, Confidence: 0.8},
		},
	}
	binds := binder.Bind(result, nil, time.Now())
	if len(binds) != 1 || !binds[0].Minted {
		t.Fatalf("expected a newly minted SGT, got %+v", binds)
	}
}

func TestBinder_ManualLockPreservesAssignment(t *testing.T) {
	registry := NewRegistry(2)
	membership := NewMembershipTable()
	locked, _ := registry.Allocate("Locked-Group", "manual", "")
	now := time.Now()
	membership.Set(models.Membership{EndpointID: "ep1", SGTValue: locked.Value, AssignedAt: now, ManualLocked: true})

	binder := NewBinder(registry, membership, DefaultBindConfig())
	result := cluster.BatchResult{
		Clusters: []models.Cluster{
			{ID: 0, Label: "New-Cluster", Members: []string{"ep1"}, Confidence: 0.8},
		},
	}
	binder.Bind(result, nil, now)

	m, ok := membership.Get("ep1")
	if !ok || m.SGTValue != locked.Value {
		t.Fatalf("expected manually locked endpoint to keep SGT %d, got %+v", locked.Value, m)
	}
}

func TestBinder_SixtyPercentOverlapDoesNotReuse(t *testing.T) {
	registry := NewRegistry(2)
	membership := NewMembershipTable()
	prior, _ := registry.Allocate("Prior-Group", "auto", "")

	now := time.Now()
	// 3 of 5 members (60%) previously shared an SGT — below the 70%
	// reuse threshold, so overlap must not win and a new SGT is minted.
	membership.Set(models.Membership{EndpointID: "ep1", SGTValue: prior.Value, AssignedAt: now})
	membership.Set(models.Membership{EndpointID: "ep2", SGTValue: prior.Value, AssignedAt: now})
	membership.Set(models.Membership{EndpointID: "ep3", SGTValue: prior.Value, AssignedAt: now})

	binder := NewBinder(registry, membership, DefaultBindConfig())
	result := cluster.BatchResult{
		Clusters: []models.Cluster{
			{ID: 0, Label: "", Members: []string{"ep1", "ep2", "ep3", "ep4", "ep5"}, Confidence: 0.8},
		},
	}

	binds := binder.Bind(result, nil, now)
	if len(binds) != 1 || !binds[0].Minted {
		t.Fatalf("expected 60%% overlap to fall through to minting a new SGT, got %+v", binds)
	}
	if binds[0].SGTValue == prior.Value {
		t.Errorf("60%% overlap must not reuse the prior SGT %d", prior.Value)
	}
}

func TestBinder_SuppressesFlaggedClusterMembers(t *testing.T) {
	registry := NewRegistry(2)
	membership := NewMembershipTable()
	sgtA, _ := registry.Allocate("Group-A", "auto", "")
	sgtB, _ := registry.Allocate("Group-B", "auto", "")

	now := time.Now()
	membership.Set(models.Membership{EndpointID: "a", SGTValue: sgtA.Value, AssignedAt: now})
	membership.Set(models.Membership{EndpointID: "b", SGTValue: sgtA.Value, AssignedAt: now})
	membership.Set(models.Membership{EndpointID: "c", SGTValue: sgtB.Value, AssignedAt: now})
	membership.Set(models.Membership{EndpointID: "d", SGTValue: sgtB.Value, AssignedAt: now})

	// All four land in one fresh cluster, churning half of it — the
	// guard must flag it, and the subsequent Bind must leave every
	// pre-existing member's SGT untouched rather than silently moving
	// them into whatever the binder would have otherwise reconciled to.
	ids := []string{"a", "b", "c", "d"}
	prior := map[string]uint32{"a": sgtA.Value, "b": sgtA.Value, "c": sgtB.Value, "d": sgtB.Value}
	fresh := map[string]int{"a": 0, "b": 0, "c": 0, "d": 0}

	guard := NewStabilityGuard(DefaultStabilityConfig())
	_, _, flags := guard.Evaluate(ids, prior, fresh, now)
	if len(flags) != 1 {
		t.Fatalf("expected the merged cluster to be flagged, got %+v", flags)
	}

	binder := NewBinder(registry, membership, DefaultBindConfig())
	result := cluster.BatchResult{
		Clusters: []models.Cluster{
			{ID: 0, Label: "Merged", Members: ids, Confidence: 0.8},
		},
	}
	binds := binder.Bind(result, flags, now)
	if len(binds) != 1 || !binds[0].Suppressed {
		t.Fatalf("expected the flagged cluster's bind to be suppressed, got %+v", binds)
	}

	for id, want := range prior {
		m, ok := membership.Get(id)
		if !ok || m.SGTValue != want {
			t.Errorf("expected %s to retain SGT %d after suppressed bind, got %+v", id, want, m)
		}
	}
}

func TestStabilityGuard_FlagsHighChurnCluster(t *testing.T) {
	guard := NewStabilityGuard(DefaultStabilityConfig())
	ids := []string{"a", "b", "c", "d"}
	prior := map[string]uint32{"a": 1, "b": 1, "c": 2, "d": 2}
	// all four land in new cluster 0, but only "a" and "b" previously
	// shared an SGT — majority is SGT 1, so c and d count as churned.
	fresh := map[string]int{"a": 0, "b": 0, "c": 0, "d": 0}

	_, _, flags := guard.Evaluate(ids, prior, fresh, time.Now())
	if len(flags) != 1 {
		t.Fatalf("expected 1 stability flag, got %d: %+v", len(flags), flags)
	}
	if flags[0].ChurnFrac != 0.5 {
		t.Errorf("expected churn fraction 0.5, got %f", flags[0].ChurnFrac)
	}
}

func TestStabilityGuard_StablePartitionNoFlags(t *testing.T) {
	guard := NewStabilityGuard(DefaultStabilityConfig())
	ids := []string{"a", "b", "c", "d"}
	prior := map[string]uint32{"a": 1, "b": 1, "c": 2, "d": 2}
	fresh := map[string]int{"a": 0, "b": 0, "c": 1, "d": 1}

	ari, _, flags := guard.Evaluate(ids, prior, fresh, time.Now())
	if len(flags) != 0 {
		t.Errorf("expected no flags for stable partition, got %+v", flags)
	}
	if ari < 0.9 {
		t.Errorf("expected near-perfect ARI agreement, got %f", ari)
	}
}
