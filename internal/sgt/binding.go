package sgt

import (
	"strconv"
	"time"

	"github.com/clarion-segmentation/clarion/internal/cluster"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

// BindConfig tunes the batch-run reconciliation of §4.7.
type BindConfig struct {
	// MemberOverlapMin is the fraction of a new cluster's members that
	// must already belong to a prior SGT for that SGT to be reused by
	// overlap rather than by label match.
	MemberOverlapMin float64
}

// DefaultBindConfig returns the documented default: 70% member
// overlap per the "equivalent SGT" reuse rule of §4.7.
func DefaultBindConfig() BindConfig {
	return BindConfig{MemberOverlapMin: 0.70}
}

// Binder reconciles a fresh batch clustering run against the existing
// registry and membership table, minting new SGTs only for clusters
// that cannot be matched to one already bound.
type Binder struct {
	registry   *Registry
	membership *MembershipTable
	cfg        BindConfig
}

// NewBinder builds a binder over the given registry and membership
// table.
func NewBinder(registry *Registry, membership *MembershipTable, cfg BindConfig) *Binder {
	return &Binder{registry: registry, membership: membership, cfg: cfg}
}

// BindResult describes the outcome for one cluster from a batch run.
type BindResult struct {
	ClusterID  int
	SGTValue   uint32
	Minted     bool
	Suppressed bool
	Rationale  string
}

// Bind reconciles result against the current state, honoring manual
// locks (endpoints pinned by an operator keep their SGT and are
// excluded from the new cluster's membership for binding purposes).
//
// Precedence per the label-match-wins decision: a cluster whose
// semantic label matches the name of an existing active SGT reuses
// that SGT's value even when member overlap alone would have pointed
// elsewhere. Only when no label match exists does member overlap
// decide reuse; only when neither matches is a new SGT minted.
//
// flags is the stability guard's churn-flag output for this same
// batch run (§4.7/§8): any cluster named by a flag is suppressed
// entirely — none of its members are rebound and their prior
// memberships are left untouched — rather than auto-rebound, since
// the flag means the partition changed too much for auto-rebinding to
// be safe this run.
func (b *Binder) Bind(result cluster.BatchResult, flags []models.StabilityFlag, now time.Time) []BindResult {
	flagged := make(map[int]bool, len(flags))
	for _, f := range flags {
		flagged[f.ClusterID] = true
	}

	out := make([]BindResult, 0, len(result.Clusters))
	for _, c := range result.Clusters {
		if flagged[c.ID] {
			out = append(out, BindResult{
				ClusterID:  c.ID,
				Suppressed: true,
				Rationale:  "suppressed: stability churn flag raised for this cluster, members retain prior SGT",
			})
			continue
		}
		out = append(out, b.bindOne(c, now))
	}
	return out
}

func (b *Binder) bindOne(c models.Cluster, now time.Time) BindResult {
	if sgtVal, ok := b.matchByLabel(c.Label); ok {
		b.apply(c, sgtVal, now)
		return BindResult{ClusterID: c.ID, SGTValue: sgtVal, Rationale: "label match: " + c.Label}
	}

	if sgtVal, ok := b.matchByOverlap(c.Members); ok {
		b.apply(c, sgtVal, now)
		return BindResult{ClusterID: c.ID, SGTValue: sgtVal, Rationale: "member overlap with prior cluster"}
	}

	sgtDef, err := b.registry.Allocate(c.Label, "auto", c.Rationale)
	if err != nil {
		// name collision without an active match (e.g. a deprecated
		// SGT by the same name): fall back to a disambiguated name.
		sgtDef, _ = b.registry.Allocate(c.Label+"-"+strconv.Itoa(c.ID), "auto", c.Rationale)
	}
	b.apply(c, sgtDef.Value, now)
	return BindResult{ClusterID: c.ID, SGTValue: sgtDef.Value, Minted: true, Rationale: "new cluster, no match"}
}

func (b *Binder) matchByLabel(label string) (uint32, bool) {
	if label == "" {
		return 0, false
	}
	s, ok := b.registry.Lookup(label)
	if !ok {
		return 0, false
	}
	return s.Value, true
}

func (b *Binder) matchByOverlap(members []string) (uint32, bool) {
	if len(members) == 0 {
		return 0, false
	}
	counts := make(map[uint32]int)
	for _, ep := range members {
		if b.membership.IsManuallyLocked(ep) {
			continue
		}
		if m, ok := b.membership.Get(ep); ok {
			counts[m.SGTValue]++
		}
	}
	var bestVal uint32
	var bestCount int
	for v, n := range counts {
		if n > bestCount {
			bestVal, bestCount = v, n
		}
	}
	if bestCount == 0 {
		return 0, false
	}
	if float64(bestCount)/float64(len(members)) < b.cfg.MemberOverlapMin {
		return 0, false
	}
	return bestVal, true
}

func (b *Binder) apply(c models.Cluster, sgtValue uint32, now time.Time) {
	for _, ep := range c.Members {
		if b.membership.IsManuallyLocked(ep) {
			continue
		}
		b.membership.Set(models.Membership{
			EndpointID:  ep,
			SGTValue:    sgtValue,
			AssignedAt:  now,
			ConfirmedAt: now,
			AssignedBy:  models.OriginClusterer,
			Confidence:  c.Confidence,
			ClusterID:   c.ID,
		})
	}
}
