package sgt

import (
	"time"

	"github.com/clarion-segmentation/clarion/internal/metrics"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

// StabilityConfig tunes the churn guard of §4.7/§8.
type StabilityConfig struct {
	MinARI       float64 // carried in the config; Evaluate reports ARI but does not compare it with MinARI
	MaxChurnFrac float64 // fraction of members that changed SGT; clusters above it are flagged
}

// DefaultStabilityConfig returns the documented defaults.
func DefaultStabilityConfig() StabilityConfig {
	return StabilityConfig{MinARI: 0.70, MaxChurnFrac: 0.25}
}

// StabilityGuard compares a new batch partition against the partition
// implied by current memberships and raises StabilityFlags for
// clusters whose composition changed too much for auto-rebinding to be
// safe. It reuses the teacher's ARI/VI implementation unmodified —
// the same partition-comparison math that scored heuristic clusters
// against ground truth now scores a new run against the prior one.
type StabilityGuard struct {
	cfg StabilityConfig
}

// NewStabilityGuard builds a guard with the given config.
func NewStabilityGuard(cfg StabilityConfig) *StabilityGuard {
	return &StabilityGuard{cfg: cfg}
}

// Evaluate reports the agreement between a prior membership table and
// a fresh batch clustering for the endpoint order given by ids, plus
// any per-cluster churn flags raised.
func (g *StabilityGuard) Evaluate(ids []string, priorSGT map[string]uint32, newCluster map[string]int, now time.Time) (ari, vi float64, flags []models.StabilityFlag) {
	if len(ids) < 2 {
		return 1.0, 0.0, nil
	}

	prior := make([]int, len(ids))
	fresh := make([]int, len(ids))
	priorLabelIdx := map[uint32]int{}
	for i, id := range ids {
		sgtVal := priorSGT[id]
		idx, ok := priorLabelIdx[sgtVal]
		if !ok {
			idx = len(priorLabelIdx)
			priorLabelIdx[sgtVal] = idx
		}
		prior[i] = idx
		fresh[i] = newCluster[id]
	}

	ari = metrics.AdjustedRandIndex(fresh, prior)
	vi = metrics.VariationOfInformation(fresh, prior)

	flags = g.churnFlags(ids, priorSGT, newCluster, now)
	return ari, vi, flags
}

// churnFlags computes, per new cluster, the fraction of its members
// whose SGT changed from their prior assignment, flagging any cluster
// above cfg.MaxChurnFrac.
func (g *StabilityGuard) churnFlags(ids []string, priorSGT map[string]uint32, newCluster map[string]int, now time.Time) []models.StabilityFlag {
	type acc struct {
		total   int
		changed int
	}
	byCluster := make(map[int]*acc)
	for _, id := range ids {
		cid, ok := newCluster[id]
		if !ok {
			continue
		}
		a, ok := byCluster[cid]
		if !ok {
			a = &acc{}
			byCluster[cid] = a
		}
		a.total++
	}

	// A member "changed" if its prior SGT does not match the majority
	// prior SGT within its new cluster (i.e. it moved clusters).
	majority := make(map[int]uint32)
	counts := make(map[int]map[uint32]int)
	for _, id := range ids {
		cid, ok := newCluster[id]
		if !ok {
			continue
		}
		if counts[cid] == nil {
			counts[cid] = make(map[uint32]int)
		}
		counts[cid][priorSGT[id]]++
	}
	for cid, m := range counts {
		var best uint32
		var bestN int
		for v, n := range m {
			if n > bestN {
				best, bestN = v, n
			}
		}
		majority[cid] = best
	}
	for _, id := range ids {
		cid, ok := newCluster[id]
		if !ok {
			continue
		}
		if priorSGT[id] != majority[cid] {
			byCluster[cid].changed++
		}
	}

	var flags []models.StabilityFlag
	for cid, a := range byCluster {
		if a.total == 0 {
			continue
		}
		frac := float64(a.changed) / float64(a.total)
		if frac > g.cfg.MaxChurnFrac {
			flags = append(flags, models.StabilityFlag{
				ClusterID: cid,
				SGTValue:  majority[cid],
				ChurnFrac: frac,
				RaisedAt:  now,
			})
		}
	}
	return flags
}
