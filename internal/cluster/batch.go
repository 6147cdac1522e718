package cluster

import (
	"math"
	"sort"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// BatchConfig shapes one batch clustering run per §4.5/§6.
type BatchConfig struct {
	MinClusterSize int // default 50
	MinSamples     int // default 10, core-point neighborhood
}

// DefaultBatchConfig returns the documented defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{MinClusterSize: 50, MinSamples: 10}
}

// Endpoint is one clustering input: an endpoint id, its feature vector,
// and the identity-source attributes used for semantic labeling.
type Endpoint struct {
	ID          string
	Features    models.FeatureVector
	Profile     string // identity-source "profile" field, if present
	DeviceType  string
	Groups      []string
}

// BatchResult is the output of one batch run: labeled clusters plus
// per-endpoint assignment probability (noise endpoints, label -1, are
// omitted from Clusters but present in Probabilities).
type BatchResult struct {
	Clusters      []models.Cluster
	Probabilities map[string]float64
	NoiseCount    int
}

// RunBatch performs density-based clustering over endpoints: mutual
// reachability distance gates Union-Find merges (any two endpoints
// whose distance is at most the larger of their two core distances are
// merged; there is no separate core/non-core attachment step),
// then semantic-labels each resulting cluster and computes its
// centroid. Endpoints below MinClusterSize after merging are treated as
// noise (label -1) and excluded from the result.
//
// Algorithm is HDBSCAN-equivalent in spirit (core distance + mutual
// reachability) without the full hierarchy: a single flat cut at the
// core-distance threshold, which is sufficient for the behavioral
// feature space described in §4.1.
func RunBatch(endpoints []Endpoint, cfg BatchConfig) (BatchResult, error) {
	if len(endpoints) == 0 {
		return BatchResult{}, models.NewError(models.ClusteringFailed, "no eligible endpoints", nil)
	}

	coreDist := coreDistances(endpoints, cfg.MinSamples)

	uf := newUnionFind()
	for _, e := range endpoints {
		uf.find(e.ID) // ensure isolated endpoints still form singleton clusters
	}

	n := len(endpoints)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(endpoints[i].Features, endpoints[j].Features)
			threshold := math.Max(coreDist[endpoints[i].ID], coreDist[endpoints[j].ID])
			if d <= threshold {
				uf.union(endpoints[i].ID, endpoints[j].ID)
			}
		}
	}

	byID := make(map[string]Endpoint, n)
	for _, e := range endpoints {
		byID[e.ID] = e
	}

	result := BatchResult{Probabilities: make(map[string]float64, n)}
	clusterID := 0
	for _, root := range uf.roots() {
		members := uf.members(root)
		if len(members) < cfg.MinClusterSize {
			for _, m := range members {
				result.Probabilities[m] = 0
			}
			result.NoiseCount += len(members)
			continue
		}

		centroid := centroidOf(members, byID)
		label, rationale := semanticLabel(members, byID)
		confidence := clusterConfidence(members, byID, centroid)

		c := models.Cluster{
			ID:         clusterID,
			Centroid:   centroid,
			Members:    members,
			Label:      label,
			Rationale:  rationale,
			Confidence: confidence,
		}
		result.Clusters = append(result.Clusters, c)
		for _, m := range members {
			result.Probabilities[m] = confidence
		}
		clusterID++
	}

	sort.Slice(result.Clusters, func(i, j int) bool { return result.Clusters[i].ID < result.Clusters[j].ID })
	return result, nil
}

// coreDistances computes, for each endpoint, the distance to its
// MinSamples-th nearest neighbor — the HDBSCAN core distance.
func coreDistances(endpoints []Endpoint, minSamples int) map[string]float64 {
	out := make(map[string]float64, len(endpoints))
	for _, e := range endpoints {
		dists := make([]float64, 0, len(endpoints)-1)
		for _, other := range endpoints {
			if other.ID == e.ID {
				continue
			}
			dists = append(dists, euclidean(e.Features, other.Features))
		}
		sort.Float64s(dists)
		k := minSamples - 1
		if k < 0 {
			k = 0
		}
		if k >= len(dists) {
			k = len(dists) - 1
		}
		if k < 0 {
			out[e.ID] = 0
		} else {
			out[e.ID] = dists[k]
		}
	}
	return out
}

func euclidean(a, b models.FeatureVector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func centroidOf(ids []string, byID map[string]Endpoint) models.FeatureVector {
	if len(ids) == 0 {
		return nil
	}
	dim := len(byID[ids[0]].Features)
	centroid := make(models.FeatureVector, dim)
	for _, id := range ids {
		f := byID[id].Features
		for i := 0; i < dim && i < len(f); i++ {
			centroid[i] += f[i]
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(ids))
	}
	return centroid
}

// clusterConfidence combines intra-cluster tightness (inverse of mean
// distance to centroid, normalized) into a [0,1] score, used alongside
// the semantic-label strength reported separately via rationale.
func clusterConfidence(ids []string, byID map[string]Endpoint, centroid models.FeatureVector) float64 {
	if len(ids) == 0 {
		return 0
	}
	var sum float64
	for _, id := range ids {
		sum += euclidean(byID[id].Features, centroid)
	}
	mean := sum / float64(len(ids))
	// Map mean distance to (0,1]; larger spread lowers confidence.
	return 1.0 / (1.0 + mean)
}

// P95IntraClusterDistance computes the 95th-percentile distance from
// members to centroid, persisted alongside centroids as d_max for
// incremental confidence (§4.6).
func P95IntraClusterDistance(ids []string, byID map[string]Endpoint, centroid models.FeatureVector) float64 {
	if len(ids) == 0 {
		return 0
	}
	dists := make([]float64, 0, len(ids))
	for _, id := range ids {
		dists = append(dists, euclidean(byID[id].Features, centroid))
	}
	sort.Float64s(dists)
	idx := int(math.Ceil(0.95*float64(len(dists)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(dists) {
		idx = len(dists) - 1
	}
	return dists[idx]
}
