package cluster

import "github.com/clarion-segmentation/clarion/pkg/models"

// IncrementalConfig shapes the incremental nearest-centroid assignment
// of §4.6.
type IncrementalConfig struct {
	ConfidenceMin float64 // default 0.5
}

// DefaultIncrementalConfig returns the documented default.
func DefaultIncrementalConfig() IncrementalConfig {
	return IncrementalConfig{ConfidenceMin: 0.5}
}

// Assignment is the outcome of one incremental assignment attempt.
type Assignment struct {
	EndpointID  string
	ClusterID   int
	SGTValue    uint32
	Confidence  float64
	Assigned    bool
}

// AssignIncremental finds the nearest centroid in snapshot to features
// and assigns the endpoint if the resulting confidence meets cfg's
// threshold. snapshot must be a single, immutable batch-run result —
// callers must never mix centroids from two runs (§5).
func AssignIncremental(endpointID string, features models.FeatureVector, snapshot models.CentroidSnapshot, cfg IncrementalConfig) Assignment {
	if len(snapshot.Centroids) == 0 {
		return Assignment{EndpointID: endpointID}
	}

	var nearest models.ClusterCentroid
	nearestDist := -1.0
	for _, c := range snapshot.Centroids {
		if c.Superseded {
			continue
		}
		d := euclidean(features, c.Centroid)
		if nearestDist < 0 || d < nearestDist {
			nearestDist = d
			nearest = c
		}
	}
	if nearestDist < 0 {
		return Assignment{EndpointID: endpointID}
	}

	confidence := 0.0
	if nearest.P95IntraDist > 0 {
		confidence = 1.0 - nearestDist/nearest.P95IntraDist
	} else if nearestDist == 0 {
		confidence = 1.0
	}
	if confidence < 0 {
		confidence = 0
	}

	if confidence < cfg.ConfidenceMin {
		return Assignment{EndpointID: endpointID, Confidence: confidence}
	}

	return Assignment{
		EndpointID: endpointID,
		ClusterID:  nearest.ClusterID,
		SGTValue:   nearest.SGTValue,
		Confidence: confidence,
		Assigned:   true,
	}
}
