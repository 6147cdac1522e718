package models

import "time"

// SketchSnapshot is a copy-on-read view of an endpoint sketch returned
// by the sketch store. It is never mutated after construction.
type SketchSnapshot struct {
	EndpointID string
	Version    uint64

	PeerCardinality float64 // HLL estimate, distinct peer addresses
	PortCardinality float64 // HLL estimate, distinct destination ports

	TopPorts []KeyCount // bounded top-K by estimated frequency
	TopPeers []KeyCount

	TopDestinations []TopDestination // bounded top-K by byte volume

	BytesIn, BytesOut uint64
	FlowCount         uint64
	ActiveHourBuckets [24]uint64

	FirstSeen  time.Time
	LastSeen   time.Time
	UpdateCount uint64
}

// KeyCount is a frequency-estimate result from the CMS top-K companion
// heap.
type KeyCount struct {
	Key   string
	Count uint64
}

// TopDestination is a bounded top-K entry ranked by byte volume.
type TopDestination struct {
	Address string
	Bytes   uint64
}

// FeatureVector is the deterministic, numerically normalized projection
// of a sketch used for distance-based clustering.
type FeatureVector []float64

// FeatureDimension is the fixed length of every FeatureVector produced
// by the feature extractor.
const FeatureDimension = 18

// UnsetFeatureSentinel is substituted for unknown/empty feature
// components in place of NaN, so downstream distance computations
// never encounter a non-comparable value.
const UnsetFeatureSentinel = -1.0
