// Package sketch implements the mergeable probabilistic estimators
// (HLL cardinality, CMS frequency) and the deterministic feature
// extractor that projects an endpoint sketch into clustering space.
package sketch

import "github.com/cespare/xxhash/v2"

// hashKey is the single hash function used across every estimator in
// this package, so sketches built in different processes remain
// comparable. No additional seed or salt is mixed in: the digest of a
// given key byte string is fixed for the life of the wire format.
func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// hashString is a convenience wrapper avoiding an allocation for the
// common case of string keys.
func hashString(key string) uint64 {
	return xxhash.Sum64String(key)
}
