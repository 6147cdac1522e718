package cluster

// RunUserBatch clusters users rather than endpoints, reusing the same
// density-clustering primitives over a distinct feature set (directory
// attributes plus aggregated endpoint behavior). Per §9's open
// question, user clustering is an optional sibling pipeline, not fused
// into endpoint clustering: callers build Endpoint values keyed by user
// id instead of endpoint id and call RunBatch directly.
func RunUserBatch(users []Endpoint, cfg BatchConfig) (BatchResult, error) {
	return RunBatch(users, cfg)
}
