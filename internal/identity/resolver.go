package identity

import "time"

// Resolution is the outcome of resolving one flow endpoint.
type Resolution struct {
	EndpointID string
	UserID     string
	Groups     []string
	Confidence float64
	Pending    bool
}

// Resolver composes the session index, directory index, and pending
// queue into the resolution algorithm of §4.4.
type Resolver struct {
	sessions  *SessionIndex
	directory *DirectoryIndex
	pending   *PendingQueue
	weights   ConfidenceWeights
	threshold float64
}

// NewResolver builds a resolver. threshold is the minimum confidence
// (§4.4) required to emit a resolved (not pending) attribution.
func NewResolver(sessions *SessionIndex, directory *DirectoryIndex, pending *PendingQueue, weights ConfidenceWeights, threshold float64) *Resolver {
	return &Resolver{sessions: sessions, directory: directory, pending: pending, weights: weights, threshold: threshold}
}

// Resolve attempts to resolve address at time t to (endpoint, user,
// groups). If no session covers the lookup (within the grace window)
// or confidence falls below threshold, the flow is retained under the
// endpoint handle alone and queued as pending.
func (r *Resolver) Resolve(endpointID, address string, t time.Time) Resolution {
	sess, ok := r.sessions.Lookup(address, t)
	if !ok {
		r.pending.Push(PendingAttribution{EndpointID: endpointID, Address: address, At: t})
		return Resolution{EndpointID: endpointID, Pending: true}
	}

	dir, haveDir := r.directory.Lookup(sess.UserID, t)
	var agree *bool
	groups := sess.Groups
	if haveDir {
		a := groupSetsAgree(sess.Groups, dir.Groups)
		agree = &a
		if a {
			groups = dir.Groups
		}
	}

	age := t.Sub(sess.Start)
	if haveDir && t.Sub(dir.AsOf) > age {
		age = t.Sub(dir.AsOf)
	}
	confidence := r.weights.Score(agree, age, t)

	if confidence < r.threshold {
		r.pending.Push(PendingAttribution{EndpointID: endpointID, Address: address, At: t})
		return Resolution{EndpointID: endpointID, Pending: true, Confidence: confidence}
	}

	return Resolution{
		EndpointID: endpointID,
		UserID:     sess.UserID,
		Groups:     groups,
		Confidence: confidence,
	}
}

// ReplayPending is called when a new session event covers addresses
// previously queued as pending: it resolves each queued attribution in
// place and returns the updated resolutions, without touching the
// underlying sketch (per §9's side-band design).
func (r *Resolver) ReplayPending(address string, t time.Time) []Resolution {
	queued := r.pending.ResolveAddress(address)
	out := make([]Resolution, 0, len(queued))
	for _, p := range queued {
		out = append(out, r.Resolve(p.EndpointID, p.Address, p.At))
	}
	return out
}

func groupSetsAgree(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(b))
	for _, g := range b {
		set[g] = true
	}
	for _, g := range a {
		if set[g] {
			return true
		}
	}
	return false
}
