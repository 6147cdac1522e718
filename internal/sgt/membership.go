package sgt

import (
	"sync"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// MembershipTable holds the current endpoint-to-SGT mapping. Like
// Registry, writes serialize through one lock and reads snapshot.
type MembershipTable struct {
	mu   sync.RWMutex
	byEP map[string]models.Membership
}

// NewMembershipTable builds an empty table.
func NewMembershipTable() *MembershipTable {
	return &MembershipTable{byEP: make(map[string]models.Membership)}
}

// Get returns the current membership for an endpoint.
func (t *MembershipTable) Get(endpointID string) (models.Membership, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byEP[endpointID]
	return m, ok
}

// Set installs or replaces the membership for an endpoint. Manual
// locks (ManualLocked) are only overwritten by another manual
// assignment — automated binders must check IsManuallyLocked first.
func (t *MembershipTable) Set(m models.Membership) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byEP[m.EndpointID] = m
}

// IsManuallyLocked reports whether an endpoint's current assignment
// was pinned by an operator and must not be overwritten by the
// clusterer.
func (t *MembershipTable) IsManuallyLocked(endpointID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byEP[endpointID]
	return ok && m.ManualLocked
}

// Confirm bumps ConfirmedAt for an endpoint whose assignment has been
// reaffirmed by a subsequent incremental run without changing its SGT.
func (t *MembershipTable) Confirm(endpointID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.byEP[endpointID]; ok {
		m.ConfirmedAt = at
		t.byEP[endpointID] = m
	}
}

// ByCluster returns every endpoint currently bound to clusterID.
func (t *MembershipTable) ByCluster(clusterID int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for ep, m := range t.byEP {
		if m.ClusterID == clusterID {
			out = append(out, ep)
		}
	}
	return out
}

// Snapshot returns every current membership.
func (t *MembershipTable) Snapshot() []models.Membership {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Membership, 0, len(t.byEP))
	for _, m := range t.byEP {
		out = append(out, m)
	}
	return out
}
