package models

import "time"

// MembershipOrigin records who produced an SGT membership assignment.
type MembershipOrigin string

const (
	OriginClusterer   MembershipOrigin = "clusterer"
	OriginManual      MembershipOrigin = "manual"
	OriginExternal    MembershipOrigin = "external"
	OriginIncremental MembershipOrigin = "incremental"
)

// SGT is a stable, named category decoupled from cluster identity. Once
// assigned, Value is never reused or renumbered; SGTs may be deprecated
// (Active=false) but are never deleted while history references them.
type SGT struct {
	Value       uint32
	Name        string
	Category    string
	Description string
	Active      bool
	CreatedAt   time.Time
}

// Membership is the current mapping of an endpoint to an SGT. An
// endpoint has at most one current membership at a time.
type Membership struct {
	EndpointID   string
	SGTValue     uint32
	AssignedAt   time.Time
	ConfirmedAt  time.Time
	AssignedBy   MembershipOrigin
	Confidence   float64
	ClusterID    int
	ManualLocked bool // true once an operator sets origin=manual, until explicitly cleared
}

// HistoryRecord is an append-only log entry of a past membership.
type HistoryRecord struct {
	ID          string
	EndpointID  string
	SGTValue    uint32
	AssignedAt  time.Time
	SupersededAt time.Time // zero value if still current at time of append
	AssignedBy  MembershipOrigin
}

// StabilityFlag marks a cluster whose membership churn against the
// prior run exceeded the configured threshold. Automated rebinding of
// existing members is suppressed while a cluster carries this flag.
type StabilityFlag struct {
	ClusterID  int
	SGTValue   uint32
	ChurnFrac  float64
	RaisedAt   time.Time
}
