package models

import "time"

// PolicyAction is the terminal verb of a PolicyRule.
type PolicyAction string

const (
	ActionPermit PolicyAction = "permit"
	ActionDeny   PolicyAction = "deny"
)

// RuleOrigin records why a rule exists.
type RuleOrigin string

const (
	RuleObserved  RuleOrigin = "observed"
	RuleDefault   RuleOrigin = "default"
	RuleInherited RuleOrigin = "inherited"
)

// PortConstraint restricts a rule to one protocol/port combination. An
// empty Port matches any port for the given protocol.
type PortConstraint struct {
	Protocol uint8
	Port     uint16
}

// PolicyRule is one row of the neutral IR for an (src SGT, dst SGT)
// pair. Rules for a pair are totally ordered; the last rule for any
// pair is always a terminal default so evaluation is unambiguous.
type PolicyRule struct {
	SrcSGT        uint32
	DstSGT        uint32
	Action        PolicyAction
	Constraints   []PortConstraint
	Justification string
	Confidence    float64
	Origin        RuleOrigin
	Order         int
}

// TightenRecommendation flags an inherited permissive rule that
// observed traffic does not fully exercise — a least-privilege
// narrowing suggestion, never applied automatically.
type TightenRecommendation struct {
	SrcSGT        uint32
	DstSGT        uint32
	InheritedRule PolicyRule
	SuggestedRule PolicyRule
	CoverageFrac  float64
	Justification string
}

// RegressionSeverity classifies the risk of an observed flow being
// blocked by a proposed rule set.
type RegressionSeverity string

const (
	SeverityInfo     RegressionSeverity = "info"
	SeverityLow      RegressionSeverity = "low"
	SeverityMedium   RegressionSeverity = "medium"
	SeverityHigh     RegressionSeverity = "high"
	SeverityCritical RegressionSeverity = "critical"
)

// BlockedFlow is one observed flow that would be denied under a
// proposed rule set.
type BlockedFlow struct {
	SrcSGT   uint32
	DstSGT   uint32
	Port     uint16
	Protocol uint8
	Bytes    uint64
	Severity RegressionSeverity
}

// ImpactAnalysis summarizes the consequence of adopting a proposed rule
// set: how many permits/denies it contains and which previously
// observed flows it would newly block.
type ImpactAnalysis struct {
	PermitCount   int
	DenyCount     int
	BlockedFlows  []BlockedFlow
	TightenCount  int
	GeneratedAt   time.Time
}
