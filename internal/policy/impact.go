package policy

import (
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// AnalyzeImpact compares a proposed rule set against an observed
// matrix snapshot, reporting which observed flows the new rules would
// block. Grounded on the teacher's classifySeverity/recommendAction
// banding switches in internal/heuristics/realtime_risk.go, retargeted
// from a risk-score scale to a flow-share scale.
func AnalyzeImpact(snapshot models.MatrixSnapshot, rules []models.PolicyRule, now time.Time) models.ImpactAnalysis {
	permitted := make(map[sgtPair][]models.PortConstraint)
	denied := make(map[sgtPair]bool)
	var permitCount, denyCount int

	for _, rule := range rules {
		pair := sgtPair{rule.SrcSGT, rule.DstSGT}
		switch rule.Action {
		case models.ActionPermit:
			permitCount++
			permitted[pair] = rule.Constraints
		case models.ActionDeny:
			denyCount++
			denied[pair] = true
		}
	}

	var blocked []models.BlockedFlow
	for _, cell := range snapshot.Cells {
		pair := sgtPair{cell.SrcSGT, cell.DstSGT}
		constraints, permittedPair := permitted[pair]
		if permittedPair && len(constraints) == 0 {
			continue // unconstrained permit — nothing is blocked
		}
		for _, p := range cell.TopPorts {
			blockedByDeny := denied[pair] && !permittedPair
			blockedByConstraint := permittedPair && !portAllowed(constraints, p)
			if blockedByDeny || blockedByConstraint {
				bytesForPort := uint64(p.Share * float64(cell.ByteCount))
				blocked = append(blocked, models.BlockedFlow{
					SrcSGT:   cell.SrcSGT,
					DstSGT:   cell.DstSGT,
					Port:     p.Port,
					Protocol: p.Protocol,
					Bytes:    bytesForPort,
					Severity: classifySeverity(p.Flows, cell.FlowCount),
				})
			}
		}
	}

	return models.ImpactAnalysis{
		PermitCount:  permitCount,
		DenyCount:    denyCount,
		BlockedFlows: blocked,
		TightenCount: 0, // set by caller from the tighten recommendation list
		GeneratedAt:  now,
	}
}

func portAllowed(constraints []models.PortConstraint, p models.PortShare) bool {
	for _, c := range constraints {
		if (c.Port == 0 || c.Port == p.Port) && c.Protocol == p.Protocol {
			return true
		}
	}
	return false
}

// classifySeverity bands a blocked flow by its share of the cell's
// total traffic: a blocked port carrying most of the cell's flows is
// a more severe regression than one carrying a sliver.
func classifySeverity(portFlows, cellFlows uint64) models.RegressionSeverity {
	if cellFlows == 0 {
		return models.SeverityInfo
	}
	share := float64(portFlows) / float64(cellFlows)
	switch {
	case share <= 0.01:
		return models.SeverityInfo
	case share <= 0.10:
		return models.SeverityLow
	case share <= 0.30:
		return models.SeverityMedium
	case share <= 0.60:
		return models.SeverityHigh
	default:
		return models.SeverityCritical
	}
}
