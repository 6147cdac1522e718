// Package policy turns a communication matrix into a neutral
// intermediate-representation rule set (C9): brownfield reconciliation
// against an existing catalog, least-privilege tighten suggestions,
// and greenfield permit/deny recommendations with impact analysis.
package policy

import (
	"fmt"
	"sort"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// ExternalPolicy is one pre-existing rule from the reference catalog
// (C13), keyed by the SGT pair it governs.
type ExternalPolicy struct {
	SrcSGT, DstSGT uint32
	Action         models.PolicyAction
	Constraints    []models.PortConstraint // empty means "any port/protocol"
}

// Config tunes the recommender's thresholds.
type Config struct {
	PortCoverageThreshold float64 // default 0.9 — step 2's "combined flow share"
	DefaultPosture        models.PolicyAction
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{PortCoverageThreshold: 0.9, DefaultPosture: models.ActionDeny}
}

// Recommender builds rules from a matrix snapshot and an optional
// external catalog.
type Recommender struct {
	cfg     Config
	catalog map[sgtPair]ExternalPolicy
}

type sgtPair struct{ src, dst uint32 }

// NewRecommender builds a recommender over the given catalog (may be
// nil or empty — brownfield reconciliation is optional per §4.9).
func NewRecommender(cfg Config, catalog []ExternalPolicy) *Recommender {
	idx := make(map[sgtPair]ExternalPolicy, len(catalog))
	for _, p := range catalog {
		idx[sgtPair{p.SrcSGT, p.DstSGT}] = p
	}
	return &Recommender{cfg: cfg, catalog: idx}
}

// Recommend produces the rule set and tighten recommendations for one
// matrix snapshot. sgtConfidence supplies the per-SGT assignment
// confidence feeding into each rule's blended confidence score.
func (r *Recommender) Recommend(snapshot models.MatrixSnapshot, sgtConfidence map[uint32]float64) ([]models.PolicyRule, []models.TightenRecommendation) {
	var rules []models.PolicyRule
	var tightens []models.TightenRecommendation

	seen := make(map[sgtPair]bool)
	order := 0

	for _, cell := range snapshot.Cells {
		pair := sgtPair{cell.SrcSGT, cell.DstSGT}
		seen[pair] = true

		if ext, ok := r.catalog[pair]; ok {
			rule := models.PolicyRule{
				SrcSGT:        cell.SrcSGT,
				DstSGT:        cell.DstSGT,
				Action:        ext.Action,
				Constraints:   ext.Constraints,
				Justification: fmt.Sprintf("inherited from reference catalog (%d flows, %d bytes observed)", cell.FlowCount, cell.ByteCount),
				Confidence:    1.0,
				Origin:        models.RuleInherited,
				Order:         order,
			}
			rules = append(rules, rule)
			order++
			rules = append(rules, r.terminalDefault(cell.SrcSGT, cell.DstSGT, order))
			order++

			if tighten := r.tightenIfNarrower(cell, ext); tighten != nil {
				tightens = append(tightens, *tighten)
			}
			continue
		}

		observed := observedConstraints(cell, r.cfg.PortCoverageThreshold)
		confidence := blendedConfidence(cell, sgtConfidence)
		rules = append(rules, models.PolicyRule{
			SrcSGT:        cell.SrcSGT,
			DstSGT:        cell.DstSGT,
			Action:        models.ActionPermit,
			Constraints:   observed,
			Justification: justifyObserved(cell, observed),
			Confidence:    confidence,
			Origin:        models.RuleObserved,
			Order:         order,
		})
		order++
		rules = append(rules, r.terminalDefault(cell.SrcSGT, cell.DstSGT, order))
		order++
	}

	// Default rule for any (src, dst) pair present in the catalog but
	// with no observed traffic this window — step 3.
	for pair, ext := range r.catalog {
		if seen[pair] {
			continue
		}
		rules = append(rules, models.PolicyRule{
			SrcSGT:        pair.src,
			DstSGT:        pair.dst,
			Action:        ext.Action,
			Constraints:   ext.Constraints,
			Justification: "inherited from reference catalog, no traffic observed this window",
			Confidence:    0.5,
			Origin:        models.RuleInherited,
			Order:         order,
		})
		order++
		rules = append(rules, r.terminalDefault(pair.src, pair.dst, order))
		order++
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].Order < rules[j].Order })
	return rules, tightens
}

// terminalDefault builds the trailing catch-all rule every pair ends
// on (models.PolicyRule's own doc comment: "the last rule for any pair
// is always a terminal default"), so an evaluator walking a pair's
// rules in order never runs off the end without a verdict.
func (r *Recommender) terminalDefault(srcSGT, dstSGT uint32, order int) models.PolicyRule {
	return models.PolicyRule{
		SrcSGT:        srcSGT,
		DstSGT:        dstSGT,
		Action:        r.cfg.DefaultPosture,
		Justification: "default posture for traffic outside the rule(s) above",
		Confidence:    1.0,
		Origin:        models.RuleDefault,
		Order:         order,
	}
}

// tightenIfNarrower flags a least-privilege delta when observed
// traffic for a cell is strictly narrower than its inherited rule.
func (r *Recommender) tightenIfNarrower(cell models.MatrixCell, ext ExternalPolicy) *models.TightenRecommendation {
	if ext.Action != models.ActionPermit || len(ext.Constraints) != 0 {
		// Only an unconstrained "permit any" inherited rule can be
		// narrowed; a rule already scoped to specific ports has
		// nothing further to tighten here.
		return nil
	}
	observed := observedConstraints(cell, r.cfg.PortCoverageThreshold)
	if len(observed) == 0 {
		return nil
	}
	covered := 0.0
	for _, p := range observed {
		for _, ps := range cell.TopPorts {
			if ps.Port == p.Port && ps.Protocol == p.Protocol {
				covered += ps.Share
			}
		}
	}
	return &models.TightenRecommendation{
		SrcSGT: cell.SrcSGT,
		DstSGT: cell.DstSGT,
		InheritedRule: models.PolicyRule{
			SrcSGT: cell.SrcSGT, DstSGT: cell.DstSGT, Action: ext.Action, Origin: models.RuleInherited,
		},
		SuggestedRule: models.PolicyRule{
			SrcSGT: cell.SrcSGT, DstSGT: cell.DstSGT, Action: models.ActionPermit,
			Constraints: observed, Origin: models.RuleObserved,
		},
		CoverageFrac:  covered,
		Justification: fmt.Sprintf("inherited permit-any; observed traffic covers only %.0f%% via %d ports", covered*100, len(observed)),
	}
}

// observedConstraints returns the smallest set of (protocol, port)
// pairs whose combined flow share meets the coverage threshold,
// ordered by descending share.
func observedConstraints(cell models.MatrixCell, threshold float64) []models.PortConstraint {
	ports := make([]models.PortShare, len(cell.TopPorts))
	copy(ports, cell.TopPorts)
	sort.Slice(ports, func(i, j int) bool { return ports[i].Share > ports[j].Share })

	var out []models.PortConstraint
	var cum float64
	for _, p := range ports {
		out = append(out, models.PortConstraint{Protocol: p.Protocol, Port: p.Port})
		cum += p.Share
		if cum >= threshold {
			break
		}
	}
	return out
}

func justifyObserved(cell models.MatrixCell, constraints []models.PortConstraint) string {
	return fmt.Sprintf("%d flows, %d bytes observed; %d ports cover the configured coverage threshold",
		cell.FlowCount, cell.ByteCount, len(constraints))
}

// blendedConfidence combines the flow-volume sufficiency of a cell
// with the SGT-assignment confidence of its two endpoints.
func blendedConfidence(cell models.MatrixCell, sgtConfidence map[uint32]float64) float64 {
	volume := volumeSufficiency(cell.FlowCount)
	srcConf, ok := sgtConfidence[cell.SrcSGT]
	if !ok {
		srcConf = 0.5
	}
	dstConf, ok := sgtConfidence[cell.DstSGT]
	if !ok {
		dstConf = 0.5
	}
	return clamp01((volume + srcConf + dstConf) / 3)
}

func volumeSufficiency(flowCount uint64) float64 {
	switch {
	case flowCount >= 1000:
		return 1.0
	case flowCount >= 100:
		return 0.8
	case flowCount >= 10:
		return 0.5
	default:
		return 0.2
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
