// Package edgeagent implements the edge-agent ingest protocol (C10):
// remote collectors compute partial sketches locally and deliver them
// over HTTP, with sequence-gated idempotent merge into the central
// sketch store.
package edgeagent

import (
	"time"

	"github.com/clarion-segmentation/clarion/internal/sketch"
	"github.com/clarion-segmentation/clarion/internal/store"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

func shapeMismatch(what string) error {
	return models.NewError(models.InvalidShape, "edge agent payload shape mismatch: "+what, nil)
}

// Envelope is the wire payload for one partial-sketch delivery.
// Fields mirror §4.10: agent id, exporter id, a sequence number
// monotonic per (agent, endpoint), the aggregation window, the
// endpoint key, and the sketch payload itself.
type Envelope struct {
	AgentID      string    `json:"agent_id" binding:"required"`
	ExporterID   string    `json:"exporter_id" binding:"required"`
	EndpointID   string    `json:"endpoint_id" binding:"required"`
	Sequence     uint64    `json:"sequence"`
	WindowStart  time.Time `json:"window_start" binding:"required"`
	WindowEnd    time.Time `json:"window_end" binding:"required"`
	Payload      SketchPayload `json:"payload" binding:"required"`
}

// SketchPayload is the serialized form of one partial sketch: HLL
// registers, CMS tables, and plain counters. Wire shape is kept
// separate from internal/sketch's in-memory types so the HTTP contract
// doesn't leak implementation details of the estimator.
type SketchPayload struct {
	HLLPrecision    uint8             `json:"hll_precision" binding:"required"`
	PeerRegisters   []uint8           `json:"peer_registers" binding:"required"`
	PortRegisters   []uint8           `json:"port_registers" binding:"required"`
	CMSWidth        uint32            `json:"cms_width" binding:"required"`
	CMSDepth        uint32            `json:"cms_depth" binding:"required"`
	PortCMSRows     [][]uint64        `json:"port_cms_rows" binding:"required"`
	PeerCMSRows     [][]uint64        `json:"peer_cms_rows" binding:"required"`
	BytesIn         uint64            `json:"bytes_in"`
	BytesOut        uint64            `json:"bytes_out"`
	FlowCount       uint64            `json:"flow_count"`
	ActiveHours     [24]uint64        `json:"active_hours"`
	TopDests        map[string]uint64 `json:"top_destinations"`
	FirstSeen       time.Time         `json:"first_seen"`
	LastSeen        time.Time         `json:"last_seen"`
}

// ToPartial reconstructs a store.Partial from the wire payload,
// checking that the HLL precision and CMS shape match the central
// configuration. A mismatch returns InvalidShape per §4.10's contract
// — partial sketches must have identical shapes to be mergeable.
func (p SketchPayload) ToPartial(expected store.Config) (store.Partial, error) {
	peerHLL, err := hllFromRegisters(p.HLLPrecision, p.PeerRegisters, expected.HLLPrecision)
	if err != nil {
		return store.Partial{}, err
	}
	portHLL, err := hllFromRegisters(p.HLLPrecision, p.PortRegisters, expected.HLLPrecision)
	if err != nil {
		return store.Partial{}, err
	}
	portCMS, err := cmsFromRows(p.CMSWidth, p.CMSDepth, p.PortCMSRows, expected)
	if err != nil {
		return store.Partial{}, err
	}
	peerCMS, err := cmsFromRows(p.CMSWidth, p.CMSDepth, p.PeerCMSRows, expected)
	if err != nil {
		return store.Partial{}, err
	}

	return store.Partial{
		PeerHLL:     peerHLL,
		PortHLL:     portHLL,
		PortCMS:     portCMS,
		PeerCMS:     peerCMS,
		BytesIn:     p.BytesIn,
		BytesOut:    p.BytesOut,
		FlowCount:   p.FlowCount,
		ActiveHours: p.ActiveHours,
		TopDests:    p.TopDests,
		FirstSeen:   p.FirstSeen,
		LastSeen:    p.LastSeen,
	}, nil
}

func hllFromRegisters(precision uint8, registers []uint8, expected uint8) (*sketch.HLL, error) {
	if precision != expected {
		return nil, shapeMismatch("HLL precision")
	}
	h := sketch.NewHLL(precision)
	if err := h.LoadRegisters(registers); err != nil {
		return nil, err
	}
	return h, nil
}

func cmsFromRows(width, depth uint32, rows [][]uint64, expected store.Config) (*sketch.CMS, error) {
	if width != expected.CMSWidth || depth != expected.CMSDepth {
		return nil, shapeMismatch("CMS width/depth")
	}
	c := sketch.NewCMS(width, depth, expected.TopKCap)
	if err := c.LoadRows(rows); err != nil {
		return nil, err
	}
	return c, nil
}
