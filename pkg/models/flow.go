package models

import "time"

// FlowRecord is an immutable, short-lived observation of one network flow as
// decoded from NetFlow v5/v9, IPFIX, or the edge-agent protocol.
type FlowRecord struct {
	SrcAddr       string
	DstAddr       string
	SrcPort       uint16
	DstPort       uint16
	Protocol      uint8
	Bytes         uint64
	Packets       uint64
	Start         time.Time
	End           time.Time
	ExporterID    string
	SrcTagValue   *uint32 // populated from enterprise fields when present
	DstTagValue   *uint32
}

// Valid reports whether the record satisfies the flow record invariants:
// start <= end, and non-negative byte/packet counts (always true for the
// unsigned types used here, but Start<=End must still be checked).
func (f FlowRecord) Valid() bool {
	return !f.Start.After(f.End)
}
