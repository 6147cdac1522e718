package models

import "time"

// MatrixCell aggregates flow activity between one ordered pair of SGTs
// over a time window. Derived and regenerable; never mutated in place.
type MatrixCell struct {
	SrcSGT    uint32
	DstSGT    uint32
	FlowCount uint64
	ByteCount uint64
	TopPorts  []PortShare
	Protocols []ProtocolShare
}

// PortShare is a destination port and its share of the cell's flows.
type PortShare struct {
	Port     uint16
	Protocol uint8
	Flows    uint64
	Share    float64
}

// ProtocolShare is an IP protocol number and its share of the cell's
// bytes.
type ProtocolShare struct {
	Protocol uint8
	Bytes    uint64
	Share    float64
}

// MatrixSnapshot is an immutable, versioned communication matrix for a
// window [WindowStart, WindowEnd). UnknownSGTFlows counts flows whose
// src or dst endpoint had no current SGT at aggregation time.
type MatrixSnapshot struct {
	Version         uint64
	WindowStart     time.Time
	WindowEnd       time.Time
	Cells           []MatrixCell
	UnknownSGTFlows uint64
	Approximate     bool // true when built from sketch top-K/counters rather than raw flow samples
	CreatedAt       time.Time
}
