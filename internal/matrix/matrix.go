// Package matrix aggregates flow records into an SGT×SGT communication
// matrix (C8): an immutable, versioned snapshot rebuilt on a schedule
// or on demand, consumed by the policy recommender.
package matrix

import (
	"sort"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// SGTResolver maps an endpoint id to its current SGT value. Builder
// takes a consistent read of this resolver for the duration of one
// rebuild — SGTs reassigned mid-rebuild do not retroactively change
// cells already aggregated.
type SGTResolver interface {
	Resolve(endpointID string) (uint32, bool)
}

// Builder accumulates flow records into per-cell aggregates for one
// rebuild window, grounded on the teacher's contingency-table
// accumulation style in internal/metrics/clustering.go.
type Builder struct {
	resolver    SGTResolver
	windowStart time.Time
	windowEnd   time.Time
	approximate bool

	cells   map[cellKey]*cellAcc
	unknown uint64
}

type cellKey struct {
	src, dst uint32
}

type cellAcc struct {
	flowCount uint64
	byteCount uint64
	ports     map[portKey]*portAcc
	protocols map[uint8]uint64
}

type portKey struct {
	port     uint16
	protocol uint8
}

type portAcc struct {
	flows uint64
	bytes uint64
}

// NewBuilder starts a rebuild over [windowStart, windowEnd) using
// resolver for endpoint→SGT lookups. approximate marks the snapshot as
// derived from sketch top-K data rather than a full flow stream (step
// 1's "sketch-only" mode).
func NewBuilder(resolver SGTResolver, windowStart, windowEnd time.Time, approximate bool) *Builder {
	return &Builder{
		resolver:    resolver,
		windowStart: windowStart,
		windowEnd:   windowEnd,
		approximate: approximate,
		cells:       make(map[cellKey]*cellAcc),
	}
}

// AddFlow folds one flow record into the matrix, keyed by its
// endpoints' current SGTs. Flows with either side unresolved go into
// the unknown-SGT bucket.
func (b *Builder) AddFlow(srcEndpointID, dstEndpointID string, flow models.FlowRecord) {
	srcSGT, srcOK := b.resolver.Resolve(srcEndpointID)
	dstSGT, dstOK := b.resolver.Resolve(dstEndpointID)
	if !srcOK || !dstOK {
		b.unknown++
		return
	}

	key := cellKey{src: srcSGT, dst: dstSGT}
	acc, ok := b.cells[key]
	if !ok {
		acc = &cellAcc{
			ports:     make(map[portKey]*portAcc),
			protocols: make(map[uint8]uint64),
		}
		b.cells[key] = acc
	}

	acc.flowCount++
	acc.byteCount += flow.Bytes

	pk := portKey{port: flow.DstPort, protocol: flow.Protocol}
	pa, ok := acc.ports[pk]
	if !ok {
		pa = &portAcc{}
		acc.ports[pk] = pa
	}
	pa.flows++
	pa.bytes += flow.Bytes

	acc.protocols[flow.Protocol] += flow.Bytes
}

// Build finalizes the accumulation into an immutable snapshot.
// version is supplied by the caller (e.g. a monotonic counter
// persisted across rebuilds).
func (b *Builder) Build(version int, topK int, createdAt time.Time) models.MatrixSnapshot {
	cells := make([]models.MatrixCell, 0, len(b.cells))
	for key, acc := range b.cells {
		cells = append(cells, models.MatrixCell{
			SrcSGT:    key.src,
			DstSGT:    key.dst,
			FlowCount: acc.flowCount,
			ByteCount: acc.byteCount,
			TopPorts:  topPorts(acc, topK),
			Protocols: protocolShares(acc),
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].SrcSGT != cells[j].SrcSGT {
			return cells[i].SrcSGT < cells[j].SrcSGT
		}
		return cells[i].DstSGT < cells[j].DstSGT
	})

	return models.MatrixSnapshot{
		Version:         uint64(version),
		WindowStart:     b.windowStart,
		WindowEnd:       b.windowEnd,
		Cells:           cells,
		UnknownSGTFlows: b.unknown,
		Approximate:     b.approximate,
		CreatedAt:       createdAt,
	}
}

func topPorts(acc *cellAcc, k int) []models.PortShare {
	total := acc.flowCount
	out := make([]models.PortShare, 0, len(acc.ports))
	for pk, pa := range acc.ports {
		share := 0.0
		if total > 0 {
			share = float64(pa.flows) / float64(total)
		}
		out = append(out, models.PortShare{Port: pk.port, Protocol: pk.protocol, Flows: pa.flows, Share: share})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flows > out[j].Flows })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func protocolShares(acc *cellAcc) []models.ProtocolShare {
	total := acc.byteCount
	out := make([]models.ProtocolShare, 0, len(acc.protocols))
	for proto, bytes := range acc.protocols {
		share := 0.0
		if total > 0 {
			share = float64(bytes) / float64(total)
		}
		out = append(out, models.ProtocolShare{Protocol: proto, Bytes: bytes, Share: share})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bytes > out[j].Bytes })
	return out
}
