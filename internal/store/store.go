// Package store implements the per-endpoint sketch store (C3): sketches
// keyed by endpoint identity, updated under per-key striped locks,
// snapshotted copy-on-read, and expired on a time cutoff.
package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/clarion-segmentation/clarion/internal/sketch"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

// stripeCount is the number of lock stripes sketch writes are sharded
// across, following the teacher's AddressWatchlist single-mutex map
// pattern generalized so cross-endpoint writes do not contend on one
// lock.
const stripeCount = 256

// Config shapes every sketch created by the store; merge_partial and
// record_flow both require matching shape to the rest of the pipeline.
type Config struct {
	HLLPrecision uint8
	CMSWidth     uint32
	CMSDepth     uint32
	TopKCap      int
}

type entry struct {
	peerHLL  *sketch.HLL
	portHLL  *sketch.HLL
	portCMS  *sketch.CMS
	peerCMS  *sketch.CMS

	topDests map[string]uint64 // address -> bytes, trimmed to TopKCap on snapshot

	bytesIn, bytesOut uint64
	flowCount         uint64
	activeHours       [24]uint64

	version     uint64
	updateCount uint64
	firstSeen   time.Time
	lastSeen    time.Time

	highestSeq map[string]uint64 // agent id -> highest applied sequence, for C10 idempotence
}

func newEntry(cfg Config) *entry {
	return &entry{
		peerHLL:    sketch.NewHLL(cfg.HLLPrecision),
		portHLL:    sketch.NewHLL(cfg.HLLPrecision),
		portCMS:    sketch.NewCMS(cfg.CMSWidth, cfg.CMSDepth, cfg.TopKCap),
		peerCMS:    sketch.NewCMS(cfg.CMSWidth, cfg.CMSDepth, cfg.TopKCap),
		topDests:   make(map[string]uint64),
		highestSeq: make(map[string]uint64),
	}
}

// Store is the sketch store. Each stripe guards an independent shard of
// the endpoint map, so writes to different endpoints proceed without
// contention; writes to the same endpoint serialize through its
// stripe's mutex.
type Store struct {
	cfg     Config
	stripes [stripeCount]struct {
		mu   sync.RWMutex
		data map[string]*entry
	}
}

// New builds an empty store shaped by cfg.
func New(cfg Config) *Store {
	s := &Store{cfg: cfg}
	for i := range s.stripes {
		s.stripes[i].data = make(map[string]*entry)
	}
	return s
}

func (s *Store) stripeFor(endpointID string) int {
	return int(xxhash.Sum64String(endpointID) % uint64(stripeCount))
}

// RecordFlow resolves flow's two endpoint sides (already resolved to
// identities by the caller — the store is identity-keyed, not
// address-keyed) and updates each sketch atomically. first-seen is
// unchanged if already non-zero; last-seen is advanced to at least the
// flow's end time.
func (s *Store) RecordFlow(srcEndpointID, dstEndpointID string, flow models.FlowRecord) {
	s.applyFlowSide(srcEndpointID, flow, flow.DstAddr, flow.DstPort, true)
	s.applyFlowSide(dstEndpointID, flow, flow.SrcAddr, flow.SrcPort, false)
}

func (s *Store) applyFlowSide(endpointID string, flow models.FlowRecord, peerAddr string, peerPort uint16, outbound bool) {
	if endpointID == "" {
		return
	}
	idx := s.stripeFor(endpointID)
	st := &s.stripes[idx]

	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.data[endpointID]
	if !ok {
		e = newEntry(s.cfg)
		st.data[endpointID] = e
	}

	e.peerHLL.Add([]byte(peerAddr))
	portKey := portKeyString(peerPort)
	e.portHLL.Add([]byte(portKey))
	e.portCMS.Add(portKey, 1)
	e.peerCMS.Add(peerAddr, 1)

	if outbound {
		e.bytesOut += flow.Bytes
	} else {
		e.bytesIn += flow.Bytes
	}
	e.flowCount++
	e.activeHours[flow.Start.Hour()]++

	e.topDests[peerAddr] += flow.Bytes

	if e.firstSeen.IsZero() {
		e.firstSeen = flow.Start
	}
	if flow.End.After(e.lastSeen) {
		e.lastSeen = flow.End
	}
	e.version++
	e.updateCount++
}

// MergePartial applies a remote partial sketch to endpointID, gated by
// a monotonic sequence number per agent: replays of an already-applied
// sequence are silently idempotent, never double-counted. The returned
// bool reports whether seq was newly applied (false for a stale or
// duplicate replay).
func (s *Store) MergePartial(endpointID, agentID string, seq uint64, partial Partial) (bool, error) {
	idx := s.stripeFor(endpointID)
	st := &s.stripes[idx]

	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.data[endpointID]
	if !ok {
		e = newEntry(s.cfg)
		st.data[endpointID] = e
	}

	if applied, seen := e.highestSeq[agentID]; seen && seq <= applied {
		return false, nil // stale or duplicate, per C10 idempotence contract
	}

	if err := e.peerHLL.Merge(partial.PeerHLL); err != nil {
		return false, err
	}
	if err := e.portHLL.Merge(partial.PortHLL); err != nil {
		return false, err
	}
	if err := e.portCMS.Merge(partial.PortCMS); err != nil {
		return false, err
	}
	if err := e.peerCMS.Merge(partial.PeerCMS); err != nil {
		return false, err
	}

	e.bytesIn += partial.BytesIn
	e.bytesOut += partial.BytesOut
	e.flowCount += partial.FlowCount
	for h := 0; h < 24; h++ {
		e.activeHours[h] += partial.ActiveHours[h]
	}
	for addr, b := range partial.TopDests {
		e.topDests[addr] += b
	}
	if e.firstSeen.IsZero() || (!partial.FirstSeen.IsZero() && partial.FirstSeen.Before(e.firstSeen)) {
		e.firstSeen = partial.FirstSeen
	}
	if partial.LastSeen.After(e.lastSeen) {
		e.lastSeen = partial.LastSeen
	}

	e.highestSeq[agentID] = seq
	e.version++
	e.updateCount++
	return true, nil
}

// Partial is a remote collector's partial sketch contribution, shaped
// identically to the central sketch configuration (§4.10); mismatched
// shape fails the constituent Merge calls with InvalidShape.
type Partial struct {
	PeerHLL, PortHLL *sketch.HLL
	PortCMS, PeerCMS *sketch.CMS
	BytesIn, BytesOut uint64
	FlowCount         uint64
	ActiveHours       [24]uint64
	TopDests          map[string]uint64
	FirstSeen, LastSeen time.Time
}

// Snapshot returns a copy-on-read view of endpointID's sketch. Readers
// never observe a torn sketch: the stripe's lock is held only long
// enough to clone the underlying estimators.
func (s *Store) Snapshot(endpointID string) (models.SketchSnapshot, bool) {
	idx := s.stripeFor(endpointID)
	st := &s.stripes[idx]

	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.data[endpointID]
	if !ok {
		return models.SketchSnapshot{}, false
	}

	snap := models.SketchSnapshot{
		EndpointID:        endpointID,
		Version:           e.version,
		PeerCardinality:   e.peerHLL.Cardinality(),
		PortCardinality:   e.portHLL.Cardinality(),
		TopPorts:          e.portCMS.TopK(s.cfg.TopKCap),
		TopPeers:          e.peerCMS.TopK(s.cfg.TopKCap),
		TopDestinations:   topNDestinations(e.topDests, s.cfg.TopKCap),
		BytesIn:           e.bytesIn,
		BytesOut:          e.bytesOut,
		FlowCount:         e.flowCount,
		ActiveHourBuckets: e.activeHours,
		FirstSeen:         e.firstSeen,
		LastSeen:          e.lastSeen,
		UpdateCount:       e.updateCount,
	}
	return snap, true
}

// Expire removes sketches not updated since cutoff, returning the
// removed endpoint ids so the caller can emit last_seen events.
func (s *Store) Expire(cutoff time.Time) []string {
	var removed []string
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for id, e := range st.data {
			if e.lastSeen.Before(cutoff) {
				delete(st.data, id)
				removed = append(removed, id)
			}
		}
		st.mu.Unlock()
	}
	return removed
}

// Eligible returns endpoint ids whose sketch has accumulated at least
// minFlows flow observations — the clustering-eligibility threshold
// from §4.5/§4.6.
func (s *Store) Eligible(minFlows uint64) []string {
	var out []string
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.RLock()
		for id, e := range st.data {
			if e.flowCount >= minFlows {
				out = append(out, id)
			}
		}
		st.mu.RUnlock()
	}
	return out
}

func portKeyString(port uint16) string {
	return strconv.Itoa(int(port))
}

func topNDestinations(m map[string]uint64, k int) []models.TopDestination {
	out := make([]models.TopDestination, 0, len(m))
	for addr, b := range m {
		out = append(out, models.TopDestination{Address: addr, Bytes: b})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Bytes > out[j-1].Bytes; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
