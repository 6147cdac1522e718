package flowdecode

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// Decoder is the v9/IPFIX decoder: it pairs the per-exporter template
// cache with the buffer that holds data records awaiting a template.
type Decoder struct {
	Cache   *TemplateCache
	Pending *PendingBuffer
}

// NewDecoder builds a v9/IPFIX decoder over the given template cache
// and pending-record buffer, both shared across exporters.
func NewDecoder(cache *TemplateCache, pending *PendingBuffer) *Decoder {
	return &Decoder{Cache: cache, Pending: pending}
}

const (
	v9HeaderLen    = 20
	ipfixHeaderLen = 16

	setIDTemplate        = 0 // v9
	setIDOptionsTemplate = 1 // v9
	setIDIPFIXTemplate   = 2
	setIDIPFIXOptions    = 3
	setIDDataMin         = 256
)

// DecodeV9 parses a NetFlow v9 packet. Returns decoded flow records and
// any template-missing error for data sets whose template has not yet
// arrived (the caller's buffer already holds the raw set for replay).
func (d *Decoder) DecodeV9(packet []byte, exporterAddr string, now time.Time) ([]models.FlowRecord, error) {
	return d.decode(packet, exporterAddr, now, v9HeaderLen, false)
}

func (d *Decoder) decode(packet []byte, exporterAddr string, now time.Time, headerLen int, ipfix bool) ([]models.FlowRecord, error) {
	if len(packet) < headerLen {
		return nil, errShortPacket
	}
	version := binary.BigEndian.Uint16(packet[0:2])
	if ipfix && version != 10 {
		return nil, errBadVersion
	}
	if !ipfix && version != 9 {
		return nil, errBadVersion
	}

	var sourceID uint32
	if ipfix {
		sourceID = binary.BigEndian.Uint32(packet[12:16])
	} else {
		sourceID = binary.BigEndian.Uint32(packet[16:20])
	}

	var out []models.FlowRecord
	var firstMissing error

	buf := packet[headerLen:]
	for len(buf) >= 4 {
		setID := binary.BigEndian.Uint16(buf[0:2])
		setLen := int(binary.BigEndian.Uint16(buf[2:4]))
		if setLen < 4 || setLen > len(buf) {
			break
		}
		body := buf[4:setLen]

		switch {
		case setID == setIDTemplate || setID == setIDIPFIXTemplate:
			d.handleTemplateSet(body, exporterAddr, sourceID)
		case setID == setIDOptionsTemplate || setID == setIDIPFIXOptions:
			// Options templates describe metadata records Clarion does
			// not consume (exporter stats, sampling config); skipped.
		case setID >= setIDDataMin:
			key := TemplateKey{ExporterAddr: exporterAddr, SourceID: sourceID, TemplateID: setID}
			tmpl, ok := d.Cache.Get(key)
			if !ok {
				d.Pending.Hold(key, body)
				if firstMissing == nil {
					firstMissing = errUnknownTemplate(key)
				}
				buf = buf[setLen:]
				continue
			}
			recs := decodeDataSet(body, tmpl, exporterAddr, now)
			out = append(out, recs...)
		}
		buf = buf[setLen:]
	}
	return out, firstMissing
}

// ReplayPending decodes any records buffered for key now that its
// template has been cached, appending to out.
func (d *Decoder) ReplayPending(key TemplateKey, exporterAddr string, now time.Time) []models.FlowRecord {
	tmpl, ok := d.Cache.Get(key)
	if !ok {
		return nil
	}
	var out []models.FlowRecord
	for _, raw := range d.Pending.Drain(key) {
		out = append(out, decodeDataSet(raw, tmpl, exporterAddr, now)...)
	}
	return out
}

func (d *Decoder) handleTemplateSet(body []byte, exporterAddr string, sourceID uint32) {
	for len(body) >= 4 {
		templateID := binary.BigEndian.Uint16(body[0:2])
		fieldCount := int(binary.BigEndian.Uint16(body[2:4]))
		body = body[4:]

		fields := make([]FieldSpec, 0, fieldCount)
		for i := 0; i < fieldCount && len(body) >= 4; i++ {
			fieldID := binary.BigEndian.Uint16(body[0:2])
			length := binary.BigEndian.Uint16(body[2:4])
			body = body[4:]

			var enterpriseID uint32
			if fieldID&enterpriseFieldEnabled != 0 {
				if len(body) < 4 {
					break
				}
				enterpriseID = binary.BigEndian.Uint32(body[0:4])
				body = body[4:]
				fieldID &^= enterpriseFieldEnabled
			}
			fields = append(fields, FieldSpec{EnterpriseID: enterpriseID, FieldID: fieldID, Length: length})
		}

		d.Cache.Put(TemplateKey{ExporterAddr: exporterAddr, SourceID: sourceID, TemplateID: templateID}, Template{Fields: fields})
	}
}

func decodeDataSet(body []byte, tmpl Template, exporterAddr string, now time.Time) []models.FlowRecord {
	recordLen := 0
	for _, f := range tmpl.Fields {
		recordLen += int(f.Length)
	}
	if recordLen == 0 {
		return nil
	}

	var out []models.FlowRecord
	for len(body) >= recordLen {
		rec := body[:recordLen]
		body = body[recordLen:]

		flow := models.FlowRecord{ExporterID: exporterAddr}
		var srcTag, dstTag uint32
		var haveSrcTag, haveDstTag bool
		off := 0
		for _, f := range tmpl.Fields {
			val := rec[off : off+int(f.Length)]
			off += int(f.Length)

			switch {
			case f.EnterpriseID == 0 && f.FieldID == ieSourceIPv4Address && f.Length == 4:
				flow.SrcAddr = net.IP(val).String()
			case f.EnterpriseID == 0 && f.FieldID == ieDestinationIPv4Address && f.Length == 4:
				flow.DstAddr = net.IP(val).String()
			case f.EnterpriseID == 0 && f.FieldID == ieSourceTransportPort:
				flow.SrcPort = uint16(beUint(val))
			case f.EnterpriseID == 0 && f.FieldID == ieDestinationTransportPort:
				flow.DstPort = uint16(beUint(val))
			case f.EnterpriseID == 0 && f.FieldID == ieProtocolIdentifier:
				flow.Protocol = uint8(beUint(val))
			case f.EnterpriseID == 0 && f.FieldID == ieOctetDeltaCount:
				flow.Bytes = beUint(val)
			case f.EnterpriseID == 0 && f.FieldID == iePacketDeltaCount:
				flow.Packets = beUint(val)
			case f.EnterpriseID == 0 && f.FieldID == ieFlowStartSeconds:
				flow.Start = time.Unix(int64(beUint(val)), 0)
			case f.EnterpriseID == 0 && f.FieldID == ieFlowEndSeconds:
				flow.End = time.Unix(int64(beUint(val)), 0)
			case f.EnterpriseID == ciscoEnterpriseID && f.FieldID == ieCiscoSourceSGT:
				srcTag = uint32(beUint(val))
				haveSrcTag = true
			case f.EnterpriseID == ciscoEnterpriseID && f.FieldID == ieCiscoDestSGT:
				dstTag = uint32(beUint(val))
				haveDstTag = true
			}
		}
		if haveSrcTag {
			flow.SrcTagValue = &srcTag
		}
		if haveDstTag {
			flow.DstTagValue = &dstTag
		}
		if flow.Start.IsZero() {
			flow.Start = now
		}
		if flow.End.IsZero() {
			flow.End = flow.Start
		}
		if skewed(flow.Start, now) || skewed(flow.End, now) {
			continue
		}
		out = append(out, flow)
	}
	return out
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
