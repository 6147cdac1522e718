package flowdecode

import (
	"encoding/binary"
	"testing"
	"time"
)

func v9Header(sourceID uint32, sets []byte) []byte {
	buf := make([]byte, v9HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], 9)
	binary.BigEndian.PutUint16(buf[2:4], 1) // count, unused by decoder
	binary.BigEndian.PutUint32(buf[16:20], sourceID)
	return append(buf, sets...)
}

func buildTemplateSet(templateID uint16) []byte {
	// Template: srcAddr(4), dstAddr(4), srcPort(2), dstPort(2), proto(1),
	// bytes(4), packets(4), flowStartSeconds(4), flowEndSeconds(4).
	fields := [][3]uint16{
		{ieSourceIPv4Address, 4, 0},
		{ieDestinationIPv4Address, 4, 0},
		{ieSourceTransportPort, 2, 0},
		{ieDestinationTransportPort, 2, 0},
		{ieProtocolIdentifier, 1, 0},
		{ieOctetDeltaCount, 4, 0},
		{iePacketDeltaCount, 4, 0},
		{ieFlowStartSeconds, 4, 0},
		{ieFlowEndSeconds, 4, 0},
	}
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], templateID)
	binary.BigEndian.PutUint16(body[2:4], uint16(len(fields)))
	for _, f := range fields {
		rec := make([]byte, 4)
		binary.BigEndian.PutUint16(rec[0:2], f[0])
		binary.BigEndian.PutUint16(rec[2:4], f[1])
		body = append(body, rec...)
	}

	set := make([]byte, 4)
	binary.BigEndian.PutUint16(set[0:2], setIDTemplate)
	full := append(set, body...)
	binary.BigEndian.PutUint16(full[2:4], uint16(len(full)))
	return full
}

func buildDataSet(templateID uint16, now time.Time) []byte {
	rec := make([]byte, 0, 23)
	rec = append(rec, 10, 0, 0, 5)
	rec = append(rec, 10, 0, 0, 200)
	rec = append(rec, byteU16(5000)...)
	rec = append(rec, byteU16(443)...)
	rec = append(rec, 6)
	rec = append(rec, byteU32(1500)...)
	rec = append(rec, byteU32(3)...)
	rec = append(rec, byteU32(uint32(now.Unix()))...)
	rec = append(rec, byteU32(uint32(now.Unix())+1)...)

	set := make([]byte, 4)
	binary.BigEndian.PutUint16(set[0:2], templateID)
	full := append(set, rec...)
	binary.BigEndian.PutUint16(full[2:4], uint16(len(full)))
	return full
}

func byteU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}
func byteU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func TestV9_LateTemplate_DataBufferedThenReplayed(t *testing.T) {
	now := time.Now()
	cache := NewTemplateCache(64, 30*time.Minute)
	pending := NewPendingBuffer(256)
	dec := NewDecoder(cache, pending)

	const templateID = uint16(300)
	dataPkt := v9Header(1, buildDataSet(templateID, now))

	recs, err := dec.DecodeV9(dataPkt, "exp-1", now)
	if len(recs) != 0 {
		t.Fatalf("expected no records before template arrives, got %d", len(recs))
	}
	if err == nil {
		t.Fatal("expected TemplateMissing error")
	}

	templatePkt := v9Header(1, buildTemplateSet(templateID))
	if _, err := dec.DecodeV9(templatePkt, "exp-1", now); err != nil {
		t.Fatalf("template decode should not error: %v", err)
	}

	key := TemplateKey{ExporterAddr: "exp-1", SourceID: 1, TemplateID: templateID}
	replayed := dec.ReplayPending(key, "exp-1", now)
	if len(replayed) != 1 {
		t.Fatalf("expected 1 replayed record, got %d", len(replayed))
	}
	if replayed[0].DstPort != 443 || replayed[0].Protocol != 6 {
		t.Errorf("unexpected replayed record: %+v", replayed[0])
	}

	dataPkt2 := v9Header(1, buildDataSet(templateID, now))
	recs2, err := dec.DecodeV9(dataPkt2, "exp-1", now)
	if err != nil {
		t.Fatalf("decode after template cached should not error: %v", err)
	}
	if len(recs2) != 1 {
		t.Fatalf("expected 1 record decoded directly once template is cached, got %d", len(recs2))
	}
}
