package flowdecode

import (
	"encoding/binary"
	"testing"
	"time"
)

func buildV5Packet(t *testing.T, unixSecs uint32, n int) []byte {
	t.Helper()
	buf := make([]byte, v5HeaderLen+n*v5RecordLen)
	binary.BigEndian.PutUint16(buf[0:2], 5)
	binary.BigEndian.PutUint16(buf[2:4], uint16(n))
	binary.BigEndian.PutUint32(buf[4:8], 0) // sysUptime
	binary.BigEndian.PutUint32(buf[8:12], unixSecs)

	for i := 0; i < n; i++ {
		off := v5HeaderLen + i*v5RecordLen
		rec := buf[off : off+v5RecordLen]
		copy(rec[0:4], []byte{10, 0, 0, byte(i + 1)})
		copy(rec[4:8], []byte{10, 0, 0, 200})
		binary.BigEndian.PutUint32(rec[20:24], 1500) // dOctets
		binary.BigEndian.PutUint32(rec[16:20], 3)    // dPkts
		binary.BigEndian.PutUint32(rec[24:28], 0)    // first
		binary.BigEndian.PutUint32(rec[28:32], 100)  // last
		binary.BigEndian.PutUint16(rec[32:34], 5000)
		binary.BigEndian.PutUint16(rec[34:36], 443)
		rec[38] = 6 // TCP
	}
	return buf
}

func TestDecodeV5_ParsesFixedRecords(t *testing.T) {
	now := time.Now()
	pkt := buildV5Packet(t, uint32(now.Unix()), 2)

	recs, err := DecodeV5(pkt, "exporter-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].DstPort != 443 || recs[0].Protocol != 6 {
		t.Errorf("unexpected record: %+v", recs[0])
	}
	if recs[0].Bytes != 1500 || recs[0].Packets != 3 {
		t.Errorf("unexpected counters: %+v", recs[0])
	}
}

func TestDecodeV5_ShortPacketRejected(t *testing.T) {
	if _, err := DecodeV5([]byte{1, 2, 3}, "exporter-1", time.Now()); err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestDecodeV5_BadVersionRejected(t *testing.T) {
	pkt := buildV5Packet(t, uint32(time.Now().Unix()), 1)
	binary.BigEndian.PutUint16(pkt[0:2], 7)
	if _, err := DecodeV5(pkt, "exporter-1", time.Now()); err == nil {
		t.Fatal("expected BadVersion error")
	}
}
