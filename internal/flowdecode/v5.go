package flowdecode

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

const (
	v5HeaderLen = 24
	v5RecordLen = 48
	v5MaxRecords = 30
)

// DecodeV5 parses a NetFlow v5 packet: a fixed 24-byte header followed
// by up to 30 fixed 48-byte flow records. now is the wall-clock time
// used for the ±24h TimeSkew tolerance check.
func DecodeV5(packet []byte, exporterAddr string, now time.Time) ([]models.FlowRecord, error) {
	if len(packet) < v5HeaderLen {
		return nil, errShortPacket
	}
	version := binary.BigEndian.Uint16(packet[0:2])
	if version != 5 {
		return nil, errBadVersion
	}
	count := int(binary.BigEndian.Uint16(packet[2:4]))
	sysUptime := binary.BigEndian.Uint32(packet[4:8])
	unixSecs := binary.BigEndian.Uint32(packet[8:12])

	if count > v5MaxRecords {
		count = v5MaxRecords
	}
	need := v5HeaderLen + count*v5RecordLen
	if len(packet) < need {
		return nil, errShortPacket
	}

	bootTime := time.Unix(int64(unixSecs), 0).Add(-time.Duration(sysUptime) * time.Millisecond)

	records := make([]models.FlowRecord, 0, count)
	for i := 0; i < count; i++ {
		off := v5HeaderLen + i*v5RecordLen
		rec := packet[off : off+v5RecordLen]

		srcAddr := net.IP(rec[0:4]).String()
		dstAddr := net.IP(rec[4:8]).String()
		dPkts := binary.BigEndian.Uint32(rec[16:20])
		dOctets := binary.BigEndian.Uint32(rec[20:24])
		first := binary.BigEndian.Uint32(rec[24:28])
		last := binary.BigEndian.Uint32(rec[28:32])
		srcPort := binary.BigEndian.Uint16(rec[32:34])
		dstPort := binary.BigEndian.Uint16(rec[34:36])
		protocol := rec[38]

		start := bootTime.Add(time.Duration(first) * time.Millisecond)
		end := bootTime.Add(time.Duration(last) * time.Millisecond)

		if skewed(start, now) || skewed(end, now) {
			continue
		}
		if end.Before(start) {
			end = start
		}

		records = append(records, models.FlowRecord{
			SrcAddr:    srcAddr,
			DstAddr:    dstAddr,
			SrcPort:    srcPort,
			DstPort:    dstPort,
			Protocol:   protocol,
			Bytes:      uint64(dOctets),
			Packets:    uint64(dPkts),
			Start:      start,
			End:        end,
			ExporterID: exporterAddr,
		})
	}
	return records, nil
}

func skewed(t, now time.Time) bool {
	const tolerance = 24 * time.Hour
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}
