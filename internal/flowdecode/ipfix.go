package flowdecode

import (
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// DecodeIPFIX parses an IPFIX packet; structurally identical to v9
// beyond header length (16 bytes, no sampling-interval trailer) and a
// couple of reserved set ids, so it shares the same decode path.
func (d *Decoder) DecodeIPFIX(packet []byte, exporterAddr string, now time.Time) ([]models.FlowRecord, error) {
	return d.decode(packet, exporterAddr, now, ipfixHeaderLen, true)
}
