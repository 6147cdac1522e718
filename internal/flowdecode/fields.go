package flowdecode

// Standard v9/IPFIX information element ids this decoder understands.
// Unrecognized fields are skipped by length, not rejected — a template
// may carry fields Clarion has no use for.
const (
	ieOctetDeltaCount       = 1
	iePacketDeltaCount      = 2
	ieProtocolIdentifier    = 4
	ieSourceTransportPort   = 7
	ieSourceIPv4Address     = 8
	ieDestinationIPv4Address = 12
	ieDestinationTransportPort = 11
	ieFlowStartSysUpTime    = 22
	ieFlowEndSysUpTime      = 21
	ieFlowStartSeconds      = 150
	ieFlowEndSeconds        = 151
)

// enterpriseFieldEnabled bit on the wire field id indicates the field
// is enterprise-specific and carries a following 4-byte enterprise
// number.
const enterpriseFieldEnabled = 0x8000

// Cisco TrustSec-style source/destination group tag fields, the
// enterprise extension this decoder recognizes for tag values per
// spec §4.2.
const (
	ciscoEnterpriseID  = 9
	ieCiscoSourceSGT   = 34000
	ieCiscoDestSGT     = 34001
)
