package models

import "time"

// EndpointIdentity is a stable opaque handle for an observed network
// endpoint. Keyed preferentially by hardware address when present,
// otherwise by exporter-scoped network address, otherwise by an
// internally minted UUID.
type EndpointIdentity struct {
	ID             string
	HardwareAddr   string
	ExporterID     string
	Addresses      []string // bounded recent-address history
	Hostname       string
	DeviceType     string
	FirstSeen      time.Time
	LastSeen       time.Time
}

// MaxAddressHistory bounds EndpointIdentity.Addresses.
const MaxAddressHistory = 16

// TouchAddress records a newly observed address, keeping the history
// bounded and deduplicated on the most recent entry.
func (e *EndpointIdentity) TouchAddress(addr string) {
	if len(e.Addresses) > 0 && e.Addresses[len(e.Addresses)-1] == addr {
		return
	}
	e.Addresses = append(e.Addresses, addr)
	if len(e.Addresses) > MaxAddressHistory {
		e.Addresses = e.Addresses[len(e.Addresses)-MaxAddressHistory:]
	}
}
