package models

import "time"

// InterfaceStatus is the operational state reported by ifOperStatus.
type InterfaceStatus string

const (
	InterfaceUp   InterfaceStatus = "up"
	InterfaceDown InterfaceStatus = "down"
)

// NetworkInterface belongs to exactly one DiscoveredDevice and is keyed by
// (DeviceID, IfIndex). Counters hold the latest raw values; the rate fields
// are nil until two usable samples exist.
type NetworkInterface struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"device_id"`
	IfIndex     int             `json:"if_index"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        int             `json:"type"`
	SpeedBps    uint64          `json:"speed_bps"`
	MAC         string          `json:"mac,omitempty"`
	IP          string          `json:"ip,omitempty"`
	Status      InterfaceStatus `json:"status"`
	RxBytes     uint64          `json:"rx_bytes"`
	TxBytes     uint64          `json:"tx_bytes"`
	RxRate      *float64        `json:"rx_rate,omitempty"` // bytes/sec
	TxRate      *float64        `json:"tx_rate,omitempty"` // bytes/sec
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TransferSample is one write-once row of interface counter history.
type TransferSample struct {
	ID           int64     `json:"id"`
	InterfaceID  string    `json:"interface_id"`
	BytesIn      uint64    `json:"bytes_in"`
	BytesOut     uint64    `json:"bytes_out"`
	PacketsIn    uint64    `json:"packets_in"`
	PacketsOut   uint64    `json:"packets_out"`
	ErrorsIn     uint64    `json:"errors_in"`
	ErrorsOut    uint64    `json:"errors_out"`
	HighCapacity bool      `json:"high_capacity"` // 64-bit ifXTable counters
	InRate       *float64  `json:"in_rate,omitempty"`
	OutRate      *float64  `json:"out_rate,omitempty"`
	SampledAt    time.Time `json:"sampled_at"`
}
