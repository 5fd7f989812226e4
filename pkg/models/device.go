package models

import "time"

// DeviceType categorizes a discovered device. ISP gear with its own
// management plane (RouterOS, airOS, cnPilot) is typed by platform rather
// than by role, since that decides how operators manage it.
type DeviceType string

const (
	DeviceTypeMikrotik    DeviceType = "mikrotik"
	DeviceTypeUbiquiti    DeviceType = "ubiquiti"
	DeviceTypeCambium     DeviceType = "cambium"
	DeviceTypeRouter      DeviceType = "router"
	DeviceTypeSwitch      DeviceType = "switch"
	DeviceTypeFirewall    DeviceType = "firewall"
	DeviceTypeAccessPoint DeviceType = "access_point"
	DeviceTypeServer      DeviceType = "server"
	DeviceTypeWorkstation DeviceType = "workstation"
	DeviceTypePrinter     DeviceType = "printer"
	DeviceTypeUnknown     DeviceType = "unknown"
)

// DeviceStatus is the reachability state of a device. Devices are never
// deleted; they move between these states.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
)

// DiscoveryMethod records how a device first became known.
type DiscoveryMethod string

const (
	DiscoverySNMP DiscoveryMethod = "snmp"
	DiscoveryMNDP DiscoveryMethod = "mndp"
	DiscoveryLLDP DiscoveryMethod = "lldp"
)

// DiscoveredDevice is one host found on a managed range. IP is the identity.
type DiscoveredDevice struct {
	ID              string          `json:"id"`
	IP              string          `json:"ip"`
	Hostname        string          `json:"hostname,omitempty"`
	MAC             string          `json:"mac,omitempty"`
	DeviceType      DeviceType      `json:"device_type"`
	Vendor          string          `json:"vendor,omitempty"`
	Model           string          `json:"model,omitempty"`
	OSVersion       string          `json:"os_version,omitempty"`
	SysDescr        string          `json:"sys_descr,omitempty"`
	SysObjectID     string          `json:"sys_object_id,omitempty"`
	SysName         string          `json:"sys_name,omitempty"`
	SysLocation     string          `json:"sys_location,omitempty"`
	UptimeSeconds   int64           `json:"uptime_seconds,omitempty"`
	SNMPCommunity   string          `json:"-"`
	Status          DeviceStatus    `json:"status"`
	DiscoveryMethod DiscoveryMethod `json:"discovery_method"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
}
