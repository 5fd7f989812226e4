// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/netsweep/internal/store"
	"github.com/HerbHall/netsweep/pkg/models"
)

// NewStore opens a fresh SQLite database in a temporary directory and closes
// it when the test ends.
func NewStore(t testing.TB) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "netsweep.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewDevice returns a DiscoveredDevice with sensible defaults, suitable for
// test fixtures. Options override individual fields.
func NewDevice(opts ...func(*models.DiscoveredDevice)) models.DiscoveredDevice {
	now := time.Now().UTC()
	d := models.DiscoveredDevice{
		ID:              uuid.New().String(),
		IP:              "192.168.1.10",
		Hostname:        "core-rtr-01",
		MAC:             "4C:5E:0C:11:22:33",
		DeviceType:      models.DeviceTypeMikrotik,
		Vendor:          "Mikrotik",
		SysDescr:        "RouterOS RB4011iGS+",
		SysObjectID:     "1.3.6.1.4.1.14988.1",
		SysName:         "core-rtr-01",
		SNMPCommunity:   "public",
		Status:          models.DeviceStatusOnline,
		DiscoveryMethod: models.DiscoverySNMP,
		FirstSeen:       now,
		LastSeen:        now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithIP sets the device IP.
func WithIP(ip string) func(*models.DiscoveredDevice) {
	return func(d *models.DiscoveredDevice) { d.IP = ip }
}

// WithHostname sets the device hostname.
func WithHostname(name string) func(*models.DiscoveredDevice) {
	return func(d *models.DiscoveredDevice) { d.Hostname = name }
}

// WithStatus sets the device status.
func WithStatus(s models.DeviceStatus) func(*models.DiscoveredDevice) {
	return func(d *models.DiscoveredDevice) { d.Status = s }
}

// WithLastSeen sets the device's last_seen timestamp.
func WithLastSeen(t time.Time) func(*models.DiscoveredDevice) {
	return func(d *models.DiscoveredDevice) { d.LastSeen = t }
}

// WithDeviceType sets the device type and vendor together.
func WithDeviceType(dt models.DeviceType, vendor string) func(*models.DiscoveredDevice) {
	return func(d *models.DiscoveredDevice) {
		d.DeviceType = dt
		d.Vendor = vendor
	}
}

// WithCommunity sets the SNMP community the device answered to.
func WithCommunity(c string) func(*models.DiscoveredDevice) {
	return func(d *models.DiscoveredDevice) { d.SNMPCommunity = c }
}

// NewInterface returns an up ethernet interface on deviceID.
func NewInterface(deviceID string, ifIndex int, opts ...func(*models.NetworkInterface)) models.NetworkInterface {
	iface := models.NetworkInterface{
		DeviceID:  deviceID,
		IfIndex:   ifIndex,
		Name:      "ether1",
		Type:      6,
		SpeedBps:  1_000_000_000,
		Status:    models.InterfaceUp,
		UpdatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&iface)
	}
	return iface
}

// WithInterfaceName sets the interface name.
func WithInterfaceName(name string) func(*models.NetworkInterface) {
	return func(i *models.NetworkInterface) { i.Name = name }
}
