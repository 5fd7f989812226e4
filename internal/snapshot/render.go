package snapshot

import (
	"cmp"
	"encoding/json"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/HerbHall/netsweep/pkg/models"
)

// Document is the content of devices.json. It holds only inventory fields
// that change when the network changes; last_seen, uptime and counters are
// left out so an idle network produces no commits.
type Document struct {
	DeviceCount int              `json:"device_count"`
	Devices     []DocumentDevice `json:"devices"`
}

// DocumentDevice is one inventory entry.
type DocumentDevice struct {
	ID              string                 `json:"id"`
	IP              string                 `json:"ip"`
	Hostname        string                 `json:"hostname,omitempty"`
	MAC             string                 `json:"mac,omitempty"`
	DeviceType      models.DeviceType      `json:"device_type"`
	Vendor          string                 `json:"vendor,omitempty"`
	Model           string                 `json:"model,omitempty"`
	OSVersion       string                 `json:"os_version,omitempty"`
	SysName         string                 `json:"sys_name,omitempty"`
	SysLocation     string                 `json:"sys_location,omitempty"`
	Status          models.DeviceStatus    `json:"status"`
	DiscoveryMethod models.DiscoveryMethod `json:"discovery_method"`
	FirstSeen       string                 `json:"first_seen"`
	Interfaces      []DocumentInterface    `json:"interfaces,omitempty"`
}

// DocumentInterface is the stable part of a NetworkInterface.
type DocumentInterface struct {
	IfIndex  int                    `json:"if_index"`
	Name     string                 `json:"name"`
	SpeedBps uint64                 `json:"speed_bps,omitempty"`
	MAC      string                 `json:"mac,omitempty"`
	Status   models.InterfaceStatus `json:"status"`
}

// BuildDocument assembles a Document ordered by IP. ifaces maps device ID
// to its interfaces.
func BuildDocument(devices []models.DiscoveredDevice, ifaces map[string][]models.NetworkInterface) Document {
	doc := Document{DeviceCount: len(devices), Devices: make([]DocumentDevice, 0, len(devices))}
	for i := range devices {
		d := &devices[i]
		dd := DocumentDevice{
			ID:              d.ID,
			IP:              d.IP,
			Hostname:        d.Hostname,
			MAC:             d.MAC,
			DeviceType:      d.DeviceType,
			Vendor:          d.Vendor,
			Model:           d.Model,
			OSVersion:       d.OSVersion,
			SysName:         d.SysName,
			SysLocation:     d.SysLocation,
			Status:          d.Status,
			DiscoveryMethod: d.DiscoveryMethod,
			FirstSeen:       d.FirstSeen.UTC().Format("2006-01-02T15:04:05Z"),
		}
		for _, ni := range ifaces[d.ID] {
			dd.Interfaces = append(dd.Interfaces, DocumentInterface{
				IfIndex:  ni.IfIndex,
				Name:     ni.Name,
				SpeedBps: ni.SpeedBps,
				MAC:      ni.MAC,
				Status:   ni.Status,
			})
		}
		slices.SortFunc(dd.Interfaces, func(a, b DocumentInterface) int { return cmp.Compare(a.IfIndex, b.IfIndex) })
		doc.Devices = append(doc.Devices, dd)
	}
	slices.SortFunc(doc.Devices, func(a, b DocumentDevice) int { return compareIP(a.IP, b.IP) })
	return doc
}

// render encodes doc as indented JSON with a trailing newline.
func (doc Document) render() ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// GenerateMarkdown renders doc as Markdown tables, one section per device
// type in alphabetical order.
func GenerateMarkdown(doc Document) string {
	var b strings.Builder
	b.WriteString("# Network Inventory\n\n")
	if len(doc.Devices) == 0 {
		b.WriteString("No devices discovered.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d devices.\n", doc.DeviceCount)

	groups := make(map[models.DeviceType][]DocumentDevice)
	for _, d := range doc.Devices {
		groups[d.DeviceType] = append(groups[d.DeviceType], d)
	}
	types := make([]models.DeviceType, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	slices.Sort(types)

	for _, t := range types {
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", sectionTitle(t), len(groups[t]))
		b.WriteString("| IP | Hostname | Vendor | Model | OS | Status | Interfaces |\n")
		b.WriteString("|----|----------|--------|-------|----|--------|------------|\n")
		for _, d := range groups[t] {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %d |\n",
				d.IP, cell(d.Hostname), cell(d.Vendor), cell(d.Model), cell(d.OSVersion),
				d.Status, len(d.Interfaces))
		}
	}
	return b.String()
}

func sectionTitle(t models.DeviceType) string {
	if t == "" {
		return "Unknown"
	}
	s := strings.ReplaceAll(string(t), "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

// cell escapes pipes and substitutes a dash for empty values.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func compareIP(a, b string) int {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return pa.Compare(pb)
}
