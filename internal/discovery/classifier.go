package discovery

import (
	"regexp"
	"strings"

	"github.com/HerbHall/netsweep/pkg/models"
)

// Classification is what the classifier could infer about a device.
type Classification struct {
	DeviceType models.DeviceType `json:"device_type"`
	Vendor     string            `json:"vendor,omitempty"`
	Model      string            `json:"model,omitempty"`
	OSVersion  string            `json:"os_version,omitempty"`
	Confidence int               `json:"confidence"` // 0-100
}

// descrRule matches sysDescr. The first capture group of version and model
// is extracted when they match.
type descrRule struct {
	match      *regexp.Regexp
	deviceType models.DeviceType
	vendor     string
	version    *regexp.Regexp
	model      *regexp.Regexp
	confidence int
}

// descrRules is evaluated top to bottom; the first match wins. More specific
// platforms come before the generic operating systems they run on.
var descrRules = []descrRule{
	{
		match:      regexp.MustCompile(`(?i)mikrotik|routeros`),
		deviceType: models.DeviceTypeMikrotik,
		vendor:     "Mikrotik",
		version:    regexp.MustCompile(`(?i)RouterOS\s+v?(\d+(?:\.\d+)+)`),
		model:      regexp.MustCompile(`\b((?:RB|CCR|CRS|CSS|CHR|hAP|hEX|LHG|SXT|wAP|cAP|LtAP|NetMetal|Chateau|L009)[\w+\-]*)`),
		confidence: 90,
	},
	{
		match:      regexp.MustCompile(`(?i)ubiquiti|\bubnt\b|\bairos\b|edgeos|edgeswitch|edgerouter|\bunifi\b`),
		deviceType: models.DeviceTypeUbiquiti,
		vendor:     "Ubiquiti",
		version:    regexp.MustCompile(`(?i)(?:airOS|EdgeOS|EdgeSwitch|UniFi)\s*v?(\d+\.\d+(?:\.\d+)*)`),
		model:      regexp.MustCompile(`\b(EdgeRouter[\w\-]*|EdgeSwitch[\w\-]*|UAP-[\w\-]+|USW-[\w\-]+|US-[\w\-]+|NanoStation[\w\-]*|NanoBeam[\w\-]*|LiteBeam[\w\-]*|PowerBeam[\w\-]*|Rocket[\w\-]*)`),
		confidence: 85,
	},
	{
		match:      regexp.MustCompile(`(?i)cambium|cnpilot|cnmatrix|epmp|canopy`),
		deviceType: models.DeviceTypeCambium,
		vendor:     "Cambium",
		version:    regexp.MustCompile(`(?i)(?:version|release)\s*v?(\d+(?:\.\d+)+)`),
		model:      regexp.MustCompile(`(?i)\b(ePMP\s?\d+\w*|cnPilot\s?[\w\-]+|PMP\s?\d+\w*|cnMatrix\s?[\w\-]+)`),
		confidence: 85,
	},
	{
		match:      regexp.MustCompile(`(?i)cisco adaptive security appliance|cisco.*\basa\b`),
		deviceType: models.DeviceTypeFirewall,
		vendor:     "Cisco",
		version:    regexp.MustCompile(`(?i)Version\s+([\w.()]+)`),
		confidence: 85,
	},
	{
		match:      regexp.MustCompile(`(?i)cisco nx-os|cisco.*(?:catalyst|c2960|c3750|c3850|cat9k|c9[23]00)`),
		deviceType: models.DeviceTypeSwitch,
		vendor:     "Cisco",
		version:    regexp.MustCompile(`(?i)Version\s+([\w.()]+)`),
		model:      regexp.MustCompile(`(?i)Software \(([A-Za-z0-9]+)[-_]`),
		confidence: 85,
	},
	{
		match:      regexp.MustCompile(`(?i)cisco`),
		deviceType: models.DeviceTypeRouter,
		vendor:     "Cisco",
		version:    regexp.MustCompile(`(?i)Version\s+([\w.()]+)`),
		model:      regexp.MustCompile(`(?i)Software \(([A-Za-z0-9]+)[-_]`),
		confidence: 80,
	},
	{
		match:      regexp.MustCompile(`(?i)juniper.*\b(?:ex|qfx)\d`),
		deviceType: models.DeviceTypeSwitch,
		vendor:     "Juniper",
		version:    regexp.MustCompile(`(?i)JUNOS\s+([\w.\-]+)`),
		model:      regexp.MustCompile(`(?i)Juniper Networks, Inc\.\s+(\S+)`),
		confidence: 85,
	},
	{
		match:      regexp.MustCompile(`(?i)juniper.*\bsrx\d`),
		deviceType: models.DeviceTypeFirewall,
		vendor:     "Juniper",
		version:    regexp.MustCompile(`(?i)JUNOS\s+([\w.\-]+)`),
		model:      regexp.MustCompile(`(?i)Juniper Networks, Inc\.\s+(\S+)`),
		confidence: 85,
	},
	{
		match:      regexp.MustCompile(`(?i)juniper|junos`),
		deviceType: models.DeviceTypeRouter,
		vendor:     "Juniper",
		version:    regexp.MustCompile(`(?i)JUNOS\s+([\w.\-]+)`),
		model:      regexp.MustCompile(`(?i)Juniper Networks, Inc\.\s+(\S+)`),
		confidence: 80,
	},
	{
		match:      regexp.MustCompile(`(?i)huawei.*\b(?:S\d{4}|CE\d{4})`),
		deviceType: models.DeviceTypeSwitch,
		vendor:     "Huawei",
		version:    regexp.MustCompile(`(?i)Version\s+(\d+(?:\.\d+)+)`),
		model:      regexp.MustCompile(`\b((?:S|CE)\d{4}[\w\-]*)`),
		confidence: 85,
	},
	{
		match:      regexp.MustCompile(`(?i)huawei|\bvrp\b`),
		deviceType: models.DeviceTypeRouter,
		vendor:     "Huawei",
		version:    regexp.MustCompile(`(?i)Version\s+(\d+(?:\.\d+)+)`),
		model:      regexp.MustCompile(`\((\S+)\s+V\d{3}R`),
		confidence: 80,
	},
	{
		match:      regexp.MustCompile(`(?i)(?:tp-?link|omada).*\b(?:EAP|CPE|WBS)\d`),
		deviceType: models.DeviceTypeAccessPoint,
		vendor:     "TP-Link",
		version:    regexp.MustCompile(`(?i)(?:version|v)\s*(\d+(?:\.\d+)+)`),
		model:      regexp.MustCompile(`\b((?:EAP|CPE|WBS)\d+[\w\-]*)`),
		confidence: 80,
	},
	{
		match:      regexp.MustCompile(`(?i)tp-?link|jetstream|omada`),
		deviceType: models.DeviceTypeSwitch,
		vendor:     "TP-Link",
		version:    regexp.MustCompile(`(?i)(?:version|v)\s*(\d+(?:\.\d+)+)`),
		model:      regexp.MustCompile(`\b((?:T|TL-SG|SG)\d{4}[\w\-]*|TL-[\w\-]+)`),
		confidence: 75,
	},
	{
		match:      regexp.MustCompile(`(?i)fortigate|fortios`),
		deviceType: models.DeviceTypeFirewall,
		vendor:     "Fortinet",
		version:    regexp.MustCompile(`(?i)v(\d+\.\d+(?:\.\d+)*)`),
		model:      regexp.MustCompile(`(?i)\b(FortiGate-[\w]+)`),
		confidence: 80,
	},
	{
		match:      regexp.MustCompile(`(?i)laserjet|officejet|printer`),
		deviceType: models.DeviceTypePrinter,
		confidence: 60,
	},
	{
		match:      regexp.MustCompile(`(?i)\bwindows\b`),
		deviceType: models.DeviceTypeWorkstation,
		vendor:     "Microsoft",
		version:    regexp.MustCompile(`(?i)Windows Version\s+(\d+(?:\.\d+)+)`),
		confidence: 60,
	},
	{
		match:      regexp.MustCompile(`(?i)\blinux\b`),
		deviceType: models.DeviceTypeServer,
		vendor:     "Linux",
		version:    regexp.MustCompile(`(?i)^Linux\s+\S+\s+(\S+)`),
		confidence: 50,
	},
	{
		match:      regexp.MustCompile(`(?i)freebsd`),
		deviceType: models.DeviceTypeServer,
		vendor:     "FreeBSD",
		version:    regexp.MustCompile(`(?i)FreeBSD\s+(?:\S+\s+)?(\d+\.\d+[\w\-.]*)`),
		confidence: 50,
	},
}

// enterpriseRule maps a private enterprise number under 1.3.6.1.4.1.
type enterpriseRule struct {
	deviceType models.DeviceType
	vendor     string
}

var enterpriseRules = map[string]enterpriseRule{
	EnterpriseMikrotik:  {models.DeviceTypeMikrotik, "Mikrotik"},
	EnterpriseCisco:     {models.DeviceTypeRouter, "Cisco"},
	EnterpriseJuniper:   {models.DeviceTypeRouter, "Juniper"},
	EnterpriseUbiquiti:  {models.DeviceTypeUbiquiti, "Ubiquiti"},
	EnterpriseHuawei:    {models.DeviceTypeRouter, "Huawei"},
	EnterpriseCambium:   {models.DeviceTypeCambium, "Cambium"},
	EnterpriseTPLink:    {models.DeviceTypeSwitch, "TP-Link"},
	EnterpriseNetSNMP:   {models.DeviceTypeServer, "Linux"},
	EnterpriseMicrosoft: {models.DeviceTypeWorkstation, "Microsoft"},
}

// Classify infers device type, vendor, model and OS version from sysDescr,
// falling back to the sysObjectID enterprise number when sysDescr matches
// nothing. Unmatched input yields DeviceTypeUnknown with an empty vendor.
func Classify(sysDescr, sysObjectID string) Classification {
	descr := strings.TrimSpace(sysDescr)
	if descr != "" {
		for i := range descrRules {
			r := &descrRules[i]
			if !r.match.MatchString(descr) {
				continue
			}
			c := Classification{
				DeviceType: r.deviceType,
				Vendor:     r.vendor,
				Model:      submatch(r.model, descr),
				OSVersion:  submatch(r.version, descr),
				Confidence: r.confidence,
			}
			if c.OSVersion != "" {
				c.Confidence = min(c.Confidence+5, 100)
			}
			if c.Model != "" {
				c.Confidence = min(c.Confidence+5, 100)
			}
			return c
		}
	}

	if e, ok := enterpriseRules[enterpriseNumber(sysObjectID)]; ok {
		return Classification{DeviceType: e.deviceType, Vendor: e.vendor, Confidence: 50}
	}
	return Classification{DeviceType: models.DeviceTypeUnknown}
}

// enterpriseNumber returns the arc after 1.3.6.1.4.1, or "".
func enterpriseNumber(objectID string) string {
	rest, ok := strings.CutPrefix(normalizeOID(objectID), OIDEnterprises+".")
	if !ok {
		return ""
	}
	num, _, _ := strings.Cut(rest, ".")
	return num
}

func submatch(re *regexp.Regexp, s string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimRight(m[1], ",;")
}
