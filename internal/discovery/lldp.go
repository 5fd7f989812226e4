package discovery

import (
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"
)

// LLDP-MIB lldpRemTable columns, indexed by timeMark.localPortNum.index.
const (
	OIDLLDPRemSysDesc    = "1.0.8802.1.1.2.1.4.1.1.4"
	OIDLLDPRemPortID     = "1.0.8802.1.1.2.1.4.1.1.7"
	OIDLLDPRemPortDesc   = "1.0.8802.1.1.2.1.4.1.1.8"
	OIDLLDPRemSysName    = "1.0.8802.1.1.2.1.4.1.1.9"
	OIDLLDPRemSysCapEnab = "1.0.8802.1.1.2.1.4.1.1.12"
	OIDLLDPRemManAddr    = "1.0.8802.1.1.2.1.4.2.1.4"
)

// LLDPNeighbor is one row of a device's lldpRemTable.
type LLDPNeighbor struct {
	LocalPort      int    `json:"local_port"`
	RemoteSysName  string `json:"remote_sys_name"`
	RemoteSysDesc  string `json:"remote_sys_desc,omitempty"`
	RemotePortID   string `json:"remote_port_id,omitempty"`
	RemotePortDesc string `json:"remote_port_desc,omitempty"`
	RemoteManAddr  string `json:"remote_man_addr,omitempty"`
	CapEnabled     uint16 `json:"cap_enabled,omitempty"`
}

// walkLLDP reads the remote systems table. Agents without LLDP-MIB yield
// no neighbors, not an error.
func walkLLDP(sess snmpSession, logger *zap.Logger) []LLDPNeighbor {
	columns := []string{
		OIDLLDPRemSysDesc,
		OIDLLDPRemPortID,
		OIDLLDPRemPortDesc,
		OIDLLDPRemSysName,
		OIDLLDPRemSysCapEnab,
	}

	byKey := make(map[string]*LLDPNeighbor)
	for _, column := range columns {
		pdus, err := sess.Walk(column)
		if err != nil {
			logger.Debug("LLDP walk returned no data", zap.String("oid", column), zap.Error(err))
			continue
		}
		for _, pdu := range pdus {
			if pduMissing(pdu) {
				continue
			}
			key, localPort, ok := lldpIndex(pdu.Name, column, 3)
			if !ok {
				continue
			}
			n, exists := byKey[key]
			if !exists {
				n = &LLDPNeighbor{LocalPort: localPort}
				byKey[key] = n
			}
			switch column {
			case OIDLLDPRemSysDesc:
				n.RemoteSysDesc = parsePDUString(pdu)
			case OIDLLDPRemPortID:
				n.RemotePortID = parseLLDPPortID(pdu)
			case OIDLLDPRemPortDesc:
				n.RemotePortDesc = parsePDUString(pdu)
			case OIDLLDPRemSysName:
				n.RemoteSysName = parsePDUString(pdu)
			case OIDLLDPRemSysCapEnab:
				n.CapEnabled = parseLLDPCapBitmap(pdu)
			}
		}
	}

	// The management address is encoded in the index of lldpRemManAddrTable:
	// timeMark.localPort.index.subtype.len.addr...
	if pdus, err := sess.Walk(OIDLLDPRemManAddr); err == nil {
		for _, pdu := range pdus {
			key, _, ok := lldpIndex(pdu.Name, OIDLLDPRemManAddr, 3)
			if !ok {
				continue
			}
			if n, exists := byKey[key]; exists && n.RemoteManAddr == "" {
				n.RemoteManAddr = manAddrFromOID(pdu.Name)
			}
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]LLDPNeighbor, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

// lldpIndex splits the first n index arcs after base from oid and returns
// them joined, plus the localPortNum arc.
func lldpIndex(oid, base string, n int) (key string, localPort int, ok bool) {
	suffix, found := strings.CutPrefix(normalizeOID(oid), base+".")
	if !found {
		return "", 0, false
	}
	parts := strings.SplitN(suffix, ".", n+1)
	if len(parts) < n {
		return "", 0, false
	}
	localPort, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return strings.Join(parts[:n], "."), localPort, true
}

// manAddrFromOID decodes an IPv4 management address from the table index.
func manAddrFromOID(oid string) string {
	suffix, found := strings.CutPrefix(normalizeOID(oid), OIDLLDPRemManAddr+".")
	if !found {
		return ""
	}
	parts := strings.Split(suffix, ".")
	// timeMark.localPort.index.subtype(1).len(4).a.b.c.d
	if len(parts) < 9 || parts[3] != "1" || parts[4] != "4" {
		return ""
	}
	ip := make(net.IP, 4)
	for i := range 4 {
		v, err := strconv.Atoi(parts[5+i])
		if err != nil || v < 0 || v > 255 {
			return ""
		}
		ip[i] = byte(v) //nolint:gosec // G115: checked above
	}
	return ip.String()
}

// parseLLDPPortID formats MAC-style port IDs and passes names through.
func parseLLDPPortID(pdu gosnmp.SnmpPDU) string {
	if b, ok := pdu.Value.([]byte); ok && len(b) == 6 && !isPrintableASCII(b) {
		return formatMAC(b)
	}
	return parsePDUString(pdu)
}

// parseLLDPCapBitmap reads the two-octet capabilities BITS value.
func parseLLDPCapBitmap(pdu gosnmp.SnmpPDU) uint16 {
	switch v := pdu.Value.(type) {
	case []byte:
		switch len(v) {
		case 0:
			return 0
		case 1:
			return uint16(v[0])
		default:
			return uint16(v[0])<<8 | uint16(v[1])
		}
	case int:
		return uint16(v) //nolint:gosec // G115: bitmap fits in uint16
	default:
		return 0
	}
}

// firstLine trims a multi-line sysDescr to its first line.
func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
