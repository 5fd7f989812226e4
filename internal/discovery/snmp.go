package discovery

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Credential selects the SNMP version and authentication for one attempt.
type Credential struct {
	Version string // "v1", "v2c" or "v3"

	Community string

	Username       string
	AuthProtocol   string // "MD5", "SHA", "SHA-256", ...
	AuthPassphrase string
	PrivProtocol   string // "DES", "AES", "AES-256", ...
	PrivPassphrase string
}

// SystemInfo is the SNMPv2-MIB system group of one agent.
type SystemInfo struct {
	Descr    string        `json:"descr"`
	ObjectID string        `json:"object_id"`
	UpTime   time.Duration `json:"uptime"`
	Contact  string        `json:"contact,omitempty"`
	Name     string        `json:"name,omitempty"`
	Location string        `json:"location,omitempty"`
}

// InterfaceCounters is one row of ifTable merged with its ifXTable row.
// HighCapacity is set when the octet counters came from the 64-bit columns.
type InterfaceCounters struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	Descr        string `json:"descr"`
	Type         int    `json:"type"`
	Speed        uint64 `json:"speed"`
	AdminStatus  int    `json:"admin_status"`
	OperStatus   int    `json:"oper_status"`
	PhysAddr     string `json:"phys_addr,omitempty"`
	InOctets     uint64 `json:"in_octets"`
	OutOctets    uint64 `json:"out_octets"`
	InPackets    uint64 `json:"in_packets"`
	OutPackets   uint64 `json:"out_packets"`
	InErrors     uint64 `json:"in_errors"`
	OutErrors    uint64 `json:"out_errors"`
	HighCapacity bool   `json:"high_capacity"`
}

// snmpSession is the subset of gosnmp the prober needs.
type snmpSession interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(rootOID string) ([]gosnmp.SnmpPDU, error)
	Close() error
}

// dialFunc opens a session to host:port. The session is bound to ctx.
type dialFunc func(ctx context.Context, host string, port uint16, cred Credential, timeout time.Duration, retries int) (snmpSession, error)

type goSNMPSession struct {
	g *gosnmp.GoSNMP
}

func (s *goSNMPSession) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return s.g.Get(oids)
}

// Walk uses GETBULK except on v1, which only has GETNEXT.
func (s *goSNMPSession) Walk(rootOID string) ([]gosnmp.SnmpPDU, error) {
	if s.g.Version == gosnmp.Version1 {
		return s.g.WalkAll(rootOID)
	}
	return s.g.BulkWalkAll(rootOID)
}

func (s *goSNMPSession) Close() error {
	if s.g.Conn == nil {
		return nil
	}
	return s.g.Conn.Close()
}

func dialGoSNMP(ctx context.Context, host string, port uint16, cred Credential, timeout time.Duration, retries int) (snmpSession, error) {
	g, err := newGoSNMP(host, port, cred)
	if err != nil {
		return nil, err
	}
	g.Context = ctx
	g.Timeout = timeout
	g.Retries = retries
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", host, err)
	}
	return &goSNMPSession{g: g}, nil
}

// newGoSNMP builds an unconnected GoSNMP for the given credential.
func newGoSNMP(host string, port uint16, cred Credential) (*gosnmp.GoSNMP, error) {
	if port == 0 {
		port = 161
	}
	g := &gosnmp.GoSNMP{
		Target:         host,
		Port:           port,
		Timeout:        2 * time.Second,
		Retries:        1,
		MaxOids:        gosnmp.MaxOids,
		MaxRepetitions: 25,
	}

	switch cred.Version {
	case "v1":
		g.Version = gosnmp.Version1
		g.Community = cred.Community
	case "v2c", "":
		g.Version = gosnmp.Version2c
		g.Community = cred.Community
	case "v3":
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		switch {
		case cred.AuthPassphrase != "" && cred.PrivPassphrase != "":
			g.MsgFlags = gosnmp.AuthPriv
		case cred.AuthPassphrase != "":
			g.MsgFlags = gosnmp.AuthNoPriv
		default:
			g.MsgFlags = gosnmp.NoAuthNoPriv
		}
		params := &gosnmp.UsmSecurityParameters{UserName: cred.Username}
		if cred.AuthPassphrase != "" {
			params.AuthenticationProtocol = mapAuthProtocol(cred.AuthProtocol)
			params.AuthenticationPassphrase = cred.AuthPassphrase
		}
		if cred.PrivPassphrase != "" {
			params.PrivacyProtocol = mapPrivProtocol(cred.PrivProtocol)
			params.PrivacyPassphrase = cred.PrivPassphrase
		}
		g.SecurityParameters = params
	default:
		return nil, fmt.Errorf("unsupported SNMP version: %s", cred.Version)
	}
	return g, nil
}

func mapAuthProtocol(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(s) {
	case "MD5":
		return gosnmp.MD5
	case "SHA-224", "SHA224":
		return gosnmp.SHA224
	case "SHA-256", "SHA256":
		return gosnmp.SHA256
	case "SHA-384", "SHA384":
		return gosnmp.SHA384
	case "SHA-512", "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.SHA
	}
}

func mapPrivProtocol(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(s) {
	case "DES":
		return gosnmp.DES
	case "AES-192", "AES192":
		return gosnmp.AES192
	case "AES-256", "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.AES
	}
}

// systemOIDs are fetched in a single GET.
var systemOIDs = []string{
	OIDSysDescr,
	OIDSysObjectID,
	OIDSysUpTime,
	OIDSysContact,
	OIDSysName,
	OIDSysLocation,
}

// parseSystem fills a SystemInfo from a GET response. Missing objects stay zero.
func parseSystem(pdus []gosnmp.SnmpPDU) SystemInfo {
	var info SystemInfo
	for _, pdu := range pdus {
		if pduMissing(pdu) {
			continue
		}
		switch normalizeOID(pdu.Name) {
		case OIDSysDescr:
			info.Descr = strings.TrimSpace(parsePDUString(pdu))
		case OIDSysObjectID:
			info.ObjectID = normalizeOID(parsePDUString(pdu))
		case OIDSysUpTime:
			info.UpTime = parsePDUUpTime(pdu)
		case OIDSysContact:
			info.Contact = parsePDUString(pdu)
		case OIDSysName:
			info.Name = parsePDUString(pdu)
		case OIDSysLocation:
			info.Location = parsePDUString(pdu)
		}
	}
	return info
}

// mergeInterfaces groups ifTable and ifXTable walk results by ifIndex.
// 64-bit HC octet counters replace the 32-bit ones when the agent has them;
// ifHighSpeed (Mbps) replaces ifSpeed when ifSpeed is absent or saturated.
func mergeInterfaces(ifTable, ifXTable []gosnmp.SnmpPDU) []InterfaceCounters {
	byIndex := make(map[int]*InterfaceCounters)
	row := func(idx int) *InterfaceCounters {
		r, ok := byIndex[idx]
		if !ok {
			r = &InterfaceCounters{Index: idx}
			byIndex[idx] = r
		}
		return r
	}

	for _, pdu := range ifTable {
		idx := extractOIDIndex(pdu.Name)
		if idx < 0 || pduMissing(pdu) {
			continue
		}
		r := row(idx)
		switch extractOIDPrefix(normalizeOID(pdu.Name)) {
		case OIDIfDescr:
			r.Descr = parsePDUString(pdu)
		case OIDIfType:
			r.Type = parsePDUInt(pdu)
		case OIDIfSpeed:
			r.Speed = parsePDUUint64(pdu)
		case OIDIfPhysAddress:
			if b, ok := pdu.Value.([]byte); ok {
				r.PhysAddr = formatMAC(b)
			}
		case OIDIfAdminStatus:
			r.AdminStatus = parsePDUInt(pdu)
		case OIDIfOperStatus:
			r.OperStatus = parsePDUInt(pdu)
		case OIDIfInOctets:
			r.InOctets = parsePDUUint64(pdu)
		case OIDIfOutOctets:
			r.OutOctets = parsePDUUint64(pdu)
		case OIDIfInUcastPkts:
			r.InPackets = parsePDUUint64(pdu)
		case OIDIfOutUcast:
			r.OutPackets = parsePDUUint64(pdu)
		case OIDIfInErrors:
			r.InErrors = parsePDUUint64(pdu)
		case OIDIfOutErrors:
			r.OutErrors = parsePDUUint64(pdu)
		}
	}

	for _, pdu := range ifXTable {
		idx := extractOIDIndex(pdu.Name)
		if idx < 0 || pduMissing(pdu) {
			continue
		}
		r := row(idx)
		switch extractOIDPrefix(normalizeOID(pdu.Name)) {
		case OIDIfName:
			r.Name = parsePDUString(pdu)
		case OIDIfHCInOctets:
			r.InOctets = parsePDUUint64(pdu)
			r.HighCapacity = true
		case OIDIfHCOutOctets:
			r.OutOctets = parsePDUUint64(pdu)
			r.HighCapacity = true
		case OIDIfHCInUcastPkts:
			r.InPackets = parsePDUUint64(pdu)
		case OIDIfHCOutUcastPkts:
			r.OutPackets = parsePDUUint64(pdu)
		case OIDIfHighSpeed:
			if mbps := parsePDUUint64(pdu); mbps > 0 && (r.Speed == 0 || r.Speed >= math.MaxUint32) {
				r.Speed = mbps * 1_000_000
			}
		}
	}

	out := make([]InterfaceCounters, 0, len(byIndex))
	for _, r := range byIndex {
		if r.Name == "" {
			r.Name = r.Descr
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// firstMAC returns the first non-loopback, non-zero interface MAC.
func firstMAC(ifaces []InterfaceCounters) string {
	for i := range ifaces {
		// ifType 24 = softwareLoopback.
		if ifaces[i].Type == 24 {
			continue
		}
		if ifaces[i].PhysAddr != "" && ifaces[i].PhysAddr != "00:00:00:00:00:00" {
			return ifaces[i].PhysAddr
		}
	}
	return ""
}

func pduMissing(pdu gosnmp.SnmpPDU) bool {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return true
	}
	return false
}

// normalizeOID strips the leading dot gosnmp puts on returned names.
func normalizeOID(oid string) string {
	return strings.TrimPrefix(oid, ".")
}

func formatMAC(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}

func parsePDUString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// parsePDUUpTime converts TimeTicks (hundredths of a second).
func parsePDUUpTime(pdu gosnmp.SnmpPDU) time.Duration {
	switch v := pdu.Value.(type) {
	case uint32:
		return time.Duration(v) * 10 * time.Millisecond
	case uint:
		return time.Duration(int64(v)) * 10 * time.Millisecond //nolint:gosec // G115: TimeTicks fits in int64
	case int:
		return time.Duration(v) * 10 * time.Millisecond
	default:
		return 0
	}
}

func parsePDUInt(pdu gosnmp.SnmpPDU) int {
	switch v := pdu.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint:
		return int(v) //nolint:gosec // G115: ifIndex/ifType fit in int
	case uint32:
		return int(v)
	case uint64:
		return int(v) //nolint:gosec // G115: ifIndex/ifType fit in int
	default:
		return 0
	}
}

// parsePDUUint64 handles Counter32, Gauge32 and Counter64 alike.
func parsePDUUint64(pdu gosnmp.SnmpPDU) uint64 {
	switch pdu.Value.(type) {
	case int, int64, uint, uint32, uint64:
		return gosnmp.ToBigInt(pdu.Value).Uint64()
	default:
		return 0
	}
}

// extractOIDIndex returns the last numeric arc of oid, or -1.
func extractOIDIndex(oid string) int {
	lastDot := strings.LastIndex(oid, ".")
	if lastDot < 0 || lastDot == len(oid)-1 {
		return -1
	}
	idx, err := strconv.Atoi(oid[lastDot+1:])
	if err != nil {
		return -1
	}
	return idx
}

// extractOIDPrefix returns oid without its last arc.
func extractOIDPrefix(oid string) string {
	lastDot := strings.LastIndex(oid, ".")
	if lastDot < 0 {
		return oid
	}
	return oid[:lastDot]
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return len(b) > 0
}
