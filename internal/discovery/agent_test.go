package discovery

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
)

var errRequestTimeout = errors.New("request timeout (after 1 retries)")

// fakeAgent answers from a flat OID map for one accepted community.
type fakeAgent struct {
	community string
	oids      map[string]gosnmp.SnmpPDU
	walkErr   map[string]error
}

func (a *fakeAgent) set(oid string, typ gosnmp.Asn1BER, value any) *fakeAgent {
	if a.oids == nil {
		a.oids = make(map[string]gosnmp.SnmpPDU)
	}
	a.oids[oid] = gosnmp.SnmpPDU{Name: "." + oid, Type: typ, Value: value}
	return a
}

// fakeNetwork routes dials to agents by host. Unknown hosts and wrong
// communities time out like a silent UDP peer.
type fakeNetwork struct {
	mu      sync.Mutex
	agents  map[string]*fakeAgent
	dialErr map[string]error
	dials   []string // host/community in dial order
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{agents: make(map[string]*fakeAgent), dialErr: make(map[string]error)}
}

func (n *fakeNetwork) add(host string, a *fakeAgent) { n.agents[host] = a }

func (n *fakeNetwork) dial(_ context.Context, host string, _ uint16, cred Credential, _ time.Duration, _ int) (snmpSession, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials = append(n.dials, host+"/"+cred.Community)
	if err := n.dialErr[host]; err != nil {
		return nil, err
	}
	a := n.agents[host]
	if a == nil || (cred.Version != "v3" && cred.Community != a.community) {
		return &fakeSession{}, nil
	}
	return &fakeSession{agent: a}, nil
}

func (n *fakeNetwork) dialCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dials)
}

type fakeSession struct {
	agent *fakeAgent
}

func (s *fakeSession) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	if s.agent == nil {
		return nil, errRequestTimeout
	}
	pkt := &gosnmp.SnmpPacket{}
	for _, oid := range oids {
		pdu, ok := s.agent.oids[oid]
		if !ok {
			pdu = gosnmp.SnmpPDU{Name: "." + oid, Type: gosnmp.NoSuchObject}
		}
		pkt.Variables = append(pkt.Variables, pdu)
	}
	return pkt, nil
}

func (s *fakeSession) Walk(root string) ([]gosnmp.SnmpPDU, error) {
	if s.agent == nil {
		return nil, errRequestTimeout
	}
	if err := s.agent.walkErr[root]; err != nil {
		return nil, err
	}
	var out []gosnmp.SnmpPDU
	for oid, pdu := range s.agent.oids {
		if strings.HasPrefix(oid, root+".") {
			out = append(out, pdu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeSession) Close() error { return nil }

// mikrotikAgent is a RouterOS box with two ethernet ports and one LLDP
// neighbor on ether1.
func mikrotikAgent(community string) *fakeAgent {
	a := &fakeAgent{community: community}
	a.set(OIDSysDescr, gosnmp.OctetString, []byte("RouterOS CCR1036-8G-2S+")).
		set(OIDSysObjectID, gosnmp.ObjectIdentifier, ".1.3.6.1.4.1.14988.1").
		set(OIDSysUpTime, gosnmp.TimeTicks, uint32(8640000)).
		set(OIDSysName, gosnmp.OctetString, []byte("core-rtr")).
		set(OIDSysLocation, gosnmp.OctetString, []byte("POP-1"))

	for _, p := range []struct {
		idx       string
		name      string
		mac       []byte
		in, out   uint64
		operState int
	}{
		{"1", "ether1", []byte{0x4C, 0x5E, 0x0C, 0x11, 0x22, 0x33}, 5_000_000_000, 7_000_000_000, 1},
		{"2", "sfp1", []byte{0x4C, 0x5E, 0x0C, 0x11, 0x22, 0x34}, 100, 200, 2},
	} {
		a.set(OIDIfDescr+"."+p.idx, gosnmp.OctetString, []byte(p.name)).
			set(OIDIfType+"."+p.idx, gosnmp.Integer, 6).
			set(OIDIfSpeed+"."+p.idx, gosnmp.Gauge32, uint(1_000_000_000)).
			set(OIDIfPhysAddress+"."+p.idx, gosnmp.OctetString, p.mac).
			set(OIDIfAdminStatus+"."+p.idx, gosnmp.Integer, 1).
			set(OIDIfOperStatus+"."+p.idx, gosnmp.Integer, p.operState).
			set(OIDIfInOctets+"."+p.idx, gosnmp.Counter32, uint(p.in%(1<<32))).
			set(OIDIfOutOctets+"."+p.idx, gosnmp.Counter32, uint(p.out%(1<<32))).
			set(OIDIfName+"."+p.idx, gosnmp.OctetString, []byte(p.name)).
			set(OIDIfHCInOctets+"."+p.idx, gosnmp.Counter64, p.in).
			set(OIDIfHCOutOctets+"."+p.idx, gosnmp.Counter64, p.out).
			set(OIDIfHighSpeed+"."+p.idx, gosnmp.Gauge32, uint(1000))
	}

	a.set(OIDLLDPRemSysName+".0.1.1", gosnmp.OctetString, []byte("tower-ap-3")).
		set(OIDLLDPRemPortID+".0.1.1", gosnmp.OctetString, []byte("eth0")).
		set(OIDLLDPRemSysDesc+".0.1.1", gosnmp.OctetString, []byte("Linux 4.14 airOS")).
		set(OIDLLDPRemManAddr+".0.1.1.1.4.10.0.0.3", gosnmp.Integer, 2)
	return a
}
