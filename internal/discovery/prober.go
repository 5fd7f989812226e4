package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoResponse means no credential got an answer for sysDescr before the
// timeout. Transport failures are reported as other errors.
var ErrNoResponse = errors.New("no SNMP response")

// ProbeResult is everything learned about one responding host.
type ProbeResult struct {
	Addr       netip.Addr          `json:"addr"`
	Community  string              `json:"-"`
	System     SystemInfo          `json:"system"`
	Interfaces []InterfaceCounters `json:"interfaces"`
	Neighbors  []LLDPNeighbor      `json:"neighbors,omitempty"`
	Hostname   string              `json:"hostname,omitempty"`
	MAC        string              `json:"mac,omitempty"`
	RTT        time.Duration       `json:"rtt"`
}

// Prober queries hosts over SNMP.
type Prober interface {
	// Probe identifies a host, trying each configured credential in order.
	Probe(ctx context.Context, addr netip.Addr) (*ProbeResult, error)
	// Poll reads interface counters using the community the host answered to.
	Poll(ctx context.Context, addr netip.Addr, community string) ([]InterfaceCounters, error)
}

// addrResolver is satisfied by *net.Resolver.
type addrResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// SNMPProber is the gosnmp-backed Prober.
type SNMPProber struct {
	creds      []Credential
	port       uint16
	timeout    time.Duration
	retries    int
	lldp       bool
	reverseDNS bool
	limiter    *rate.Limiter
	resolver   addrResolver
	dial       dialFunc
	logger     *zap.Logger
}

// NewSNMPProber creates a prober from the module configuration. All probes
// made through it share one request rate limit.
func NewSNMPProber(cfg Config, logger *zap.Logger) *SNMPProber {
	limit := rate.Inf
	if cfg.SNMPRateLimit > 0 {
		limit = rate.Limit(cfg.SNMPRateLimit)
	}
	return &SNMPProber{
		creds:      cfg.Credentials(),
		port:       uint16(cfg.SNMPPort), //nolint:gosec // G115: validated <= 65535
		timeout:    cfg.SNMPTimeout,
		retries:    cfg.SNMPRetries,
		lldp:       cfg.LLDPEnabled,
		reverseDNS: cfg.ReverseDNS,
		limiter:    rate.NewLimiter(limit, max(cfg.SNMPRateLimit/10, 1)),
		resolver:   net.DefaultResolver,
		dial:       dialGoSNMP,
		logger:     logger,
	}
}

// Probe tries each credential until one answers the system group, then
// walks the interface tables and, when enabled, the LLDP remote table.
func (p *SNMPProber) Probe(ctx context.Context, addr netip.Addr) (*ProbeResult, error) {
	var lastErr error
	for _, cred := range p.creds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.probeWith(ctx, addr, cred)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrNoResponse) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no credentials configured", ErrNoResponse)
	}
	return nil, lastErr
}

func (p *SNMPProber) probeWith(ctx context.Context, addr netip.Addr, cred Credential) (*ProbeResult, error) {
	sess, err := p.open(ctx, addr, cred)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	start := time.Now()
	pkt, err := sess.Get(systemOIDs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w from %s: %v", ErrNoResponse, addr, err)
	}
	rtt := time.Since(start)

	sys := parseSystem(pkt.Variables)
	if sys.Descr == "" && sys.ObjectID == "" {
		return nil, fmt.Errorf("%w from %s: empty system group", ErrNoResponse, addr)
	}

	res := &ProbeResult{
		Addr:      addr,
		Community: cred.Community,
		System:    sys,
		RTT:       rtt,
	}

	res.Interfaces, err = p.walkInterfaces(ctx, sess)
	if err != nil {
		p.logger.Debug("interface walk failed, continuing with system info only",
			zap.String("addr", addr.String()), zap.Error(err))
	}
	res.MAC = firstMAC(res.Interfaces)

	if p.lldp && p.wait(ctx) == nil {
		res.Neighbors = walkLLDP(sess, p.logger)
	}

	res.Hostname = sys.Name
	if p.reverseDNS {
		if name := p.lookupName(ctx, addr); name != "" {
			res.Hostname = name
		}
	}
	return res, nil
}

// Poll walks the interface tables only.
func (p *SNMPProber) Poll(ctx context.Context, addr netip.Addr, community string) ([]InterfaceCounters, error) {
	cred := p.pollCredential(community)
	sess, err := p.open(ctx, addr, cred)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	counters, err := p.walkInterfaces(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w from %s: %v", ErrNoResponse, addr, err)
	}
	return counters, nil
}

// pollCredential picks the v3 credential when configured, else builds a
// community credential for the stored community.
func (p *SNMPProber) pollCredential(community string) Credential {
	for _, c := range p.creds {
		if c.Version == "v3" {
			return c
		}
		if c.Community == community {
			return c
		}
	}
	version := "v2c"
	if len(p.creds) > 0 {
		version = p.creds[0].Version
	}
	return Credential{Version: version, Community: community}
}

func (p *SNMPProber) open(ctx context.Context, addr netip.Addr, cred Credential) (snmpSession, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	sess, err := p.dial(ctx, addr.String(), p.port, cred, p.timeout, p.retries)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if p.limiter == nil {
		return sess, nil
	}
	return &pacedSession{snmpSession: sess, ctx: ctx, limiter: p.limiter}, nil
}

func (p *SNMPProber) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func (p *SNMPProber) walkInterfaces(ctx context.Context, sess snmpSession) ([]InterfaceCounters, error) {
	ifTable, err := sess.Walk(OIDIfTable)
	if err != nil {
		return nil, fmt.Errorf("walk ifTable: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// v1 agents and some embedded stacks have no ifXTable; 32-bit counters stay.
	ifXTable, err := sess.Walk(OIDIfXTable)
	if err != nil {
		p.logger.Debug("ifXTable walk failed, using 32-bit counters", zap.Error(err))
		ifXTable = nil
	}
	return mergeInterfaces(ifTable, ifXTable), nil
}

func (p *SNMPProber) lookupName(ctx context.Context, addr netip.Addr) string {
	names, err := p.resolver.LookupAddr(ctx, addr.String())
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// pacedSession takes a limiter token before every request.
type pacedSession struct {
	snmpSession
	ctx     context.Context
	limiter *rate.Limiter
}

func (s *pacedSession) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	if err := s.limiter.Wait(s.ctx); err != nil {
		return nil, err
	}
	return s.snmpSession.Get(oids)
}

func (s *pacedSession) Walk(rootOID string) ([]gosnmp.SnmpPDU, error) {
	if err := s.limiter.Wait(s.ctx); err != nil {
		return nil, err
	}
	return s.snmpSession.Walk(rootOID)
}
