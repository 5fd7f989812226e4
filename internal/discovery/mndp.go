package discovery

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/pkg/models"
	"github.com/HerbHall/netsweep/pkg/plugin"
)

// MNDP TLV types.
const (
	mndpTagMAC           = 1
	mndpTagIdentity      = 5
	mndpTagVersion       = 7
	mndpTagPlatform      = 8
	mndpTagUptime        = 10
	mndpTagSoftwareID    = 11
	mndpTagBoard         = 12
	mndpTagUnpack        = 14
	mndpTagIPv6          = 15
	mndpTagInterfaceName = 16
	mndpTagIPv4          = 17
)

const mndpHeaderLen = 4

// ErrMNDPTruncated is returned for datagrams shorter than their headers claim.
var ErrMNDPTruncated = errors.New("truncated MNDP packet")

// MNDPPacket is one decoded MikroTik Neighbor Discovery announcement.
type MNDPPacket struct {
	Seq           uint16        `json:"seq"`
	MAC           string        `json:"mac,omitempty"`
	Identity      string        `json:"identity,omitempty"`
	Version       string        `json:"version,omitempty"`
	Platform      string        `json:"platform,omitempty"`
	Uptime        time.Duration `json:"uptime"`
	SoftwareID    string        `json:"software_id,omitempty"`
	Board         string        `json:"board,omitempty"`
	Unpack        uint8         `json:"unpack,omitempty"`
	IPv6          netip.Addr    `json:"ipv6,omitzero"`
	InterfaceName string        `json:"interface_name,omitempty"`
	IPv4          netip.Addr    `json:"ipv4,omitzero"`
}

// DecodeMNDP parses an MNDP datagram: a 4-byte header (type, sequence)
// followed by big-endian type/length TLVs. Unknown TLVs are skipped.
// A bare header is a discovery request and decodes to an empty packet.
func DecodeMNDP(b []byte) (*MNDPPacket, error) {
	if len(b) < mndpHeaderLen {
		return nil, fmt.Errorf("%w: %d byte header", ErrMNDPTruncated, len(b))
	}
	p := &MNDPPacket{Seq: binary.BigEndian.Uint16(b[2:4])}

	for off := mndpHeaderLen; off < len(b); {
		if len(b)-off < 4 {
			return nil, fmt.Errorf("%w: TLV header at offset %d", ErrMNDPTruncated, off)
		}
		tag := binary.BigEndian.Uint16(b[off : off+2])
		n := int(binary.BigEndian.Uint16(b[off+2 : off+4]))
		off += 4
		if len(b)-off < n {
			return nil, fmt.Errorf("%w: TLV %d wants %d bytes, %d left", ErrMNDPTruncated, tag, n, len(b)-off)
		}
		v := b[off : off+n]
		off += n

		switch tag {
		case mndpTagMAC:
			p.MAC = formatMAC(v)
		case mndpTagIdentity:
			p.Identity = string(v)
		case mndpTagVersion:
			p.Version = string(v)
		case mndpTagPlatform:
			p.Platform = string(v)
		case mndpTagUptime:
			if len(v) == 4 {
				p.Uptime = time.Duration(binary.LittleEndian.Uint32(v)) * time.Second
			}
		case mndpTagSoftwareID:
			p.SoftwareID = string(v)
		case mndpTagBoard:
			p.Board = string(v)
		case mndpTagUnpack:
			if len(v) == 1 {
				p.Unpack = v[0]
			}
		case mndpTagIPv6:
			if addr, ok := netip.AddrFromSlice(v); ok && addr.Is6() {
				p.IPv6 = addr
			}
		case mndpTagInterfaceName:
			p.InterfaceName = string(v)
		case mndpTagIPv4:
			if addr, ok := netip.AddrFromSlice(v); ok && addr.Is4() {
				p.IPv4 = addr
			}
		}
	}
	return p, nil
}

// MNDPListener upserts devices from MNDP announcements heard on UDP 5678.
type MNDPListener struct {
	addr   string
	store  *DiscoveryStore
	events emitter
	logger *zap.Logger
	now    func() time.Time
}

// NewMNDPListener creates a listener bound to addr when Run is called.
func NewMNDPListener(addr string, store *DiscoveryStore, bus plugin.EventBus, logger *zap.Logger) *MNDPListener {
	return &MNDPListener{
		addr:   addr,
		store:  store,
		events: emitter{bus: bus},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run reads datagrams until ctx is cancelled. It returns an error only when
// the socket cannot be opened or fails unexpectedly.
func (l *MNDPListener) Run(ctx context.Context) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", l.addr)
	if err != nil {
		return fmt.Errorf("listen MNDP on %s: %w", l.addr, err)
	}
	l.logger.Info("MNDP listener started", zap.String("addr", conn.LocalAddr().String()))

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, 1500)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read MNDP: %w", err)
		}
		pkt, err := DecodeMNDP(buf[:n])
		if err != nil {
			mndpPackets.WithLabelValues("invalid").Inc()
			l.logger.Debug("dropping MNDP datagram", zap.Stringer("src", src), zap.Error(err))
			continue
		}
		mndpPackets.WithLabelValues("ok").Inc()

		var from netip.Addr
		if ua, ok := src.(*net.UDPAddr); ok {
			from, _ = netip.AddrFromSlice(ua.IP)
			from = from.Unmap()
		}
		if err := l.handle(ctx, pkt, from); err != nil {
			l.logger.Warn("failed to record MNDP neighbor", zap.Stringer("src", src), zap.Error(err))
		}
	}
}

// handle upserts the announcing device. Requests without identity or MAC
// are ignored. The advertised IPv4 address wins over the datagram source.
func (l *MNDPListener) handle(ctx context.Context, pkt *MNDPPacket, from netip.Addr) error {
	if pkt.Identity == "" && pkt.MAC == "" {
		return nil
	}
	ip := pkt.IPv4
	if !ip.IsValid() {
		ip = from
	}
	if !ip.IsValid() || !ip.Is4() {
		return nil
	}

	dev := &models.DiscoveredDevice{
		IP:              ip.String(),
		Hostname:        pkt.Identity,
		MAC:             pkt.MAC,
		Model:           pkt.Board,
		OSVersion:       firstField(pkt.Version),
		SysName:         pkt.Identity,
		UptimeSeconds:   int64(pkt.Uptime / time.Second),
		Status:          models.DeviceStatusOnline,
		DiscoveryMethod: models.DiscoveryMNDP,
		LastSeen:        l.now(),
	}
	if strings.EqualFold(pkt.Platform, "MikroTik") || pkt.Platform == "" {
		dev.DeviceType = models.DeviceTypeMikrotik
		dev.Vendor = "Mikrotik"
	} else {
		dev.DeviceType = models.DeviceTypeUnknown
		dev.Vendor = pkt.Platform
	}

	created, err := l.store.UpsertDevice(ctx, dev)
	if err != nil {
		return err
	}
	if created {
		l.logger.Info("device discovered via MNDP",
			zap.String("ip", dev.IP),
			zap.String("identity", pkt.Identity),
			zap.String("board", pkt.Board),
		)
		_ = l.store.AppendLog(ctx, &models.DiscoveryLogEntry{
			IP:      dev.IP,
			Level:   models.LogInfo,
			Action:  "mndp_discovered",
			Message: fmt.Sprintf("%s %s on %s", pkt.Identity, pkt.Board, pkt.InterfaceName),
		})
		l.events.publish(ctx, TopicDeviceDiscovered, DeviceEvent{Device: dev})
	} else {
		l.events.publish(ctx, TopicDeviceUpdated, DeviceEvent{Device: dev})
	}
	return nil
}

// firstField returns "7.14.2" from "7.14.2 (stable)".
func firstField(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}
