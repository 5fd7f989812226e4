package discovery

import (
	"context"
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"
	"time"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/HerbHall/netsweep/pkg/models"
)

type tlv struct {
	tag   uint16
	value []byte
}

func mndpDatagram(seq uint16, tlvs ...tlv) []byte {
	b := make([]byte, 4, 128)
	binary.BigEndian.PutUint16(b[2:], seq)
	for _, t := range tlvs {
		b = binary.BigEndian.AppendUint16(b, t.tag)
		b = binary.BigEndian.AppendUint16(b, uint16(len(t.value))) //nolint:gosec // test values are short
		b = append(b, t.value...)
	}
	return b
}

func routerAnnouncement() []byte {
	uptime := binary.LittleEndian.AppendUint32(nil, 3600)
	return mndpDatagram(42,
		tlv{mndpTagMAC, []byte{0x48, 0x8F, 0x5A, 0x01, 0x02, 0x03}},
		tlv{mndpTagIdentity, []byte("tower-7")},
		tlv{mndpTagVersion, []byte("7.14.2 (stable)")},
		tlv{mndpTagPlatform, []byte("MikroTik")},
		tlv{mndpTagUptime, uptime},
		tlv{mndpTagSoftwareID, []byte("ABCD-1234")},
		tlv{mndpTagBoard, []byte("RB5009UG+S+")},
		tlv{99, []byte{1, 2, 3}}, // unknown tags are skipped
		tlv{mndpTagUnpack, []byte{1}},
		tlv{mndpTagInterfaceName, []byte("ether1")},
		tlv{mndpTagIPv4, []byte{10, 20, 0, 7}},
	)
}

func TestDecodeMNDP(t *testing.T) {
	p, err := DecodeMNDP(routerAnnouncement())
	if err != nil {
		t.Fatalf("DecodeMNDP() error = %v", err)
	}
	checks := []struct {
		field, got, want string
	}{
		{"MAC", p.MAC, "48:8F:5A:01:02:03"},
		{"Identity", p.Identity, "tower-7"},
		{"Version", p.Version, "7.14.2 (stable)"},
		{"Platform", p.Platform, "MikroTik"},
		{"SoftwareID", p.SoftwareID, "ABCD-1234"},
		{"Board", p.Board, "RB5009UG+S+"},
		{"InterfaceName", p.InterfaceName, "ether1"},
		{"IPv4", p.IPv4.String(), "10.20.0.7"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if p.Seq != 42 {
		t.Errorf("Seq = %d, want 42", p.Seq)
	}
	if p.Uptime != time.Hour {
		t.Errorf("Uptime = %v, want 1h", p.Uptime)
	}
	if p.Unpack != 1 {
		t.Errorf("Unpack = %d, want 1", p.Unpack)
	}
	if p.IPv6.IsValid() {
		t.Errorf("IPv6 = %v, want unset", p.IPv6)
	}
}

func TestDecodeMNDP_Errors(t *testing.T) {
	full := routerAnnouncement()
	tests := []struct {
		name    string
		b       []byte
		wantErr bool
	}{
		{"empty", nil, true},
		{"short header", []byte{0, 0}, true},
		{"discovery request", []byte{0, 0, 0, 0}, false},
		{"partial TLV header", append(mndpDatagram(1), 0, 1), true},
		{"value past end", full[:len(full)-2], true},
		{"zero-length value", mndpDatagram(1, tlv{mndpTagIdentity, nil}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMNDP(tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeMNDP() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMNDPTruncated) {
				t.Errorf("error = %v, want ErrMNDPTruncated", err)
			}
		})
	}
}

func TestDecodeMNDP_NeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(t, "datagram")
		_, _ = DecodeMNDP(b)
	})
}

func TestMNDPListener_Handle(t *testing.T) {
	s := testStore(t)
	bus := &recordingBus{}
	l := NewMNDPListener(":0", s, bus, zap.NewNop())
	ctx := context.Background()

	pkt, err := DecodeMNDP(routerAnnouncement())
	if err != nil {
		t.Fatalf("DecodeMNDP: %v", err)
	}
	if err := l.handle(ctx, pkt, netip.MustParseAddr("10.20.0.250")); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if err := l.handle(ctx, pkt, netip.MustParseAddr("10.20.0.250")); err != nil {
		t.Fatalf("second handle() error = %v", err)
	}

	d, err := s.GetDeviceByIP(ctx, "10.20.0.7")
	if err != nil {
		t.Fatalf("GetDeviceByIP: %v (advertised IPv4 should win over source)", err)
	}
	if d.DeviceType != models.DeviceTypeMikrotik || d.Vendor != "Mikrotik" {
		t.Errorf("type/vendor = %q/%q", d.DeviceType, d.Vendor)
	}
	if d.DiscoveryMethod != models.DiscoveryMNDP {
		t.Errorf("DiscoveryMethod = %q, want mndp", d.DiscoveryMethod)
	}
	if d.Model != "RB5009UG+S+" || d.OSVersion != "7.14.2" || d.Hostname != "tower-7" {
		t.Errorf("device = %+v", d)
	}
	if d.UptimeSeconds != 3600 {
		t.Errorf("UptimeSeconds = %d, want 3600", d.UptimeSeconds)
	}
	if bus.count(TopicDeviceDiscovered) != 1 || bus.count(TopicDeviceUpdated) != 1 {
		t.Errorf("events = %+v", bus.events)
	}
}

func TestMNDPListener_HandleIgnores(t *testing.T) {
	s := testStore(t)
	l := NewMNDPListener(":0", s, nil, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name string
		pkt  *MNDPPacket
		from netip.Addr
	}{
		{"discovery request", &MNDPPacket{}, netip.MustParseAddr("10.0.0.1")},
		{"no address", &MNDPPacket{Identity: "x"}, netip.Addr{}},
		{"ipv6 source only", &MNDPPacket{Identity: "x"}, netip.MustParseAddr("fe80::1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := l.handle(ctx, tt.pkt, tt.from); err != nil {
				t.Fatalf("handle() error = %v", err)
			}
		})
	}
	_, total, err := s.ListDevices(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if total != 0 {
		t.Errorf("got %d devices, want 0", total)
	}
}

func TestMNDPListener_RunStopsOnCancel(t *testing.T) {
	l := NewMNDPListener("127.0.0.1:0", testStore(t), nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
