package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HerbHall/netsweep/internal/testutil"
	"github.com/HerbHall/netsweep/pkg/models"
)

func testStore(t *testing.T) *DiscoveryStore {
	t.Helper()
	db := testutil.NewStore(t)
	if err := db.Migrate(context.Background(), "discovery", migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewDiscoveryStore(db.DB())
}

func insertDevice(t *testing.T, s *DiscoveryStore, opts ...func(*models.DiscoveredDevice)) models.DiscoveredDevice {
	t.Helper()
	d := testutil.NewDevice(opts...)
	d.ID = ""
	if _, err := s.UpsertDevice(context.Background(), &d); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	return d
}

func TestUpsertDevice_SameIPTwice(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := testutil.NewDevice(testutil.WithIP("10.0.0.1"))
	first.ID = ""
	first.LastSeen = time.Now().UTC().Add(-time.Hour)
	created, err := s.UpsertDevice(ctx, &first)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created {
		t.Error("first upsert: created = false, want true")
	}

	if _, err := s.MarkOffline(ctx, []string{first.ID}); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}

	second := models.DiscoveredDevice{
		IP:       "10.0.0.1",
		SysName:  "renamed",
		Status:   models.DeviceStatusOnline,
		LastSeen: time.Now().UTC(),
	}
	created, err = s.UpsertDevice(ctx, &second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("second upsert: created = true, want false")
	}
	if second.ID != first.ID {
		t.Errorf("ID = %s, want %s", second.ID, first.ID)
	}

	devices, total, err := s.ListDevices(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if total != 1 || len(devices) != 1 {
		t.Fatalf("got %d devices (total %d), want 1", len(devices), total)
	}
	got := devices[0]
	if got.Status != models.DeviceStatusOnline {
		t.Errorf("status = %s, want online", got.Status)
	}
	if !got.LastSeen.After(first.LastSeen) {
		t.Errorf("last_seen %v not after %v", got.LastSeen, first.LastSeen)
	}
	if !got.FirstSeen.Equal(first.FirstSeen) {
		t.Errorf("first_seen = %v, want %v", got.FirstSeen, first.FirstSeen)
	}
	if got.SysName != "renamed" {
		t.Errorf("sys_name = %q, want renamed", got.SysName)
	}
	// Empty incoming fields keep stored values.
	if got.Vendor != "Mikrotik" || got.DeviceType != models.DeviceTypeMikrotik {
		t.Errorf("vendor/type = %q/%q, want Mikrotik/mikrotik", got.Vendor, got.DeviceType)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetDevice(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetDeviceByIP(context.Background(), "10.9.9.9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDevices_NeverDeleted(t *testing.T) {
	s := testStore(t)
	d := insertDevice(t, s)
	if _, err := s.db.Exec(`DELETE FROM discovered_devices WHERE id = ?`, d.ID); err == nil {
		t.Fatal("expected delete to be rejected")
	}
	if _, err := s.GetDevice(context.Background(), d.ID); err != nil {
		t.Errorf("device gone after rejected delete: %v", err)
	}
}

func TestListDevices_FiltersAndOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	insertDevice(t, s, testutil.WithIP("10.0.0.10"))
	insertDevice(t, s, testutil.WithIP("10.0.0.9"), testutil.WithDeviceType(models.DeviceTypeUbiquiti, "Ubiquiti"))
	off := insertDevice(t, s, testutil.WithIP("10.0.0.200"))
	if _, err := s.MarkOffline(ctx, []string{off.ID}); err != nil {
		t.Fatal(err)
	}

	all, total, err := s.ListDevices(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	wantOrder := []string{"10.0.0.9", "10.0.0.10", "10.0.0.200"}
	for i, ip := range wantOrder {
		if all[i].IP != ip {
			t.Errorf("all[%d] = %s, want %s", i, all[i].IP, ip)
		}
	}

	tests := []struct {
		name string
		opts ListOptions
		want int
	}{
		{"online", ListOptions{Status: models.DeviceStatusOnline}, 2},
		{"offline", ListOptions{Status: models.DeviceStatusOffline}, 1},
		{"type", ListOptions{DeviceType: models.DeviceTypeUbiquiti}, 1},
		{"vendor case-insensitive", ListOptions{Vendor: "mikrotik"}, 2},
		{"limit", ListOptions{Limit: 1}, 1},
		{"offset", ListOptions{Limit: 10, Offset: 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := s.ListDevices(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d devices, want %d", len(got), tt.want)
			}
		})
	}
}

func TestMarkStale(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	old := insertDevice(t, s, testutil.WithIP("10.0.0.1"), testutil.WithLastSeen(time.Now().UTC().Add(-48*time.Hour)))
	insertDevice(t, s, testutil.WithIP("10.0.0.2"))

	ids, err := s.MarkStale(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("MarkStale: %v", err)
	}
	if len(ids) != 1 || ids[0] != old.ID {
		t.Fatalf("ids = %v, want [%s]", ids, old.ID)
	}
	got, _ := s.GetDevice(ctx, old.ID)
	if got.Status != models.DeviceStatusOffline {
		t.Errorf("status = %s, want offline", got.Status)
	}
}

func TestDevicesInRanges(t *testing.T) {
	s := testStore(t)
	insertDevice(t, s, testutil.WithIP("192.168.1.10"))
	insertDevice(t, s, testutil.WithIP("192.168.2.10"))

	got, err := s.DevicesInRanges(context.Background(), []string{"192.168.1.0/24"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].IP != "192.168.1.10" {
		t.Errorf("got %+v, want only 192.168.1.10", got)
	}
}

func TestUpsertInterface_KeyedOnIndex(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	d := insertDevice(t, s)

	iface := testutil.NewInterface(d.ID, 1)
	if err := s.UpsertInterface(ctx, &iface); err != nil {
		t.Fatalf("UpsertInterface: %v", err)
	}
	again := testutil.NewInterface(d.ID, 1, testutil.WithInterfaceName("sfp-sfpplus1"))
	if err := s.UpsertInterface(ctx, &again); err != nil {
		t.Fatalf("UpsertInterface again: %v", err)
	}
	if again.ID != iface.ID {
		t.Errorf("ID = %s, want %s", again.ID, iface.ID)
	}

	list, err := s.ListInterfaces(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "sfp-sfpplus1" {
		t.Fatalf("interfaces = %+v", list)
	}
	if list[0].RxRate != nil {
		t.Errorf("RxRate = %v, want nil before any rate", *list[0].RxRate)
	}
}

func TestUpsertInterface_RequiresDevice(t *testing.T) {
	s := testStore(t)
	iface := testutil.NewInterface("no-such-device", 1)
	if err := s.UpsertInterface(context.Background(), &iface); err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestUpdateInterfaceRates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	d := insertDevice(t, s)
	iface := testutil.NewInterface(d.ID, 1)
	if err := s.UpsertInterface(ctx, &iface); err != nil {
		t.Fatal(err)
	}

	in := 1250.0
	counters := InterfaceCounters{InOctets: 1 << 40, OutOctets: 42}
	if err := s.UpdateInterfaceRates(ctx, iface.ID, counters, &in, nil); err != nil {
		t.Fatalf("UpdateInterfaceRates: %v", err)
	}
	got, err := s.GetInterface(ctx, iface.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RxBytes != 1<<40 || got.TxBytes != 42 {
		t.Errorf("counters = %d/%d, want %d/42", got.RxBytes, got.TxBytes, uint64(1<<40))
	}
	if got.RxRate == nil || *got.RxRate != in {
		t.Errorf("RxRate = %v, want %v", got.RxRate, in)
	}
	if got.TxRate != nil {
		t.Errorf("TxRate = %v, want nil", *got.TxRate)
	}

	if err := s.UpdateInterfaceRates(ctx, "missing", counters, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSamples_AppendOnlyAndPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	d := insertDevice(t, s)
	iface := testutil.NewInterface(d.ID, 1)
	if err := s.UpsertInterface(ctx, &iface); err != nil {
		t.Fatal(err)
	}

	if latest, err := s.LatestSample(ctx, iface.ID); err != nil || latest != nil {
		t.Fatalf("LatestSample on empty = %v, %v; want nil, nil", latest, err)
	}

	base := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Second)
	for i := range 5 {
		sample := models.TransferSample{
			InterfaceID: iface.ID,
			BytesIn:     uint64(i * 1000),
			BytesOut:    uint64(i * 500),
			SampledAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendSample(ctx, &sample); err != nil {
			t.Fatalf("AppendSample: %v", err)
		}
	}

	latest, err := s.LatestSample(ctx, iface.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.BytesIn != 4000 {
		t.Errorf("latest BytesIn = %d, want 4000", latest.BytesIn)
	}

	recent, err := s.ListSamples(ctx, iface.ID, base, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].BytesIn != 3000 || recent[1].BytesIn != 4000 {
		t.Errorf("recent = %+v, want the last two oldest first", recent)
	}

	if _, err := s.db.Exec(`UPDATE transfer_history SET bytes_in = 0`); err == nil {
		t.Error("expected update of transfer_history to be rejected")
	}

	n, err := s.PruneSamples(ctx, base.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
}

func TestLog_AppendAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, action := range []string{"probe", "classified", "timeout"} {
		if err := s.AppendLog(ctx, &models.DiscoveryLogEntry{IP: "10.0.0.1", Action: action}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.ListLog(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Action != "timeout" {
		t.Errorf("entries = %+v, want newest first", entries)
	}
	if entries[0].Level != models.LogInfo {
		t.Errorf("level = %s, want info", entries[0].Level)
	}
}

func TestNeighbors(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	d := insertDevice(t, s)

	n := models.Neighbor{
		DeviceID:        d.ID,
		Protocol:        models.DiscoveryLLDP,
		LocalInterface:  "ether1",
		RemoteName:      "dist-sw-02",
		RemoteInterface: "ge-0/0/1",
		RemoteAddress:   "10.0.0.2",
	}
	if err := s.UpsertNeighbor(ctx, &n); err != nil {
		t.Fatal(err)
	}
	refresh := n
	refresh.ID = ""
	refresh.RemoteAddress = "10.0.0.3"
	if err := s.UpsertNeighbor(ctx, &refresh); err != nil {
		t.Fatal(err)
	}
	if refresh.ID != n.ID {
		t.Errorf("ID = %s, want %s", refresh.ID, n.ID)
	}

	list, err := s.ListNeighbors(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].RemoteAddress != "10.0.0.3" {
		t.Errorf("neighbors = %+v", list)
	}
}

func TestSweeps(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sw := models.Sweep{Ranges: []string{"10.0.0.0/24"}, HostsTotal: 254}
	if err := s.CreateSweep(ctx, &sw); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSweep(ctx, sw.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.SweepRunning || got.CompletedAt != nil {
		t.Errorf("new sweep = %+v", got)
	}

	sw.Status = models.SweepCompleted
	sw.Responded = 3
	sw.Created = 1
	if err := s.FinishSweep(ctx, &sw); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetSweep(ctx, sw.ID)
	if got.Status != models.SweepCompleted || got.Responded != 3 || got.CompletedAt == nil {
		t.Errorf("finished sweep = %+v", got)
	}
	if len(got.Ranges) != 1 || got.Ranges[0] != "10.0.0.0/24" {
		t.Errorf("ranges = %v", got.Ranges)
	}

	stuck := models.Sweep{Ranges: []string{"10.0.1.0/24"}}
	if err := s.CreateSweep(ctx, &stuck); err != nil {
		t.Fatal(err)
	}
	if n, err := s.FailInterruptedSweeps(ctx); err != nil || n != 1 {
		t.Fatalf("FailInterruptedSweeps = %d, %v; want 1, nil", n, err)
	}

	list, err := s.ListSweeps(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("got %d sweeps, want 2", len(list))
	}

	if _, err := s.GetSweep(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
