package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/internal/testutil"
	"github.com/HerbHall/netsweep/pkg/models"
)

// newTestModule wires a Module over an in-memory store and a fake SNMP
// network without going through Init.
func newTestModule(t *testing.T) (*Module, *sweepFixture) {
	t.Helper()
	cfg := testConfig()
	cfg.Ranges = []string{"10.1.0.0/29"}
	f := newSweepFixture(t, cfg)
	m := &Module{
		logger:  zap.NewNop(),
		cfg:     cfg,
		store:   f.store,
		bus:     f.bus,
		sweeper: f.sweeper,
	}
	return m, f
}

func serve(t *testing.T, m *Module, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	for _, rt := range m.Routes() {
		mux.HandleFunc(rt.Method+" "+rt.Path, rt.Handler)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func seedDevice(t *testing.T, s *DiscoveryStore, opts ...func(*models.DiscoveredDevice)) models.DiscoveredDevice {
	t.Helper()
	d := testutil.NewDevice(opts...)
	if _, err := s.UpsertDevice(context.Background(), &d); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	return d
}

func TestHandleListDevices(t *testing.T) {
	m, f := newTestModule(t)
	seedDevice(t, f.store, testutil.WithIP("10.1.0.1"))
	seedDevice(t, f.store, testutil.WithIP("10.1.0.2"), testutil.WithDeviceType(models.DeviceTypeUbiquiti, "Ubiquiti"))
	seedDevice(t, f.store, testutil.WithIP("10.1.0.3"), testutil.WithStatus(models.DeviceStatusOffline))

	tests := []struct {
		name      string
		query     string
		wantTotal int
		wantLen   int
	}{
		{"all", "", 3, 3},
		{"by type", "?type=ubiquiti", 1, 1},
		{"by status", "?status=offline", 1, 1},
		{"by vendor", "?vendor=Mikrotik", 2, 2},
		{"paginated", "?limit=2&offset=2", 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, m, http.MethodGet, "/devices"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var resp DeviceListResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Total != tt.wantTotal || len(resp.Devices) != tt.wantLen {
				t.Errorf("total = %d, len = %d, want %d, %d", resp.Total, len(resp.Devices), tt.wantTotal, tt.wantLen)
			}
		})
	}
}

func TestHandleGetDevice(t *testing.T) {
	m, f := newTestModule(t)
	d := seedDevice(t, f.store)

	w := serve(t, m, http.MethodGet, "/devices/"+d.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got models.DiscoveredDevice
	_ = json.NewDecoder(w.Body).Decode(&got)
	if got.IP != d.IP {
		t.Errorf("IP = %q, want %q", got.IP, d.IP)
	}
	if got.SNMPCommunity != "" {
		t.Errorf("community leaked in response: %q", got.SNMPCommunity)
	}

	w = serve(t, m, http.MethodGet, "/devices/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
}

func TestHandleDeviceInterfaces(t *testing.T) {
	m, f := newTestModule(t)
	d := seedDevice(t, f.store)
	iface := testutil.NewInterface(d.ID, 1)
	if err := f.store.UpsertInterface(context.Background(), &iface); err != nil {
		t.Fatalf("UpsertInterface: %v", err)
	}
	rx := 1_250_000.0
	if err := f.store.UpdateInterfaceRates(context.Background(), iface.ID, InterfaceCounters{Index: 1}, &rx, nil); err != nil {
		t.Fatalf("UpdateInterfaceRates: %v", err)
	}

	w := serve(t, m, http.MethodGet, "/devices/"+d.ID+"/interfaces", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var views []InterfaceView
	if err := json.NewDecoder(w.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d interfaces, want 1", len(views))
	}
	if views[0].RxMbps == nil || *views[0].RxMbps != 10 {
		t.Errorf("RxMbps = %v, want 10", views[0].RxMbps)
	}
	if views[0].TxMbps != nil {
		t.Errorf("TxMbps = %v, want nil", *views[0].TxMbps)
	}
}

func TestHandleDeviceNeighbors(t *testing.T) {
	m, f := newTestModule(t)
	d := seedDevice(t, f.store)
	n := &models.Neighbor{
		DeviceID:        d.ID,
		Protocol:        models.DiscoveryLLDP,
		LocalInterface:  "ether1",
		RemoteName:      "tower-ap-3",
		RemoteInterface: "eth0",
		RemoteAddress:   "10.0.0.3",
	}
	if err := f.store.UpsertNeighbor(context.Background(), n); err != nil {
		t.Fatalf("UpsertNeighbor: %v", err)
	}

	w := serve(t, m, http.MethodGet, "/devices/"+d.ID+"/neighbors", nil)
	var got []models.Neighbor
	_ = json.NewDecoder(w.Body).Decode(&got)
	if len(got) != 1 || got[0].RemoteName != "tower-ap-3" {
		t.Errorf("neighbors = %+v", got)
	}
}

func TestHandleInterfaceHistory(t *testing.T) {
	m, f := newTestModule(t)
	d := seedDevice(t, f.store)
	iface := testutil.NewInterface(d.ID, 1)
	if err := f.store.UpsertInterface(context.Background(), &iface); err != nil {
		t.Fatalf("UpsertInterface: %v", err)
	}
	now := time.Now().UTC()
	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour), now.Add(-time.Minute)} {
		s := &models.TransferSample{InterfaceID: iface.ID, BytesIn: 100, SampledAt: at}
		if err := f.store.AppendSample(context.Background(), s); err != nil {
			t.Fatalf("AppendSample: %v", err)
		}
	}

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantLen    int
	}{
		{"default window", "/interfaces/" + iface.ID + "/history", http.StatusOK, 2},
		{"duration", "/interfaces/" + iface.ID + "/history?since=72h", http.StatusOK, 3},
		{"rfc3339", "/interfaces/" + iface.ID + "/history?since=" + now.Add(-30*time.Minute).Format(time.RFC3339), http.StatusOK, 1},
		{"limit", "/interfaces/" + iface.ID + "/history?since=72h&limit=1", http.StatusOK, 1},
		{"bad since", "/interfaces/" + iface.ID + "/history?since=yesterday", http.StatusBadRequest, 0},
		{"unknown interface", "/interfaces/missing/history", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, m, http.MethodGet, tt.target, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var samples []models.TransferSample
			_ = json.NewDecoder(w.Body).Decode(&samples)
			if len(samples) != tt.wantLen {
				t.Errorf("got %d samples, want %d", len(samples), tt.wantLen)
			}
		})
	}
}

func TestHandleStartSweep(t *testing.T) {
	m, f := newTestModule(t)
	f.net.add("10.1.0.5", mikrotikAgent("public"))

	w := serve(t, m, http.MethodPost, "/sweeps", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var sw models.Sweep
	if err := json.NewDecoder(w.Body).Decode(&sw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sw.ID == "" || sw.Status != models.SweepRunning || sw.HostsTotal != 6 {
		t.Errorf("sweep = %+v, want running over 6 hosts", sw)
	}

	m.wg.Wait()

	w = serve(t, m, http.MethodGet, "/sweeps/"+sw.ID, nil)
	var done models.Sweep
	_ = json.NewDecoder(w.Body).Decode(&done)
	if done.Status != models.SweepCompleted || done.Responded != 1 {
		t.Errorf("finished sweep = %+v, want completed with 1 responder", done)
	}

	w = serve(t, m, http.MethodGet, "/sweeps", nil)
	var list []models.Sweep
	_ = json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 {
		t.Errorf("got %d sweeps, want 1", len(list))
	}

	w = serve(t, m, http.MethodGet, "/log?limit=500", nil)
	var entries []models.DiscoveryLogEntry
	_ = json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) == 0 {
		t.Error("expected discovery log entries after a sweep")
	}
}

func TestHandleStartSweep_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		active     bool
		wantStatus int
	}{
		{"malformed json", "{", false, http.StatusBadRequest},
		{"range too large", `{"ranges":["10.0.0.0/8"]}`, false, http.StatusBadRequest},
		{"unsupported prefix", `{"ranges":["fe80::/64"]}`, false, http.StatusBadRequest},
		{"sweep already running", "", true, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestModule(t)
			if tt.active {
				m.sweeper.active.Store(true)
			}
			w := serve(t, m, http.MethodPost, "/sweeps", []byte(tt.body))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			m.wg.Wait()
		})
	}
}

func TestHandleStartSweep_NoRanges(t *testing.T) {
	m, _ := newTestModule(t)
	m.sweeper.ranges = nil
	w := serve(t, m, http.MethodPost, "/sweeps", []byte(`{}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleGetSweep_NotFound(t *testing.T) {
	m, _ := newTestModule(t)
	if w := serve(t, m, http.MethodGet, "/sweeps/unknown", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSweepThroughModule(t *testing.T) {
	m, f := newTestModule(t)
	a := &fakeAgent{community: "public"}
	a.set(OIDSysDescr, gosnmp.OctetString, []byte("Linux 4.14 airOS"))
	f.net.add("10.1.0.2", a)

	sw, err := m.Sweep(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if sw.Responded != 1 {
		t.Errorf("Responded = %d, want 1", sw.Responded)
	}
	devices, err := m.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceType != models.DeviceTypeUbiquiti {
		t.Errorf("devices = %+v, want one ubiquiti", devices)
	}
}
