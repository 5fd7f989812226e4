package discovery

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/internal/server"
	"github.com/HerbHall/netsweep/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DeviceListResponse is the response for GET /devices.
type DeviceListResponse struct {
	Devices []models.DiscoveredDevice `json:"devices"`
	Total   int                       `json:"total"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

// InterfaceView adds display rates in Mbps to a stored interface.
type InterfaceView struct {
	models.NetworkInterface
	RxMbps *float64 `json:"rx_mbps,omitempty"`
	TxMbps *float64 `json:"tx_mbps,omitempty"`
}

// SweepRequest is the optional body of POST /sweeps. Empty ranges sweep
// the configured ranges.
type SweepRequest struct {
	Ranges []string `json:"ranges"`
}

func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := queryInt(q.Get("limit"), 100), queryInt(q.Get("offset"), 0)
	opts := ListOptions{
		Status:     models.DeviceStatus(q.Get("status")),
		DeviceType: models.DeviceType(q.Get("type")),
		Vendor:     q.Get("vendor"),
		Method:     models.DiscoveryMethod(q.Get("method")),
		Limit:      limit,
		Offset:     offset,
	}
	devices, total, err := m.store.ListDevices(r.Context(), opts)
	if err != nil {
		m.logger.Error("failed to list devices", zap.Error(err))
		server.InternalError(w, "failed to list devices", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, DeviceListResponse{Devices: devices, Total: total, Limit: limit, Offset: offset})
}

func (m *Module) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := m.deviceFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (m *Module) handleDeviceInterfaces(w http.ResponseWriter, r *http.Request) {
	dev, ok := m.deviceFromPath(w, r)
	if !ok {
		return
	}
	ifaces, err := m.store.ListInterfaces(r.Context(), dev.ID)
	if err != nil {
		m.logger.Error("failed to list interfaces", zap.String("device_id", dev.ID), zap.Error(err))
		server.InternalError(w, "failed to list interfaces", r.URL.Path)
		return
	}
	views := make([]InterfaceView, 0, len(ifaces))
	for i := range ifaces {
		views = append(views, InterfaceView{
			NetworkInterface: ifaces[i],
			RxMbps:           mbpsPtr(ifaces[i].RxRate),
			TxMbps:           mbpsPtr(ifaces[i].TxRate),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (m *Module) handleDeviceNeighbors(w http.ResponseWriter, r *http.Request) {
	dev, ok := m.deviceFromPath(w, r)
	if !ok {
		return
	}
	neighbors, err := m.store.ListNeighbors(r.Context(), dev.ID)
	if err != nil {
		m.logger.Error("failed to list neighbors", zap.String("device_id", dev.ID), zap.Error(err))
		server.InternalError(w, "failed to list neighbors", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, neighbors)
}

// handleInterfaceHistory returns transfer samples. since accepts an RFC 3339
// timestamp or a duration back from now ("24h"); the default is 24h.
func (m *Module) handleInterfaceHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := m.store.GetInterface(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			server.NotFound(w, "interface not found", r.URL.Path)
			return
		}
		m.logger.Error("failed to get interface", zap.String("interface_id", id), zap.Error(err))
		server.InternalError(w, "failed to get interface", r.URL.Path)
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := parseSince(v, time.Now().UTC())
		if err != nil {
			server.BadRequest(w, "since must be an RFC 3339 time or a duration", r.URL.Path)
			return
		}
		since = t
	}
	samples, err := m.store.ListSamples(r.Context(), id, since, queryInt(r.URL.Query().Get("limit"), 1000))
	if err != nil {
		m.logger.Error("failed to list samples", zap.String("interface_id", id), zap.Error(err))
		server.InternalError(w, "failed to list samples", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// handleStartSweep validates the request and starts a sweep in the
// background. It answers 202 with the sweep record, or 409 while another
// sweep is running.
func (m *Module) handleStartSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		server.BadRequest(w, "invalid JSON body", r.URL.Path)
		return
	}

	m.wg.Add(1)
	sw, err := m.sweeper.Launch(m.runCtx(), req.Ranges, func(_ *models.Sweep, _ error) {
		m.wg.Done()
	})
	if err != nil {
		m.wg.Done()
		switch {
		case errors.Is(err, ErrSweepActive):
			server.Conflict(w, err.Error(), r.URL.Path)
		case errors.Is(err, ErrNoRanges), errors.Is(err, ErrRangeTooLarge), errors.Is(err, ErrUnsupportedPrefix):
			server.BadRequest(w, err.Error(), r.URL.Path)
		default:
			m.logger.Error("failed to start sweep", zap.Error(err))
			server.InternalError(w, "failed to start sweep", r.URL.Path)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, sw)
}

func (m *Module) handleListSweeps(w http.ResponseWriter, r *http.Request) {
	sweeps, err := m.store.ListSweeps(r.Context(), queryInt(r.URL.Query().Get("limit"), 20))
	if err != nil {
		m.logger.Error("failed to list sweeps", zap.Error(err))
		server.InternalError(w, "failed to list sweeps", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sweeps)
}

func (m *Module) handleGetSweep(w http.ResponseWriter, r *http.Request) {
	sw, err := m.store.GetSweep(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			server.NotFound(w, "sweep not found", r.URL.Path)
			return
		}
		m.logger.Error("failed to get sweep", zap.Error(err))
		server.InternalError(w, "failed to get sweep", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sw)
}

func (m *Module) handleListLog(w http.ResponseWriter, r *http.Request) {
	entries, err := m.store.ListLog(r.Context(), queryInt(r.URL.Query().Get("limit"), 100))
	if err != nil {
		m.logger.Error("failed to list discovery log", zap.Error(err))
		server.InternalError(w, "failed to list discovery log", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (m *Module) deviceFromPath(w http.ResponseWriter, r *http.Request) (*models.DiscoveredDevice, bool) {
	id := r.PathValue("id")
	dev, err := m.store.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			server.NotFound(w, "device not found", r.URL.Path)
			return nil, false
		}
		m.logger.Error("failed to get device", zap.String("device_id", id), zap.Error(err))
		server.InternalError(w, "failed to get device", r.URL.Path)
		return nil, false
	}
	return dev, true
}

// queryInt parses a non-negative integer parameter, falling back to def.
func queryInt(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}

func mbpsPtr(bytesPerSec *float64) *float64 {
	if bytesPerSec == nil {
		return nil
	}
	v := Mbps(*bytesPerSec)
	return &v
}
