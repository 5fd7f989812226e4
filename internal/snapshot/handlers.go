package snapshot

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/internal/server"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// handleRun exports and commits immediately. A failed git step still
// answers with the recorded deployment.
func (m *Module) handleRun(w http.ResponseWriter, r *http.Request) {
	if m.exporter == nil {
		server.WriteProblem(w, server.ProblemFor(http.StatusServiceUnavailable, "no device source configured", r.URL.Path))
		return
	}
	d, err := m.exporter.Run(r.Context())
	if errors.Is(err, ErrRunActive) {
		server.Conflict(w, err.Error(), r.URL.Path)
		return
	}
	m.setLastErr(err)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, d)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (m *Module) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	list, err := m.store.ListDeployments(r.Context(), limit)
	if err != nil {
		m.logger.Error("failed to list deployments", zap.Error(err))
		server.InternalError(w, "failed to list deployments", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
