package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HerbHall/netsweep/pkg/plugin"
	"go.uber.org/zap"
)

type mockPluginSource struct {
	plugins []plugin.Plugin
	routes  map[string][]plugin.Route
	health  map[string]plugin.HealthStatus
}

func (m *mockPluginSource) AllRoutes() map[string][]plugin.Route {
	if m.routes != nil {
		return m.routes
	}
	return map[string][]plugin.Route{}
}

func (m *mockPluginSource) All() []plugin.Plugin { return m.plugins }

func (m *mockPluginSource) HealthAll(context.Context) map[string]plugin.HealthStatus {
	return m.health
}

type stubPlugin struct {
	info plugin.PluginInfo
}

func (s *stubPlugin) Info() plugin.PluginInfo                             { return s.info }
func (s *stubPlugin) Init(_ context.Context, _ plugin.Dependencies) error { return nil }
func (s *stubPlugin) Start(_ context.Context) error                       { return nil }
func (s *stubPlugin) Stop(_ context.Context) error                        { return nil }

func newTestServer(ready ReadinessChecker, src *mockPluginSource) *Server {
	if src == nil {
		src = &mockPluginSource{
			plugins: []plugin.Plugin{
				&stubPlugin{info: plugin.PluginInfo{Name: "discovery", Version: "1.0.0", Description: "SNMP discovery"}},
			},
		}
	}
	return New(Options{Addr: "127.0.0.1:0", Plugins: src, Logger: zap.NewNop(), Ready: ready})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleHealthz(t *testing.T) {
	w := get(t, newTestServer(nil, nil).mux, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "alive" {
		t.Errorf("status = %q, want %q", body["status"], "alive")
	}
}

func TestHandleReadyz(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"nil checker", nil, http.StatusOK, "ready"},
		{"healthy", func(context.Context) error { return nil }, http.StatusOK, "ready"},
		{"unhealthy", func(context.Context) error { return errors.New("database unreachable") }, http.StatusServiceUnavailable, "not ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, newTestServer(tt.ready, nil).mux, "/readyz")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			_ = json.NewDecoder(w.Body).Decode(&body)
			if body["status"] != tt.wantBody {
				t.Errorf("status = %q, want %q", body["status"], tt.wantBody)
			}
		})
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	src := &mockPluginSource{
		health: map[string]plugin.HealthStatus{
			"discovery": {Status: "healthy"},
			"snapshot":  {Status: "degraded", Message: "git push failed"},
		},
	}
	w := get(t, newTestServer(nil, src).mux, "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Service != "netsweep" {
		t.Errorf("service = %q, want netsweep", body.Service)
	}
	if body.Version["version"] == "" {
		t.Error("expected version in response")
	}
}

func TestHandlePlugins(t *testing.T) {
	w := get(t, newTestServer(nil, nil).mux, "/api/v1/plugins")
	var plugins []PluginResponse
	_ = json.NewDecoder(w.Body).Decode(&plugins)
	if len(plugins) != 1 || plugins[0].Name != "discovery" {
		t.Fatalf("plugins = %+v", plugins)
	}
}

func TestHandleMetrics(t *testing.T) {
	w := get(t, newTestServer(nil, nil).mux, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics in /metrics output")
	}
}

func TestMiddlewareChain_Integration(t *testing.T) {
	w := get(t, newTestServer(nil, nil).Handler(), "/healthz")

	checks := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	}
	for k, want := range checks {
		if got := w.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if w.Header().Get("X-Netsweep-Version") == "" {
		t.Error("expected X-Netsweep-Version header")
	}
}

func TestPluginRoutes_Mounted(t *testing.T) {
	src := &mockPluginSource{
		routes: map[string][]plugin.Route{
			"discovery": {{
				Method: http.MethodPost,
				Path:   "/sweeps",
				Handler: func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusAccepted)
				},
			}},
		},
	}
	srv := newTestServer(nil, src)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/discovery/sweeps", http.NoBody)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

type extraRoutes struct{}

func (extraRoutes) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestExtraRoutes(t *testing.T) {
	srv := New(Options{
		Addr:    "127.0.0.1:0",
		Plugins: &mockPluginSource{},
		Logger:  zap.NewNop(),
		Extra:   []RouteRegistrar{extraRoutes{}},
	})
	if w := get(t, srv.Handler(), "/ws/ping"); w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
