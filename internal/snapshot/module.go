// Package snapshot exports the discovered inventory as JSON and Markdown
// into a git repository on a cron schedule, recording each commit.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// Module implements the snapshot plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	store    *Store
	bus      plugin.EventBus
	source   DeviceSource
	exporter *Exporter
	cron     *cron.Cron

	mu      sync.Mutex
	lastErr error
}

// New creates a snapshot plugin instance. source provides the inventory;
// when nil, Init looks it up among the plugins filling the discovery role.
func New(source DeviceSource) *Module {
	return &Module{source: source}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "snapshot",
		Version:      "1.0.0",
		Description:  "Inventory snapshots committed to git",
		Dependencies: []string{"discovery"},
		Roles:        []string{"exporter"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	if deps.Store == nil {
		return errors.New("snapshot requires a store")
	}
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.cfg = LoadConfig(deps.Config)

	if err := deps.Store.Migrate(ctx, "snapshot", migrations()); err != nil {
		return fmt.Errorf("snapshot migrations: %w", err)
	}
	m.store = NewStore(deps.Store.DB())
	if m.source == nil && deps.Plugins != nil {
		m.source = resolveSource(deps.Plugins)
	}
	if m.source != nil {
		m.exporter = NewExporter(m.source, m.store, m.bus, m.cfg, m.logger)
	}

	m.logger.Info("snapshot module initialized",
		zap.Bool("enabled", m.cfg.Enabled),
		zap.String("repo_path", m.cfg.RepoPath),
		zap.String("schedule", m.cfg.Schedule),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.cfg.Enabled && m.source == nil {
		return errors.New("snapshot enabled without a device source")
	}
	return m.cfg.Validate()
}

// Start schedules exports when the module is enabled.
func (m *Module) Start(_ context.Context) error {
	if !m.cfg.Enabled || m.exporter == nil {
		m.logger.Info("snapshot module started, scheduling disabled")
		return nil
	}
	c := cron.New(cron.WithLogger(cronLogger{m.logger}))
	if _, err := c.AddFunc(m.cfg.Schedule, m.scheduledRun); err != nil {
		return fmt.Errorf("schedule %q: %w", m.cfg.Schedule, err)
	}
	c.Start()
	m.cron = c
	m.logger.Info("snapshot module started", zap.String("schedule", m.cfg.Schedule))
	return nil
}

// Stop halts the schedule and waits for a running export to finish.
func (m *Module) Stop(ctx context.Context) error {
	if m.cron != nil {
		select {
		case <-m.cron.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		m.cron = nil
	}
	m.logger.Info("snapshot module stopped")
	return nil
}

func (m *Module) scheduledRun() {
	_, err := m.exporter.Run(context.Background())
	if errors.Is(err, ErrRunActive) {
		m.logger.Debug("skipping scheduled snapshot, run in progress")
		return
	}
	m.setLastErr(err)
}

func (m *Module) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/run", Handler: m.handleRun},
		{Method: "GET", Path: "/deployments", Handler: m.handleListDeployments},
	}
}

// Health implements plugin.HealthChecker. The module is degraded when the
// most recent run failed.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	m.mu.Lock()
	err := m.lastErr
	m.mu.Unlock()

	details := map[string]string{
		"enabled": strconv.FormatBool(m.cfg.Enabled),
		"push":    strconv.FormatBool(m.cfg.Push),
	}
	if err != nil {
		return plugin.HealthStatus{Status: "degraded", Message: err.Error(), Details: details}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// cronLogger routes cron's own messages into zap.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug(msg, zap.Any("cron", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, zap.Error(err), zap.Any("cron", kv))
}

// resolveSource returns the first discovery-role plugin that can supply
// the inventory.
func resolveSource(plugins plugin.PluginResolver) DeviceSource {
	for _, p := range plugins.ResolveByRole("discovery") {
		if src, ok := p.(DeviceSource); ok {
			return src
		}
	}
	return nil
}
