// Package discovery finds and inventories SNMP-manageable devices on
// configured IPv4 ranges. It sweeps ranges with native SNMP, classifies
// responders from sysDescr, keeps a device and interface inventory keyed by
// IP, samples interface counters into an append-only transfer history and
// optionally listens for MikroTik MNDP announcements.
package discovery

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/pkg/models"
	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// Module implements the discovery plugin.
type Module struct {
	logger    *zap.Logger
	cfg       Config
	store     *DiscoveryStore
	bus       plugin.EventBus
	prober    Prober
	sampler   *Sampler
	sweeper   *Sweeper
	scheduler *Scheduler
	mndp      *MNDPListener

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a discovery plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "discovery",
		Version:     "1.0.0",
		Description: "SNMP network discovery and interface transfer sampling",
		Required:    true,
		Roles:       []string{"discovery"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	if deps.Store == nil {
		return errors.New("discovery requires a store")
	}
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.cfg = LoadConfig(deps.Config)

	if err := deps.Store.Migrate(ctx, "discovery", migrations()); err != nil {
		return err
	}
	m.store = NewDiscoveryStore(deps.Store.DB())

	if n, err := m.store.FailInterruptedSweeps(ctx); err != nil {
		return err
	} else if n > 0 {
		m.logger.Warn("marked interrupted sweeps as failed", zap.Int64("count", n))
	}

	m.prober = NewSNMPProber(m.cfg, m.logger.Named("snmp"))
	var pinger Pinger
	if m.cfg.ICMPPrecheck {
		pinger = NewICMPPinger(m.cfg, m.logger.Named("icmp"))
	}
	m.sampler = NewSampler(m.store, m.prober, m.cfg, m.logger.Named("sampler"))
	m.sweeper = NewSweeper(m.store, m.prober, pinger, m.sampler, m.bus, m.cfg, m.logger.Named("sweep"))
	m.scheduler = NewScheduler(m.sweeper, m.sampler, m.store, m.bus, m.cfg, m.logger.Named("scheduler"))
	if m.cfg.MNDPEnabled {
		m.mndp = NewMNDPListener(m.cfg.MNDPListen, m.store, m.bus, m.logger.Named("mndp"))
	}

	m.logger.Info("discovery module initialized",
		zap.Strings("ranges", m.cfg.Ranges),
		zap.String("snmp_version", m.cfg.SNMPVersion),
		zap.Int("concurrency", m.cfg.Concurrency),
		zap.Bool("mndp_enabled", m.cfg.MNDPEnabled),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	ctx := m.ctx
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.scheduler.Run(ctx)
	}()

	if m.mndp != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.mndp.Run(ctx); err != nil {
				m.logger.Error("MNDP listener stopped", zap.Error(err))
			}
		}()
	}

	m.logger.Info("discovery module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("discovery module stopping, cancelling active sweep")
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	m.wg.Wait()
	m.logger.Info("discovery module stopped")
	return nil
}

// runCtx is the context background work started by HTTP requests runs
// under. Before Start it is never cancelled.
func (m *Module) runCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/devices", Handler: m.handleListDevices},
		{Method: "GET", Path: "/devices/{id}", Handler: m.handleGetDevice},
		{Method: "GET", Path: "/devices/{id}/interfaces", Handler: m.handleDeviceInterfaces},
		{Method: "GET", Path: "/devices/{id}/neighbors", Handler: m.handleDeviceNeighbors},
		{Method: "GET", Path: "/interfaces/{id}/history", Handler: m.handleInterfaceHistory},
		{Method: "POST", Path: "/sweeps", Handler: m.handleStartSweep},
		{Method: "GET", Path: "/sweeps", Handler: m.handleListSweeps},
		{Method: "GET", Path: "/sweeps/{id}", Handler: m.handleGetSweep},
		{Method: "GET", Path: "/log", Handler: m.handleListLog},
	}
}

// Health implements plugin.HealthChecker. The module is degraded when no
// ranges are configured, since nothing will ever be swept.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	details := map[string]string{
		"ranges":       strconv.Itoa(len(m.cfg.Ranges)),
		"sweep_active": strconv.FormatBool(m.sweeper != nil && m.sweeper.Active()),
		"mndp_enabled": strconv.FormatBool(m.cfg.MNDPEnabled),
	}
	if len(m.cfg.Ranges) == 0 {
		return plugin.HealthStatus{Status: "degraded", Message: "no ranges configured", Details: details}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// Sweep runs one sweep synchronously. Used by the one-shot CLI.
func (m *Module) Sweep(ctx context.Context, ranges []string) (*models.Sweep, error) {
	return m.sweeper.Run(ctx, ranges)
}

// Devices returns the full inventory ordered by IP.
func (m *Module) Devices(ctx context.Context) ([]models.DiscoveredDevice, error) {
	devices, _, err := m.store.ListDevices(ctx, ListOptions{})
	return devices, err
}

// Interfaces returns the interfaces of one device.
func (m *Module) Interfaces(ctx context.Context, deviceID string) ([]models.NetworkInterface, error) {
	return m.store.ListInterfaces(ctx, deviceID)
}
