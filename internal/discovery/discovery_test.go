package discovery

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/internal/config"
	"github.com/HerbHall/netsweep/internal/testutil"
	"github.com/HerbHall/netsweep/pkg/models"
	"github.com/HerbHall/netsweep/pkg/plugin"
	"github.com/HerbHall/netsweep/pkg/plugin/plugintest"
)

func storeDeps(t *testing.T, name string) plugin.Dependencies {
	t.Helper()
	return plugin.Dependencies{
		Logger: zap.NewNop().Named(name),
		Store:  testutil.NewStore(t),
	}
}

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() }, storeDeps)
}

func TestInit_RequiresStore(t *testing.T) {
	err := New().Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()})
	if err == nil {
		t.Fatal("Init() without a store succeeded")
	}
}

func TestInit_ReadsScopedConfig(t *testing.T) {
	v := viper.New()
	v.Set("plugins.discovery.ranges", []string{"10.10.0.0/24"})
	v.Set("plugins.discovery.communities", []string{"ispro", "public"})
	v.Set("plugins.discovery.concurrency", 8)
	v.Set("plugins.discovery.snmp_timeout", "3s")
	v.Set("plugins.discovery.quiet_hours_start", "01:00")
	v.Set("plugins.discovery.quiet_hours_end", "05:00")

	deps := storeDeps(t, "discovery")
	deps.Config = config.New(v).Sub("plugins.discovery")

	m := New()
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := m.ValidateConfig(); err != nil {
		t.Fatalf("ValidateConfig() error = %v", err)
	}
	if len(m.cfg.Ranges) != 1 || m.cfg.Ranges[0] != "10.10.0.0/24" {
		t.Errorf("Ranges = %v", m.cfg.Ranges)
	}
	if m.cfg.Communities[0] != "ispro" {
		t.Errorf("Communities = %v, want ispro first", m.cfg.Communities)
	}
	if m.cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", m.cfg.Concurrency)
	}
	if m.cfg.SNMPTimeout.Seconds() != 3 {
		t.Errorf("SNMPTimeout = %v, want 3s", m.cfg.SNMPTimeout)
	}
	if m.scheduler.quietStart != 60 || m.scheduler.quietEnd != 300 {
		t.Errorf("quiet window = %d-%d, want 60-300", m.scheduler.quietStart, m.scheduler.quietEnd)
	}
	if m.mndp != nil {
		t.Error("MNDP listener created while mndp_enabled is false")
	}
}

func TestValidateConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"bad range", func(c *Config) { c.Ranges = []string{"10.0.0.0/8"} }},
		{"unknown version", func(c *Config) { c.SNMPVersion = "v4" }},
		{"no communities", func(c *Config) { c.Communities = nil }},
		{"v3 without user", func(c *Config) { c.SNMPVersion = "v3" }},
		{"port out of range", func(c *Config) { c.SNMPPort = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	m := New()
	m.cfg = DefaultConfig()
	if got := m.Health(context.Background()).Status; got != "degraded" {
		t.Errorf("Health() without ranges = %q, want degraded", got)
	}
	m.cfg.Ranges = []string{"10.0.0.0/24"}
	if got := m.Health(context.Background()).Status; got != "healthy" {
		t.Errorf("Health() = %q, want healthy", got)
	}
}

func TestInit_FailsInterruptedSweeps(t *testing.T) {
	deps := storeDeps(t, "discovery")
	first := New()
	if err := first.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := first.store.CreateSweep(context.Background(), &models.Sweep{Ranges: []string{"10.0.0.0/24"}}); err != nil {
		t.Fatalf("CreateSweep: %v", err)
	}

	second := New()
	if err := second.Init(context.Background(), deps); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	sweeps, err := second.store.ListSweeps(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListSweeps: %v", err)
	}
	if len(sweeps) != 1 || sweeps[0].Status != models.SweepFailed || sweeps[0].Error != "interrupted" {
		t.Errorf("sweeps = %+v, want one failed/interrupted", sweeps)
	}
}
