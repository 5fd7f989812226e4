package discovery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Config holds the discovery module configuration.
type Config struct {
	Ranges           []string      `mapstructure:"ranges"`
	Communities      []string      `mapstructure:"communities"`
	SNMPVersion      string        `mapstructure:"snmp_version"`
	SNMPPort         int           `mapstructure:"snmp_port"`
	SNMPTimeout      time.Duration `mapstructure:"snmp_timeout"`
	SNMPRetries      int           `mapstructure:"snmp_retries"`
	SNMPRateLimit    int           `mapstructure:"snmp_rate_limit"`
	V3               V3Config      `mapstructure:"v3"`
	Concurrency      int           `mapstructure:"concurrency"`
	MaxHosts         int           `mapstructure:"max_hosts"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	QuietHoursStart  string        `mapstructure:"quiet_hours_start"`
	QuietHoursEnd    string        `mapstructure:"quiet_hours_end"`
	ICMPPrecheck     bool          `mapstructure:"icmp_precheck"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	ReverseDNS       bool          `mapstructure:"reverse_dns"`
	LLDPEnabled      bool          `mapstructure:"lldp_enabled"`
	MNDPEnabled      bool          `mapstructure:"mndp_enabled"`
	MNDPListen       string        `mapstructure:"mndp_listen"`
	OfflineAfter     time.Duration `mapstructure:"offline_after"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// V3Config holds the SNMPv3 USM parameters used when SNMPVersion is "v3".
type V3Config struct {
	Username       string `mapstructure:"username"`
	AuthProtocol   string `mapstructure:"auth_protocol"`
	AuthPassphrase string `mapstructure:"auth_passphrase"`
	PrivProtocol   string `mapstructure:"priv_protocol"`
	PrivPassphrase string `mapstructure:"priv_passphrase"`
}

// DefaultConfig returns the default configuration for the discovery module.
func DefaultConfig() Config {
	return Config{
		Communities:      []string{"public"},
		SNMPVersion:      "v2c",
		SNMPPort:         161,
		SNMPTimeout:      2 * time.Second,
		SNMPRetries:      1,
		SNMPRateLimit:    200,
		Concurrency:      64,
		MaxHosts:         65536,
		SweepInterval:    time.Hour,
		PollInterval:     5 * time.Minute,
		PingTimeout:      time.Second,
		ReverseDNS:       true,
		LLDPEnabled:      true,
		MNDPListen:       ":5678",
		OfflineAfter:     3 * time.Hour,
		HistoryRetention: 30 * 24 * time.Hour,
	}
}

// LoadConfig overlays values present in c on top of DefaultConfig.
// Zero and negative values keep the default.
func LoadConfig(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}

	if v := c.GetStringSlice("ranges"); len(v) > 0 {
		cfg.Ranges = v
	}
	if v := c.GetStringSlice("communities"); len(v) > 0 {
		cfg.Communities = v
	}
	if v := c.GetString("snmp_version"); v != "" {
		cfg.SNMPVersion = strings.ToLower(v)
	}
	if v := c.GetInt("snmp_port"); v > 0 {
		cfg.SNMPPort = v
	}
	if d := c.GetDuration("snmp_timeout"); d > 0 {
		cfg.SNMPTimeout = d
	}
	if c.IsSet("snmp_retries") {
		cfg.SNMPRetries = c.GetInt("snmp_retries")
	}
	if v := c.GetInt("snmp_rate_limit"); v > 0 {
		cfg.SNMPRateLimit = v
	}
	cfg.V3 = V3Config{
		Username:       c.GetString("v3.username"),
		AuthProtocol:   c.GetString("v3.auth_protocol"),
		AuthPassphrase: c.GetString("v3.auth_passphrase"),
		PrivProtocol:   c.GetString("v3.priv_protocol"),
		PrivPassphrase: c.GetString("v3.priv_passphrase"),
	}
	if v := c.GetInt("concurrency"); v > 0 {
		cfg.Concurrency = v
	}
	if v := c.GetInt("max_hosts"); v > 0 {
		cfg.MaxHosts = v
	}
	if d := c.GetDuration("sweep_interval"); d > 0 {
		cfg.SweepInterval = d
	}
	if d := c.GetDuration("poll_interval"); d > 0 {
		cfg.PollInterval = d
	}
	cfg.QuietHoursStart = c.GetString("quiet_hours_start")
	cfg.QuietHoursEnd = c.GetString("quiet_hours_end")
	if c.IsSet("icmp_precheck") {
		cfg.ICMPPrecheck = c.GetBool("icmp_precheck")
	}
	if d := c.GetDuration("ping_timeout"); d > 0 {
		cfg.PingTimeout = d
	}
	if c.IsSet("reverse_dns") {
		cfg.ReverseDNS = c.GetBool("reverse_dns")
	}
	if c.IsSet("lldp_enabled") {
		cfg.LLDPEnabled = c.GetBool("lldp_enabled")
	}
	if c.IsSet("mndp_enabled") {
		cfg.MNDPEnabled = c.GetBool("mndp_enabled")
	}
	if v := c.GetString("mndp_listen"); v != "" {
		cfg.MNDPListen = v
	}
	if d := c.GetDuration("offline_after"); d > 0 {
		cfg.OfflineAfter = d
	}
	if d := c.GetDuration("history_retention"); d > 0 {
		cfg.HistoryRetention = d
	}
	return cfg
}

// Validate reports configuration that would make the module misbehave.
func (c Config) Validate() error {
	var errs []error
	for _, r := range c.Ranges {
		if _, err := ParseRange(r); err != nil {
			errs = append(errs, fmt.Errorf("ranges: %w", err))
		}
	}
	switch c.SNMPVersion {
	case "v1", "v2c":
		if len(c.Communities) == 0 {
			errs = append(errs, errors.New("communities: at least one community is required"))
		}
	case "v3":
		if c.V3.Username == "" {
			errs = append(errs, errors.New("v3.username: required for snmp_version v3"))
		}
	default:
		errs = append(errs, fmt.Errorf("snmp_version: unsupported value %q", c.SNMPVersion))
	}
	if c.SNMPPort > 65535 {
		errs = append(errs, fmt.Errorf("snmp_port: %d out of range", c.SNMPPort))
	}
	if _, _, err := c.quietHours(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Credentials returns the credentials to try, in order, for each host.
func (c Config) Credentials() []Credential {
	if c.SNMPVersion == "v3" {
		return []Credential{{
			Version:        "v3",
			Username:       c.V3.Username,
			AuthProtocol:   c.V3.AuthProtocol,
			AuthPassphrase: c.V3.AuthPassphrase,
			PrivProtocol:   c.V3.PrivProtocol,
			PrivPassphrase: c.V3.PrivPassphrase,
		}}
	}
	creds := make([]Credential, 0, len(c.Communities))
	for _, community := range c.Communities {
		creds = append(creds, Credential{Version: c.SNMPVersion, Community: community})
	}
	return creds
}

// HostTimeout bounds all SNMP work against one host: the system GET with
// retries plus the interface and LLDP walks.
func (c Config) HostTimeout() time.Duration {
	return max(c.SNMPTimeout*time.Duration(c.SNMPRetries+1)*4, 5*time.Second)
}
