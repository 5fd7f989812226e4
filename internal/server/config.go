package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the HTTP listener configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetDefaults registers every default netsweep understands. Exposed so the
// one-shot CLI and tests see the same values as the server.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 100)
	v.SetDefault("server.rate_limit_burst", 200)
	v.SetDefault("server.ws_origins", []string{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/netsweep.db")

	v.SetDefault("plugins.discovery.ranges", []string{})
	v.SetDefault("plugins.discovery.communities", []string{"public"})
	v.SetDefault("plugins.discovery.snmp_version", "v2c")
	v.SetDefault("plugins.discovery.snmp_port", 161)
	v.SetDefault("plugins.discovery.snmp_timeout", "2s")
	v.SetDefault("plugins.discovery.snmp_retries", 1)
	v.SetDefault("plugins.discovery.snmp_rate_limit", 200)
	v.SetDefault("plugins.discovery.concurrency", 64)
	v.SetDefault("plugins.discovery.max_hosts", 65536)
	v.SetDefault("plugins.discovery.sweep_interval", "1h")
	v.SetDefault("plugins.discovery.poll_interval", "5m")
	v.SetDefault("plugins.discovery.icmp_precheck", false)
	v.SetDefault("plugins.discovery.ping_timeout", "1s")
	v.SetDefault("plugins.discovery.reverse_dns", true)
	v.SetDefault("plugins.discovery.lldp_enabled", true)
	v.SetDefault("plugins.discovery.mndp_enabled", false)
	v.SetDefault("plugins.discovery.mndp_listen", ":5678")
	v.SetDefault("plugins.discovery.offline_after", "3h")
	v.SetDefault("plugins.discovery.history_retention", "720h")

	v.SetDefault("plugins.snapshot.enabled", false)
	v.SetDefault("plugins.snapshot.repo_path", "./data/snapshots")
	v.SetDefault("plugins.snapshot.schedule", "@hourly")
	v.SetDefault("plugins.snapshot.push", false)
	v.SetDefault("plugins.snapshot.remote", "origin")
	v.SetDefault("plugins.snapshot.branch", "main")

	v.SetDefault("plugins.mqtt.broker_url", "")
	v.SetDefault("plugins.mqtt.client_id", "netsweep")
	v.SetDefault("plugins.mqtt.topic_prefix", "netsweep")
	v.SetDefault("plugins.mqtt.qos", 1)
	v.SetDefault("plugins.mqtt.retain", false)
	v.SetDefault("plugins.mqtt.timeout", "10s")
}

// LoadConfig reads configuration from file and environment variables.
// An explicit configPath must exist; otherwise netsweep.yaml is looked up
// in the usual places and its absence is not an error.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("netsweep")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/netsweep")
	}

	// NS_SERVER_PORT=9090, NS_PLUGINS_DISCOVERY_CONCURRENCY=16
	v.SetEnvPrefix("NS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}
