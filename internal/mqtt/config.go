package mqtt

import (
	"time"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Config holds MQTT publisher configuration.
type Config struct {
	BrokerURL   string        `mapstructure:"broker_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"` //nolint:gosec // G101: config field name, not a credential
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Retain      bool          `mapstructure:"retain"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the defaults. An empty BrokerURL disables publishing.
func DefaultConfig() Config {
	return Config{
		ClientID:    "netsweep",
		TopicPrefix: "netsweep",
		QoS:         1,
		Timeout:     10 * time.Second,
	}
}

// LoadConfig overlays values present in c on top of DefaultConfig.
func LoadConfig(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	if u := c.GetString("broker_url"); u != "" {
		cfg.BrokerURL = u
	}
	if u := c.GetString("username"); u != "" {
		cfg.Username = u
	}
	if p := c.GetString("password"); p != "" {
		cfg.Password = p
	}
	if id := c.GetString("client_id"); id != "" {
		cfg.ClientID = id
	}
	if t := c.GetString("topic_prefix"); t != "" {
		cfg.TopicPrefix = t
	}
	if c.IsSet("qos") {
		cfg.QoS = byte(min(max(c.GetInt("qos"), 0), 2)) //nolint:gosec // G115: clamped to 0..2
	}
	if c.IsSet("retain") {
		cfg.Retain = c.GetBool("retain")
	}
	if d := c.GetDuration("timeout"); d > 0 {
		cfg.Timeout = d
	}
	return cfg
}
