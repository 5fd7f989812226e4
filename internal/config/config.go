// Package config adapts Viper to plugin.Config and builds the process logger.
package config

import (
	"time"

	"github.com/HerbHall/netsweep/pkg/plugin"
	"github.com/spf13/viper"
)

var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig implements plugin.Config over a key prefix of one Viper
// instance. Lookups go through the root so defaults, file values and
// environment overrides all apply to scoped keys.
type ViperConfig struct {
	v      *viper.Viper
	prefix string
}

// New creates a Config backed by v. A nil v yields an empty config.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

// ForPlugin returns the "plugins.<name>" section of root.
func ForPlugin(root *viper.Viper, name string) *ViperConfig {
	return &ViperConfig{v: root, prefix: "plugins." + name + "."}
}

func (c *ViperConfig) key(k string) string { return c.prefix + k }

func (c *ViperConfig) Get(key string) any                   { return c.v.Get(c.key(key)) }
func (c *ViperConfig) GetString(key string) string          { return c.v.GetString(c.key(key)) }
func (c *ViperConfig) GetStringSlice(key string) []string   { return c.v.GetStringSlice(c.key(key)) }
func (c *ViperConfig) GetInt(key string) int                { return c.v.GetInt(c.key(key)) }
func (c *ViperConfig) GetBool(key string) bool              { return c.v.GetBool(c.key(key)) }
func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(c.key(key)) }
func (c *ViperConfig) IsSet(key string) bool                { return c.v.IsSet(c.key(key)) }

// Unmarshal decodes the scoped section into target.
func (c *ViperConfig) Unmarshal(target any) error {
	if c.prefix == "" {
		return c.v.Unmarshal(target)
	}
	return c.v.UnmarshalKey(c.prefix[:len(c.prefix)-1], target)
}

// Sub narrows the scope further.
func (c *ViperConfig) Sub(key string) plugin.Config {
	return &ViperConfig{v: c.v, prefix: c.key(key) + "."}
}

// Viper exposes the root instance for top-level keys such as server.port.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
