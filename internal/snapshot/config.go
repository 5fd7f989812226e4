package snapshot

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Config holds the snapshot exporter configuration.
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	RepoPath    string `mapstructure:"repo_path"`
	Schedule    string `mapstructure:"schedule"`
	Push        bool   `mapstructure:"push"`
	Remote      string `mapstructure:"remote"`
	Branch      string `mapstructure:"branch"`
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`
}

// DefaultConfig returns the default snapshot configuration.
func DefaultConfig() Config {
	return Config{
		RepoPath:    "./data/snapshots",
		Schedule:    "@hourly",
		Remote:      "origin",
		Branch:      "main",
		AuthorName:  "netsweep",
		AuthorEmail: "netsweep@localhost",
	}
}

// LoadConfig overlays values present in c on top of DefaultConfig.
func LoadConfig(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	cfg.Enabled = c.GetBool("enabled")
	cfg.Push = c.GetBool("push")
	for key, dst := range map[string]*string{
		"repo_path":    &cfg.RepoPath,
		"schedule":     &cfg.Schedule,
		"remote":       &cfg.Remote,
		"branch":       &cfg.Branch,
		"author_name":  &cfg.AuthorName,
		"author_email": &cfg.AuthorEmail,
	} {
		if v := c.GetString(key); v != "" {
			*dst = v
		}
	}
	return cfg
}

// Validate checks the cron expression and the push target.
func (c Config) Validate() error {
	var errs []error
	if c.RepoPath == "" {
		errs = append(errs, errors.New("repo_path: required"))
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if c.Push && (c.Remote == "" || c.Branch == "") {
		errs = append(errs, errors.New("push: remote and branch are required"))
	}
	return errors.Join(errs...)
}
