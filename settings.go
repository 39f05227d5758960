package gutter

import (
	"errors"
	"fmt"
	"time"

	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/transport"
)

// Settings are the user options that affect classification.
type Settings struct {
	// IgnoreLeadingTrailingWhitespace makes lines that differ only in
	// leading or trailing white space compare equal.
	IgnoreLeadingTrailingWhitespace bool `toml:"ignore_leading_trailing_whitespace"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() *Settings {
	return &Settings{IgnoreLeadingTrailingWhitespace: true}
}

// SettingsWatcher supplies the current settings and reports changes.
// *config.Store[Settings] satisfies it.
type SettingsWatcher interface {
	Get() *Settings
	OnChange(fn func(old, new_ *Settings)) (unsubscribe func())
}

// Config is the layout of a .gutter.toml file.
type Config struct {
	Settings

	PollInterval time.Duration  `toml:"poll_interval"`
	Workers      int            `toml:"workers"`
	Baseline     BaselineConfig `toml:"baseline"`
}

// BaselineConfig selects where baselines come from. An empty Address means
// the local SQLite database at Database.
type BaselineConfig struct {
	Address           string  `toml:"address"`
	Transport         string  `toml:"transport"`
	Database          string  `toml:"database"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Settings:     *DefaultSettings(),
		PollInterval: baseline.DefaultInterval,
		Baseline: BaselineConfig{
			Transport:         transport.KindTCP,
			Database:          "baseline.db",
			RequestsPerSecond: 10,
		},
	}
}

// Validate implements config.Validatable.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval must not be negative, got %s", c.PollInterval))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	switch c.Baseline.Transport {
	case "", transport.KindTCP, transport.KindUnix, transport.KindWebSocket:
	default:
		errs = append(errs, fmt.Errorf("baseline.transport must be tcp, unix or ws, got %q", c.Baseline.Transport))
	}
	if c.Baseline.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("baseline.requests_per_second must not be negative"))
	}
	if c.Baseline.Address == "" && c.Baseline.Database == "" {
		errs = append(errs, errors.New("either baseline.address or baseline.database must be set"))
	}
	return errors.Join(errs...)
}
