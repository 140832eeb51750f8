// Package config holds runtime settings for the stayline agent.
//
// Values are layered: defaults, then the optional JSON file, then
// environment variables, then command-line flags. Later sources win.
package config

import "time"

type Config struct {
	// ServerBaseURL is the backend REST endpoint, e.g. https://pms.example.com.
	ServerBaseURL string

	// DatabasePath is the SQLite file backing the offline store.
	DatabasePath string

	// OnlineCheckInterval is how often the agent probes backend reachability.
	OnlineCheckInterval time.Duration

	// DefaultCacheTTL applies when a cached read does not name its own TTL.
	DefaultCacheTTL time.Duration

	// SweepInterval paces cache space reclamation; zero disables the sweep.
	SweepInterval time.Duration

	// ReplayRatePerSecond bounds replay bandwidth on reconnect.
	ReplayRatePerSecond float64

	// PushPublicKey is the push-subscription public key handed out at deploy time.
	PushPublicKey string

	// Platform names this installation in device registrations.
	Platform string

	LogPath  string
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.DatabasePath = "stayline.db"
	c.OnlineCheckInterval = 30 * time.Second
	c.DefaultCacheTTL = 5 * time.Minute
	c.SweepInterval = 10 * time.Minute
	c.ReplayRatePerSecond = 2
	c.Platform = "agent"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present), the environment and command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
