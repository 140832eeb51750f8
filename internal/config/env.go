package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays cfg with STAYLINE_* environment variables. The server
// base URL and push public key are typically supplied this way at deploy
// time (a .env file is loaded by main before this runs).
func parseEnv(cfg *Config) {
	if v := os.Getenv("STAYLINE_SERVER_BASE_URL"); v != "" {
		cfg.ServerBaseURL = v
	}
	if v := os.Getenv("STAYLINE_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("STAYLINE_ONLINE_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OnlineCheckInterval = d
		}
	}
	if v := os.Getenv("STAYLINE_DEFAULT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DefaultCacheTTL = d
		}
	}
	if v := os.Getenv("STAYLINE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SweepInterval = d
		}
	}
	if v := os.Getenv("STAYLINE_REPLAY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.ReplayRatePerSecond = f
		}
	}
	if v := os.Getenv("STAYLINE_PUSH_PUBLIC_KEY"); v != "" {
		cfg.PushPublicKey = v
	}
	if v := os.Getenv("STAYLINE_PLATFORM"); v != "" {
		cfg.Platform = v
	}
	if v := os.Getenv("STAYLINE_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("STAYLINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
