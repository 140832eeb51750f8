package config

import (
	"encoding/json"
	"os"

	"stayline/internal/flagx"
	"stayline/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so intervals can be spelled either as strings like "30s"
// or as integer nanoseconds.
type JsonConfig struct {
	ServerBaseURL       string         `json:"server_base_url"`
	DatabasePath        string         `json:"database_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	DefaultCacheTTL     timex.Duration `json:"default_cache_ttl"`
	SweepInterval       timex.Duration `json:"sweep_interval"`
	ReplayRatePerSecond float64        `json:"replay_rate_per_second"`
	PushPublicKey       string         `json:"push_public_key"`
	Platform            string         `json:"platform"`
	LogPath             string         `json:"log_path"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// Missing flag means no JSON source; read or unmarshal errors panic, since
// a named-but-broken config file should not be silently ignored.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerBaseURL != "" {
		cfg.ServerBaseURL = jc.ServerBaseURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.DefaultCacheTTL.Duration > 0 {
		cfg.DefaultCacheTTL = jc.DefaultCacheTTL.Duration
	}
	if jc.SweepInterval.Duration > 0 {
		cfg.SweepInterval = jc.SweepInterval.Duration
	}
	if jc.ReplayRatePerSecond > 0 {
		cfg.ReplayRatePerSecond = jc.ReplayRatePerSecond
	}
	if jc.PushPublicKey != "" {
		cfg.PushPublicKey = jc.PushPublicKey
	}
	if jc.Platform != "" {
		cfg.Platform = jc.Platform
	}
	if jc.LogPath != "" {
		cfg.LogPath = jc.LogPath
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
}
