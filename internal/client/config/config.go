// Package config loads the journal client settings from defaults, an
// optional JSON file named by -c/-config, and command-line flags, in that
// order of precedence.
//
//	-a string   host:port of the sync server
//	-i int      online check interval, seconds
//	-f string   local database file
//	-l string   log file
package config

import "time"

// Config holds runtime settings for the journal client.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	// DatabasePath is the per-device SQLite file holding worksheets and
	// the offline session.
	DatabasePath string
	LogFile      string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "thework.db"
	c.LogFile = "thework.log"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
