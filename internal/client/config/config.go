package config

import (
	"time"

	"github.com/dmitrijs2005/storefront/internal/flagx"
)

// Config holds runtime settings for the storefront CLI.
//
// RefreshTimeout bounds one token refresh round trip regardless of the
// callers waiting on it; RequestTimeout bounds every other call.
type Config struct {
	ServerURL      string
	GRPCAddr       string
	DBPath         string
	RefreshTimeout time.Duration
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.GRPCAddr = "127.0.0.1:50051"
	c.DBPath = "storefront-client.db"
	c.RefreshTimeout = 10 * time.Second
	c.RequestTimeout = 30 * time.Second
}

// LoadConfig applies defaults, then the JSON file named by -c/-config, then
// command-line flags. Later sources take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, flagx.ConfigSources(args).JSON); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
