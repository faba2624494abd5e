package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the tool configuration loaded from config.toml.
type Config struct {
	Proxy ProxyConfig `toml:"proxy"`
}

// ProxyConfig holds defaults for the proxy subcommand. Flags take
// precedence over these, which take precedence over env vars.
type ProxyConfig struct {
	// Listen is the TCP address the proxy binds (default "127.0.0.1:9700").
	Listen string `toml:"listen"`
	// Upstream is the relay target: host:port or a ws:// / wss:// URL.
	Upstream string `toml:"upstream"`
	// Capture is the SQLite capture database path. Empty disables capture.
	Capture string `toml:"capture,omitempty"`
	// OpsAddr is the HTTP address for /healthz, /metrics, and /sessions.
	// Empty disables the ops listener.
	OpsAddr string `toml:"ops_addr,omitempty"`
}

// loadConfig reads config.toml from dataDir and applies environment
// variable overrides for anything the file left unset.
func loadConfig(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.toml")

	cfg := &Config{
		Proxy: ProxyConfig{
			Listen: "127.0.0.1:9700",
		},
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if cfg.Proxy.Listen == "" {
			cfg.Proxy.Listen = "127.0.0.1:9700"
		}
	}

	if listen := os.Getenv("WIRETAP_LISTEN"); listen != "" {
		cfg.Proxy.Listen = listen
	}
	if cfg.Proxy.Upstream == "" {
		cfg.Proxy.Upstream = os.Getenv("WIRETAP_UPSTREAM")
	}
	if cfg.Proxy.Capture == "" {
		cfg.Proxy.Capture = os.Getenv("WIRETAP_CAPTURE")
	}
	if cfg.Proxy.OpsAddr == "" {
		cfg.Proxy.OpsAddr = os.Getenv("WIRETAP_OPS_ADDR")
	}

	return cfg, nil
}
