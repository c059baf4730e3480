package server

import (
	"path/filepath"
	"time"

	"github.com/vango-dev/pagerender/internal/config"
)

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Address is the address to listen on.
	// Default: ":3000".
	Address string

	// StaticDir holds the client build. Files in it are served before
	// pages are rendered. Empty disables static files.
	StaticDir string

	// MetricsPath exposes Prometheus metrics when metrics are enabled.
	// Default: "/metrics".
	MetricsPath string

	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// on shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// ReadTimeout bounds reading the whole request.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response. Streamed pages need it
	// generous.
	// Default: 60 seconds.
	WriteTimeout time.Duration

	// IdleTimeout is the keep-alive timeout.
	// Default: 120 seconds.
	IdleTimeout time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           config.DefaultAddr,
		MetricsPath:       "/metrics",
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ConfigFrom derives the server configuration from the project config.
// In production, static files are served from the directory of the client
// manifest, or from the prerender output without one.
func ConfigFrom(cfg *config.Config) *ServerConfig {
	c := DefaultServerConfig()
	if cfg.Server.Addr != "" {
		c.Address = cfg.Server.Addr
	}
	if cfg.Production {
		if manifest := cfg.ManifestPath(); manifest != "" {
			c.StaticDir = filepath.Dir(manifest)
		} else {
			c.StaticDir = cfg.OutDir()
		}
	}
	return c
}

// withDefaults fills unset fields from DefaultServerConfig.
func (c *ServerConfig) withDefaults() *ServerConfig {
	defaults := DefaultServerConfig()
	if c == nil {
		return defaults
	}
	out := *c
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if out.ReadHeaderTimeout == 0 {
		out.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = defaults.ReadTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.IdleTimeout == 0 {
		out.IdleTimeout = defaults.IdleTimeout
	}
	return &out
}
