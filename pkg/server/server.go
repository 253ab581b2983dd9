// Package server implements the Parlor chat server: the listener accept
// loop, per-connection sessions, the client registry, and message routing.
package server

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/parlorchat/parlor/pkg/credstore"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`  // TCP bind address (e.g. ":10064")
	WSAddr      string `yaml:"ws_addr"`      // HTTP bind address for the WebSocket transport (empty = disabled)
	MetricsAddr string `yaml:"metrics_addr"` // HTTP bind address for /metrics (empty = disabled)
	MaxClients  int    `yaml:"max_clients"`  // connection cap checked at accept time
	UsersFile   string `yaml:"users_file"`   // flat-file credential store path
	DBPath      string `yaml:"db_path"`      // SQLite credential store path (overrides UsersFile when set)
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	// CLI-only action (run and exit)
	ExportUsers bool `yaml:"-"` // export all registered users as YAML and exit
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":10064",
		MaxClients: 3,
		UsersFile:  "Users.txt",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Creds and will Close() it on shutdown.
type Dependencies struct {
	Creds credstore.Store
}

// Server is the Parlor chat server.
type Server struct {
	cfg      Config
	registry *Registry
	metrics  *Metrics
	creds    credstore.Store
	ln       net.Listener
	wsSrv    *http.Server

	nextSessionID atomic.Uint64 // monotonically assigned, never reused while the server runs

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(),
		metrics:  NewMetrics(),
		creds:    deps.Creds,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the client registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound TCP listener address, or nil before StartListener.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
