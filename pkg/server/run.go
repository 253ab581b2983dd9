package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Run starts the server and blocks until a shutdown signal.
func (s *Server) Run() error {
	if s.creds == nil {
		return fmt.Errorf("server: missing credential store dependency")
	}
	defer func() { _ = s.creds.Close() }()

	if err := s.StartListener(); err != nil {
		return err
	}
	if err := s.StartWebSocket(); err != nil {
		return err
	}
	s.StartMetricsHTTP()

	// Periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	slog.Info("parlor server running", "addr", s.cfg.ListenAddr)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server: no new connections are accepted
// and every live session's connection is closed, which unblocks its read
// loop and runs its teardown path.
func (s *Server) Shutdown() {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	if s.wsSrv != nil {
		_ = s.wsSrv.Close()
	}
	for _, sess := range s.registry.Snapshot() {
		sess.Close()
	}
}
