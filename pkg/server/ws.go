package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients talk to the same host the page came from in typical
	// deployments; the protocol itself requires login before anything else.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StartWebSocket starts the optional WebSocket transport. Web clients speak
// the same protocol over /ws, one WebSocket message per frame, and get the
// same session semantics and capacity ceiling as TCP clients.
func (s *Server) StartWebSocket() error {
	if s.cfg.WSAddr == "" {
		return nil // WebSocket transport disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	s.wsSrv = &http.Server{
		Addr:              s.cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("websocket transport listening", "addr", s.cfg.WSAddr)
		if err := s.wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("websocket transport error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = s.wsSrv.Close()
	}()

	return nil
}

// WebSocketHandler returns the /ws upgrade handler, exposed for tests.
func (s *Server) WebSocketHandler() http.HandlerFunc {
	return s.handleWS
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.registry.Len() >= s.cfg.MaxClients {
		s.metrics.RejectedConnections.Add(1)
		slog.Warn("max clients reached, rejecting websocket connection",
			"remote", r.RemoteAddr, "max", s.cfg.MaxClients)
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s.runSession(protocol.NewWebSocketConn(conn))
}
