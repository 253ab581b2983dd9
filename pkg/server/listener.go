package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/parlorchat/parlor/pkg/protocol"
)

// StartListener binds the TCP listener and starts the accept loop. Bind
// failure is the one error fatal to the whole process.
func (s *Server) StartListener() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.ln = ln
	slog.Info("chat server listening", "addr", ln.Addr(), "max_clients", s.cfg.MaxClients)

	go s.acceptLoop(ln)
	return nil
}

// acceptLoop accepts raw connections and applies the capacity ceiling
// before a session exists: over the cap, the connection is logged, closed,
// and never retained.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept error", "err", err)
			continue
		}

		if s.registry.Len() >= s.cfg.MaxClients {
			s.metrics.RejectedConnections.Add(1)
			slog.Warn("max clients reached, rejecting connection",
				"remote", conn.RemoteAddr(), "max", s.cfg.MaxClients)
			_ = conn.Close()
			continue
		}

		go s.runSession(protocol.NewStreamConn(conn))
	}
}

// runSession drives one connection's whole lifecycle: handshake, registry
// admission, envelope dispatch, and unconditional teardown on every exit
// path. Failures here are local to the session and never crash the
// listener or other sessions.
func (s *Server) runSession(conn protocol.FrameConn) {
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	defer s.metrics.ActiveConnections.Add(-1)

	remote := conn.RemoteAddr()

	// The client announces a raw username before any envelope traffic.
	name, err := protocol.ReadHandshake(conn)
	if err != nil {
		slog.Debug("handshake failed", "remote", remote, "err", err)
		_ = conn.Close()
		return
	}

	sess := newSession(s.nextSessionID.Add(1), conn, name)
	s.registry.Add(sess)
	slog.Info("client connected", "session", sess.ID(), "name", name, "remote", remote)

	defer func() {
		s.registry.RemoveByID(sess.ID())
		sess.Close()
		s.metrics.TotalDisconnects.Add(1)
		slog.Info("client disconnected", "session", sess.ID(), "user", sess.Name())
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		env, err := sess.ReadNext()
		if err != nil {
			if err != io.EOF && !isClosedErr(err) {
				slog.Debug("read error", "session", sess.ID(), "user", sess.Name(), "err", err)
			}
			return
		}

		if s.dispatch(sess, env) {
			return
		}
	}
}
