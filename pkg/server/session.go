package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/pkg/protocol"
)

// sessionState is the explicit per-session lifecycle.
// Connected → Authenticating → Authenticated → Closed.
type sessionState int32

const (
	stateConnected sessionState = iota
	stateAuthenticating
	stateAuthenticated
	stateClosed
)

func (st sessionState) String() string {
	switch st {
	case stateConnected:
		return "connected"
	case stateAuthenticating:
		return "authenticating"
	case stateAuthenticated:
		return "authenticated"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one client connection: its read loop, write serialization,
// authentication state, and teardown. A session is owned exclusively by its
// own goroutine except for its registry entry; Send may be called from other
// sessions' goroutines during broadcast and serializes writes internally.
type Session struct {
	id   uint64
	conn protocol.FrameConn

	writeMu sync.Mutex
	closed  atomic.Bool

	mu       sync.Mutex
	name     string // provisional handshake identifier
	username string // set after successful login/registration
	state    sessionState
}

func newSession(id uint64, conn protocol.FrameConn, handshakeName string) *Session {
	return &Session{
		id:    id,
		conn:  conn,
		name:  handshakeName,
		state: stateAuthenticating, // handshake already read
	}
}

// ID returns the session's unique numeric id.
func (s *Session) ID() uint64 {
	return s.id
}

// Name returns the authenticated username, or the provisional handshake
// identifier before authentication.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.username != "" {
		return s.username
	}
	return s.name
}

// State returns the current lifecycle state.
func (s *Session) State() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetAuthenticated records a successful login or registration.
func (s *Session) SetAuthenticated(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.state = stateAuthenticated
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Send delivers one reply line to the client. It returns false only when
// the connection is known closed, in which case the caller must remove the
// session from the registry. A transient write error is logged but does not
// end the session: do not abort, just inform.
func (s *Session) Send(text string) bool {
	if s.closed.Load() {
		return false
	}

	s.writeMu.Lock()
	err := protocol.WriteReply(s.conn, text)
	s.writeMu.Unlock()

	if err == nil {
		return true
	}
	if isClosedErr(err) {
		s.closed.Store(true)
		return false
	}
	slog.Warn("send failed", "session", s.id, "user", s.Name(), "err", err)
	return true
}

// ReadNext blocks until the next envelope from the client. There is no read
// timeout; EOF, peer close, or a decode failure ends the session loop.
func (s *Session) ReadNext() (protocol.Envelope, error) {
	return protocol.ReadEnvelope(s.conn)
}

// Close marks the session closed and releases the connection.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()
	s.closed.Store(true)
	_ = s.conn.Close()
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
