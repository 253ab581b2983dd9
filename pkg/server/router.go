package server

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/parlorchat/parlor/pkg/credstore"
	"github.com/parlorchat/parlor/pkg/model"
	"github.com/parlorchat/parlor/pkg/protocol"
)

// Reply strings sent back to clients. The client pattern-matches the
// "login" and "New" prefixes at login time, so those are load-bearing.
const (
	replyLoginOK         = "login confirmed"
	replyLoginDenied     = "Denied. Login credentials don't match or don't exist."
	replyNewUserOK       = "New user created. Login confirmed."
	replyNewUserDenied   = "Your parameters are bad or the UserId is already being used"
	replyNotLoggedIn     = "Denied. Please login first."
	replyAlreadyLoggedIn = "Denied. Already logged in."
)

// dispatch routes one envelope through the session state machine. Only
// Login and NewUser are accepted while authenticating; only Who, Message,
// and Logout once authenticated. Out-of-state kinds get a deterministic
// denial. The return value reports whether the session loop should end.
func (s *Server) dispatch(sess *Session, env protocol.Envelope) (done bool) {
	switch sess.State() {
	case stateAuthenticating:
		switch env.Kind {
		case protocol.KindLogin:
			s.handleLogin(sess, env.Payload)
		case protocol.KindNewUser:
			s.handleNewUser(sess, env.Payload)
		case protocol.KindLogout:
			// Never announced, so no leave broadcast.
			return true
		default:
			sess.Send(replyNotLoggedIn)
		}
	case stateAuthenticated:
		switch env.Kind {
		case protocol.KindWho:
			s.handleWho(sess)
		case protocol.KindMessage:
			s.handleMessage(sess, env.Payload)
		case protocol.KindLogout:
			s.handleLogout(sess)
			return true
		default:
			sess.Send(replyAlreadyLoggedIn)
		}
	default:
		return true
	}
	return false
}

// handleLogin processes "login <user> <pass>". On failure the session stays
// in the authenticating state and may retry.
func (s *Server) handleLogin(sess *Session, payload string) {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		s.metrics.FailedAuths.Add(1)
		sess.Send(replyLoginDenied)
		return
	}
	username, password := fields[1], fields[2]

	if err := s.creds.Authenticate(username, password); err != nil {
		s.metrics.FailedAuths.Add(1)
		slog.Debug("login denied", "session", sess.ID(), "user", username)
		sess.Send(replyLoginDenied)
		return
	}

	sess.Send(replyLoginOK)
	sess.SetAuthenticated(username)
	s.metrics.SuccessfulAuths.Add(1)
	slog.Info("user logged in", "user", username, "session", sess.ID())
	s.broadcast(username + " joins.")
}

// handleNewUser processes "newuser <user> <pass>". Username and password
// policy are enforced here, not by the store. All failures surface one
// generic rejection string.
func (s *Server) handleNewUser(sess *Session, payload string) {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		sess.Send(replyNewUserDenied)
		return
	}
	username, password := fields[1], fields[2]

	if err := model.ValidateUsername(username); err != nil {
		slog.Debug("registration rejected", "session", sess.ID(), "user", username, "err", err)
		sess.Send(replyNewUserDenied)
		return
	}
	if err := model.ValidatePassword(password); err != nil {
		slog.Debug("registration rejected", "session", sess.ID(), "user", username, "err", err)
		sess.Send(replyNewUserDenied)
		return
	}

	if err := s.creds.Create(username, password); err != nil {
		if !errors.Is(err, credstore.ErrUserExists) {
			slog.Error("credential store write failed", "user", username, "err", err)
		}
		sess.Send(replyNewUserDenied)
		return
	}

	sess.Send(replyNewUserOK)
	sess.SetAuthenticated(username)
	s.metrics.Registrations.Add(1)
	s.metrics.SuccessfulAuths.Add(1)
	slog.Info("user registered", "user", username, "session", sess.ID())
	s.broadcast(username + " joins.")
}

// handleWho unicasts the comma-joined names of every admitted session, in
// admission order.
func (s *Server) handleWho(sess *Session) {
	peers := s.registry.Snapshot()
	names := make([]string, 0, len(peers))
	for _, peer := range peers {
		names = append(names, peer.Name())
	}
	sess.Send(strings.Join(names, ", "))
}

// handleMessage processes "send <target> <text...>". Target "all" fans out
// to every admitted session including the sender; otherwise delivery goes
// to sessions whose name equals the target, silently doing nothing on zero
// matches. Fewer than 3 whitespace tokens is a silent drop.
func (s *Server) handleMessage(sess *Session, payload string) {
	fields := strings.Fields(payload)
	if len(fields) < 3 {
		return
	}
	target := fields[1]
	msg := sess.Name() + ": " + messageText(payload, target)
	s.metrics.MessagesRelayed.Add(1)

	if target == "all" {
		s.broadcast(msg)
		return
	}

	for _, peer := range s.registry.Snapshot() {
		if peer.Name() != target {
			continue
		}
		if !peer.Send(msg) {
			s.registry.RemoveByID(peer.ID())
			slog.Info("removed disconnected client", "session", peer.ID(), "user", peer.Name())
		} else {
			slog.Debug("message relayed", "to", target, "from", sess.Name())
		}
	}
}

// handleLogout announces departure to everyone (the leaver included) before
// the caller tears the session down.
func (s *Server) handleLogout(sess *Session) {
	slog.Info("user logged out", "user", sess.Name(), "session", sess.ID())
	s.broadcast(sess.Name() + " left")
}

// broadcast delivers one line to every admitted session in admission order.
// Members whose send reports a dead connection are removed from the
// registry in the same pass, so membership self-heals.
func (s *Server) broadcast(text string) {
	s.metrics.BroadcastsSent.Add(1)
	for _, peer := range s.registry.Snapshot() {
		if !peer.Send(text) {
			s.registry.RemoveByID(peer.ID())
			slog.Info("removed disconnected client during broadcast", "session", peer.ID(), "user", peer.Name())
		}
	}
}

// messageText extracts the text following the "send <target> " prefix,
// preserving any interior whitespace of the message body.
func messageText(payload, target string) string {
	prefix := len("send ") + len(target) + 1
	if prefix >= len(payload) {
		return ""
	}
	return payload[prefix:]
}
