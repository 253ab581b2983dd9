package server

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/parlorchat/parlor/pkg/credstore"
	"github.com/parlorchat/parlor/pkg/protocol"
)

// fakeConn is a FrameConn that records written frames. Reads always report
// EOF; tests drive dispatch directly instead of through a read loop.
type fakeConn struct {
	mu        sync.Mutex
	writes    []string
	failWrite error
}

func (c *fakeConn) ReadFrame() ([]byte, error) { return nil, io.EOF }

func (c *fakeConn) WriteFrame(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite != nil {
		return c.failWrite
	}
	c.writes = append(c.writes, string(p))
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func newTestServer(creds credstore.Store) *Server {
	return New(DefaultConfig(), Dependencies{Creds: creds})
}

// admit adds an unauthenticated session with the given handshake name, the
// way runSession does after reading the handshake frame.
func admit(srv *Server, name string) (*Session, *fakeConn) {
	conn := &fakeConn{}
	sess := newSession(srv.nextSessionID.Add(1), conn, name)
	srv.registry.Add(sess)
	return sess, conn
}

func admitAuthenticated(srv *Server, name string) (*Session, *fakeConn) {
	sess, conn := admit(srv, name)
	sess.SetAuthenticated(name)
	return sess, conn
}

func login(user, pass string) protocol.Envelope {
	return protocol.Envelope{Kind: protocol.KindLogin, Payload: "login " + user + " " + pass}
}

func TestLoginConfirmsAndAnnounces(t *testing.T) {
	creds := credstore.NewMemory()
	if err := creds.Create("alice", "pass1"); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(creds)
	_, peerConn := admitAuthenticated(srv, "bob")
	sess, conn := admit(srv, "alice")

	if done := srv.dispatch(sess, login("alice", "pass1")); done {
		t.Fatal("dispatch(login) = done, want session to continue")
	}

	want := []string{"login confirmed", "alice joins."}
	if diff := cmp.Diff(want, conn.lines()); diff != "" {
		t.Errorf("login replies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"alice joins."}, peerConn.lines()); diff != "" {
		t.Errorf("peer broadcast mismatch (-want +got):\n%s", diff)
	}
	if got := sess.State(); got != stateAuthenticated {
		t.Errorf("state after login = %v, want authenticated", got)
	}
	if got := srv.Metrics().SuccessfulAuths.Load(); got != 1 {
		t.Errorf("SuccessfulAuths = %d, want 1", got)
	}
}

func TestLoginDenied(t *testing.T) {
	creds := credstore.NewMemory()
	if err := creds.Create("alice", "pass1"); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(creds)

	tests := []struct {
		name    string
		payload string
	}{
		{"wrong password", "login alice nope1"},
		{"unknown user", "login mallory pass1"},
		{"missing password", "login alice"},
		{"empty payload", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, conn := admit(srv, "alice")
			srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindLogin, Payload: tt.payload})

			want := []string{"Denied. Login credentials don't match or don't exist."}
			if diff := cmp.Diff(want, conn.lines()); diff != "" {
				t.Errorf("reply mismatch (-want +got):\n%s", diff)
			}
			if got := sess.State(); got != stateAuthenticating {
				t.Errorf("state after denial = %v, want authenticating", got)
			}
		})
	}
}

func TestNewUserCreatesAndConfirms(t *testing.T) {
	creds := credstore.NewMemory()
	srv := newTestServer(creds)
	sess, conn := admit(srv, "carol")

	env := protocol.Envelope{Kind: protocol.KindNewUser, Payload: "newuser carol pass1"}
	if done := srv.dispatch(sess, env); done {
		t.Fatal("dispatch(newuser) = done, want session to continue")
	}

	want := []string{"New user created. Login confirmed.", "carol joins."}
	if diff := cmp.Diff(want, conn.lines()); diff != "" {
		t.Errorf("replies mismatch (-want +got):\n%s", diff)
	}
	if err := creds.Authenticate("carol", "pass1"); err != nil {
		t.Errorf("Authenticate after newuser: %v", err)
	}
	if got := srv.Metrics().Registrations.Load(); got != 1 {
		t.Errorf("Registrations = %d, want 1", got)
	}
	// The fresh account is immediately usable by a second connection.
	sess2, conn2 := admit(srv, "carol")
	srv.dispatch(sess2, login("carol", "pass1"))
	if got := conn2.lines(); len(got) == 0 || got[0] != "login confirmed" {
		t.Errorf("login with fresh account = %v, want login confirmed", got)
	}
}

func TestNewUserRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"too few tokens", "newuser bob"},
		{"too many tokens", "newuser bob pass1 extra"},
		{"username too long", "newuser " + strings.Repeat("x", 32) + " pass1"},
		{"password too short", "newuser bob abc"},
		{"password too long", "newuser bob ninechars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := credstore.NewMemory()
			srv := newTestServer(creds)
			sess, conn := admit(srv, "bob")

			srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindNewUser, Payload: tt.payload})

			want := []string{"Your parameters are bad or the UserId is already being used"}
			if diff := cmp.Diff(want, conn.lines()); diff != "" {
				t.Errorf("reply mismatch (-want +got):\n%s", diff)
			}
			if sess.State() != stateAuthenticating {
				t.Errorf("state after rejection = %v, want authenticating", sess.State())
			}
			users, err := creds.ListUsers()
			if err != nil {
				t.Fatal(err)
			}
			if len(users) != 0 {
				t.Errorf("store has %d users after rejection, want 0", len(users))
			}
		})
	}
}

func TestNewUserDuplicateKeepsOriginal(t *testing.T) {
	creds := credstore.NewMemory()
	if err := creds.Create("alice", "pass1"); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(creds)
	sess, conn := admit(srv, "alice")

	srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindNewUser, Payload: "newuser alice pass2"})

	want := []string{"Your parameters are bad or the UserId is already being used"}
	if diff := cmp.Diff(want, conn.lines()); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	if err := creds.Authenticate("alice", "pass1"); err != nil {
		t.Errorf("original credentials broken by duplicate registration: %v", err)
	}
	if err := creds.Authenticate("alice", "pass2"); err == nil {
		t.Error("duplicate registration's password accepted, want denial")
	}
}

func TestDispatchOutOfState(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())

	t.Run("before login", func(t *testing.T) {
		for _, kind := range []protocol.Kind{protocol.KindWho, protocol.KindMessage} {
			sess, conn := admit(srv, "alice")
			srv.dispatch(sess, protocol.Envelope{Kind: kind, Payload: "send all hi"})
			want := []string{"Denied. Please login first."}
			if diff := cmp.Diff(want, conn.lines()); diff != "" {
				t.Errorf("%v reply mismatch (-want +got):\n%s", kind, diff)
			}
		}
	})

	t.Run("logout before login closes silently", func(t *testing.T) {
		sess, conn := admit(srv, "alice")
		if done := srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindLogout}); !done {
			t.Error("dispatch(logout) = continue, want done")
		}
		if got := conn.lines(); len(got) != 0 {
			t.Errorf("pre-auth logout wrote %v, want nothing", got)
		}
	})

	t.Run("after login", func(t *testing.T) {
		for _, env := range []protocol.Envelope{
			{Kind: protocol.KindLogin, Payload: "login alice pass1"},
			{Kind: protocol.KindNewUser, Payload: "newuser bob pass1"},
		} {
			sess, conn := admitAuthenticated(srv, "alice")
			srv.dispatch(sess, env)
			want := []string{"Denied. Already logged in."}
			if diff := cmp.Diff(want, conn.lines()); diff != "" {
				t.Errorf("%v reply mismatch (-want +got):\n%s", env.Kind, diff)
			}
		}
	})
}

func TestWhoListsAdmissionOrder(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())
	admitAuthenticated(srv, "alice")
	sess, conn := admitAuthenticated(srv, "bob")
	admitAuthenticated(srv, "carol")

	srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindWho})

	if diff := cmp.Diff([]string{"alice, bob, carol"}, conn.lines()); diff != "" {
		t.Errorf("who reply mismatch (-want +got):\n%s", diff)
	}
}

func TestWhoIncludesUnauthenticatedMembers(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())
	sess, conn := admitAuthenticated(srv, "alice")
	admit(srv, "dave") // admitted, still authenticating

	srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindWho})

	if diff := cmp.Diff([]string{"alice, dave"}, conn.lines()); diff != "" {
		t.Errorf("who reply mismatch (-want +got):\n%s", diff)
	}
}

func TestSendAllReachesEveryoneIncludingSender(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())
	sess, aliceConn := admitAuthenticated(srv, "alice")
	_, bobConn := admitAuthenticated(srv, "bob")
	_, carolConn := admitAuthenticated(srv, "carol")

	srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindMessage, Payload: "send all hello there"})

	for name, conn := range map[string]*fakeConn{"alice": aliceConn, "bob": bobConn, "carol": carolConn} {
		if diff := cmp.Diff([]string{"alice: hello there"}, conn.lines()); diff != "" {
			t.Errorf("%s delivery mismatch (-want +got):\n%s", name, diff)
		}
	}
	if got := srv.Metrics().MessagesRelayed.Load(); got != 1 {
		t.Errorf("MessagesRelayed = %d, want 1", got)
	}
}

func TestSendTargeted(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())
	sess, aliceConn := admitAuthenticated(srv, "alice")
	_, bobConn := admitAuthenticated(srv, "bob")

	srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindMessage, Payload: "send bob psst"})

	if diff := cmp.Diff([]string{"alice: psst"}, bobConn.lines()); diff != "" {
		t.Errorf("bob delivery mismatch (-want +got):\n%s", diff)
	}
	if got := aliceConn.lines(); len(got) != 0 {
		t.Errorf("sender received targeted message: %v", got)
	}
}

func TestSendNoMatchIsSilent(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())
	sess, conn := admitAuthenticated(srv, "alice")

	if done := srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindMessage, Payload: "send nobody hi"}); done {
		t.Error("zero-match send ended the session")
	}
	if got := conn.lines(); len(got) != 0 {
		t.Errorf("zero-match send wrote %v, want nothing", got)
	}
}

func TestSendMalformedIsDropped(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())
	sess, conn := admitAuthenticated(srv, "alice")
	_, peerConn := admitAuthenticated(srv, "bob")

	for _, payload := range []string{"send", "send all", ""} {
		srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindMessage, Payload: payload})
	}

	if got := conn.lines(); len(got) != 0 {
		t.Errorf("malformed send replied %v, want nothing", got)
	}
	if got := peerConn.lines(); len(got) != 0 {
		t.Errorf("malformed send delivered %v, want nothing", got)
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		payload, target, want string
	}{
		{"send all hi", "all", "hi"},
		{"send all hello   spaced  out", "all", "hello   spaced  out"},
		{"send bob one two", "bob", "one two"},
		{"send all ", "all", ""},
		{"send all", "all", ""},
	}
	for _, tt := range tests {
		if got := messageText(tt.payload, tt.target); got != tt.want {
			t.Errorf("messageText(%q, %q) = %q, want %q", tt.payload, tt.target, got, tt.want)
		}
	}
}

func TestLogoutAnnouncesDeparture(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())
	sess, conn := admitAuthenticated(srv, "alice")
	_, peerConn := admitAuthenticated(srv, "bob")

	if done := srv.dispatch(sess, protocol.Envelope{Kind: protocol.KindLogout}); !done {
		t.Fatal("dispatch(logout) = continue, want done")
	}

	if diff := cmp.Diff([]string{"alice left"}, conn.lines()); diff != "" {
		t.Errorf("leaver notice mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"alice left"}, peerConn.lines()); diff != "" {
		t.Errorf("peer notice mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcastRemovesDeadSessions(t *testing.T) {
	srv := newTestServer(credstore.NewMemory())
	_, aliceConn := admitAuthenticated(srv, "alice")
	_, bobConn := admitAuthenticated(srv, "bob")
	bobConn.failWrite = io.ErrClosedPipe

	srv.broadcast("system notice")

	if got := srv.registry.Len(); got != 1 {
		t.Errorf("registry len after broadcast = %d, want 1", got)
	}
	if srv.registry.FindByUsername("bob") != nil {
		t.Error("dead session still registered after broadcast")
	}
	if diff := cmp.Diff([]string{"system notice"}, aliceConn.lines()); diff != "" {
		t.Errorf("alice delivery mismatch (-want +got):\n%s", diff)
	}
}
