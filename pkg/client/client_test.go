package client

import (
	"net"
	"strings"
	"testing"

	"github.com/parlorchat/parlor/pkg/protocol"
)

// pipeServer runs a scripted peer: it reads one envelope, records it, and
// answers with the given reply.
func pipeServer(t *testing.T, reply string) (*Client, <-chan protocol.Envelope) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() { _ = clientEnd.Close(); _ = serverEnd.Close() })

	got := make(chan protocol.Envelope, 1)
	go func() {
		conn := protocol.NewStreamConn(serverEnd)
		env, err := protocol.ReadEnvelope(conn)
		if err != nil {
			close(got)
			return
		}
		got <- env
		_ = protocol.WriteReply(conn, reply)
	}()

	return &Client{conn: protocol.NewStreamConn(clientEnd)}, got
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		reply    string
		wantKind protocol.Kind
		wantOK   bool
	}{
		{
			name:     "login confirmed",
			command:  "login alice pass1",
			reply:    "login confirmed",
			wantKind: protocol.KindLogin,
			wantOK:   true,
		},
		{
			name:     "login denied",
			command:  "login alice wrong1",
			reply:    "Denied. Login credentials don't match or don't exist.",
			wantKind: protocol.KindLogin,
			wantOK:   false,
		},
		{
			name:     "registration confirmed",
			command:  "newuser bob pass1",
			reply:    "New user created. Login confirmed.",
			wantKind: protocol.KindNewUser,
			wantOK:   true,
		},
		{
			name:     "registration denied",
			command:  "newuser bob pass1",
			reply:    "Your parameters are bad or the UserId is already being used",
			wantKind: protocol.KindNewUser,
			wantOK:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, got := pipeServer(t, tt.reply)

			reply, ok, err := c.Authenticate(tt.command)
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if reply != tt.reply {
				t.Errorf("reply = %q, want %q", reply, tt.reply)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}

			env := <-got
			if env.Kind != tt.wantKind {
				t.Errorf("sent kind = %v, want %v", env.Kind, tt.wantKind)
			}
			if env.Payload != tt.command {
				t.Errorf("sent payload = %q, want %q", env.Payload, tt.command)
			}
		})
	}
}

func TestListenCopiesLines(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	c := &Client{conn: protocol.NewStreamConn(clientEnd)}

	var out strings.Builder
	done := make(chan struct{})
	go func() {
		c.Listen(&out)
		close(done)
	}()

	conn := protocol.NewStreamConn(serverEnd)
	for _, line := range []string{"bob joins.", "bob: hi"} {
		if err := protocol.WriteReply(conn, line); err != nil {
			t.Fatal(err)
		}
	}
	_ = serverEnd.Close()
	<-done

	want := "bob joins.\nbob: hi\nserver closed the connection\n"
	if got := out.String(); got != want {
		t.Errorf("Listen output = %q, want %q", got, want)
	}
}

func TestDialSendsHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	handshake := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(handshake)
			return
		}
		defer func() { _ = conn.Close() }()
		name, err := protocol.ReadHandshake(protocol.NewStreamConn(conn))
		if err != nil {
			close(handshake)
			return
		}
		handshake <- name
	}()

	c, err := Dial(ln.Addr().String(), "alice")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	if got := <-handshake; got != "alice" {
		t.Errorf("handshake = %q, want %q", got, "alice")
	}
}
