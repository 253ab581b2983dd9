// Package client implements the Parlor client connection: dialing, the
// username handshake, the authentication exchange, and the reply listener.
// The interactive console loop lives in cmd/client.
package client

import (
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/parlorchat/parlor/pkg/protocol"
)

// Client is one connection to a Parlor server.
type Client struct {
	conn protocol.FrameConn
}

// Dial connects to the server and announces the username handshake.
func Dial(addr, username string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	c := &Client{conn: protocol.NewStreamConn(conn)}
	if err := protocol.WriteHandshake(c.conn, username); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("client: handshake: %w", err)
	}
	return c, nil
}

// Send writes one envelope to the server.
func (c *Client) Send(env protocol.Envelope) error {
	return protocol.WriteEnvelope(c.conn, env)
}

// ReadReply blocks until the next server line.
func (c *Client) ReadReply() (string, error) {
	return protocol.ReadReply(c.conn)
}

// Authenticate sends an initial "login <user> <pass>" or
// "newuser <user> <pass>" command and reads the verdict. The server's
// success replies start with "login" (login) or "New" (registration);
// anything else is a denial and the session may retry.
func (c *Client) Authenticate(command string) (reply string, ok bool, err error) {
	kind := protocol.KindNewUser
	wantPrefix := "New"
	if strings.HasPrefix(command, "login") {
		kind = protocol.KindLogin
		wantPrefix = "login"
	}

	if err := c.Send(protocol.Envelope{Kind: kind, Payload: command}); err != nil {
		return "", false, err
	}
	reply, err = c.ReadReply()
	if err != nil {
		return "", false, err
	}
	return reply, strings.HasPrefix(reply, wantPrefix), nil
}

// Listen copies server lines to out until the connection ends. It is meant
// to run on its own goroutine once authentication succeeds.
func (c *Client) Listen(out io.Writer) {
	for {
		line, err := c.ReadReply()
		if err != nil {
			fmt.Fprintln(out, "server closed the connection")
			return
		}
		fmt.Fprintln(out, line)
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
