// Package protocol defines the chat message envelope and wire framing.
//
// Client→server frames carry a JSON-encoded Envelope; server→client frames
// carry a plain UTF-8 reply string. Both directions use the same
// length-prefixed frame format: [4-byte big-endian length][payload].
// The one exception is the handshake: the first client frame after connect
// carries the raw username, not an envelope.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxFrameSize is the maximum frame payload size (64KB).
const MaxFrameSize = 65536

// ErrUnknownKind is returned when decoding an envelope with an
// unrecognized kind tag.
var ErrUnknownKind = errors.New("protocol: unknown envelope kind")

// Kind discriminates the five envelope types a client can send.
type Kind uint8

const (
	KindWho Kind = iota
	KindMessage
	KindLogout
	KindLogin
	KindNewUser
)

var kindNames = map[Kind]string{
	KindWho:     "who",
	KindMessage: "message",
	KindLogout:  "logout",
	KindLogin:   "login",
	KindNewUser: "newuser",
}

var kindValues = map[string]Kind{
	"who":     KindWho,
	"message": KindMessage,
	"logout":  KindLogout,
	"login":   KindLogin,
	"newuser": KindNewUser,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalJSON encodes the kind as its lowercase name.
func (k Kind) MarshalJSON() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a kind from its lowercase name. An unknown name is
// an error: a session that sends garbage kinds is torn down, not guessed at.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("protocol: decode kind: %w", err)
	}
	v, ok := kindValues[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	*k = v
	return nil
}

// Envelope is the unit of client→server traffic: a kind tag plus a payload
// string whose interpretation depends entirely on the kind.
type Envelope struct {
	Kind    Kind   `json:"kind"`
	Payload string `json:"payload"`
}

// WriteEnvelope writes a JSON-encoded envelope as one frame.
func WriteEnvelope(c FrameConn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	return c.WriteFrame(data)
}

// ReadEnvelope reads one frame and decodes it as an envelope.
func ReadEnvelope(c FrameConn) (Envelope, error) {
	data, err := c.ReadFrame()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: unmarshal envelope: %w", err)
	}
	return env, nil
}

// WriteReply writes a plain server→client reply string as one frame.
func WriteReply(c FrameConn, text string) error {
	return c.WriteFrame([]byte(text))
}

// ReadReply reads one frame as a plain reply string.
func ReadReply(c FrameConn) (string, error) {
	data, err := c.ReadFrame()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteHandshake sends the raw username announcement that precedes all
// envelope traffic on a new connection.
func WriteHandshake(c FrameConn, username string) error {
	return c.WriteFrame([]byte(username))
}

// ReadHandshake reads the username announcement frame.
func ReadHandshake(c FrameConn) (string, error) {
	data, err := c.ReadFrame()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
