package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// FrameConn is one bidirectional frame transport. Implementations are not
// safe for concurrent writers; callers serialize WriteFrame themselves.
type FrameConn interface {
	// ReadFrame blocks until the next frame payload, EOF, or a read error.
	ReadFrame() ([]byte, error)
	// WriteFrame writes one frame payload.
	WriteFrame(payload []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// StreamConn frames a byte-stream connection with 4-byte big-endian length
// prefixes.
type StreamConn struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewStreamConn wraps a stream connection (typically TCP) in frame codec.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{conn: conn, r: bufio.NewReader(conn)}
}

// ReadFrame reads the length prefix and payload of the next frame.
func (c *StreamConn) ReadFrame() ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(c.r, lenBuf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("protocol: frame too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame in a single conn write so
// frames from the same writer never interleave on the wire.
func (c *StreamConn) WriteFrame(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("protocol: frame too large: %d bytes", len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload))) //nolint:gosec // length bounds-checked above
	copy(buf[4:], payload)
	if _, err := c.conn.Write(buf); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
