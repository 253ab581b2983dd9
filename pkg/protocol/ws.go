package protocol

import (
	"fmt"
	"net"

	"github.com/gorilla/websocket"
)

// WebSocketConn adapts a WebSocket connection to the FrameConn interface.
// One WebSocket message carries exactly one frame payload, so no length
// prefix is needed; the WebSocket layer does the framing.
type WebSocketConn struct {
	conn *websocket.Conn
}

// NewWebSocketConn wraps an upgraded WebSocket connection.
func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{conn: conn}
}

// ReadFrame blocks until the next text message and returns its payload.
func (c *WebSocketConn) ReadFrame() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("protocol: frame too large: %d bytes", len(payload))
	}
	return payload, nil
}

// WriteFrame sends one payload as a single text message.
func (c *WebSocketConn) WriteFrame(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("protocol: frame too large: %d bytes", len(payload))
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close closes the underlying WebSocket connection.
func (c *WebSocketConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *WebSocketConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
