package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientConn adapts a dialed gorilla WebSocket connection to transport.Conn.
type ClientConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to a hub's WebSocket endpoint. url must be a ws:// or wss://
// URL. The context bounds the handshake and cancels a pending dial.
func Dial(ctx context.Context, url string) (*ClientConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &ClientConn{conn: conn}, nil
}

// ReadFrame implements transport.Conn. Non-text frames are skipped.
func (c *ClientConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage {
			return data, nil
		}
	}
}

// WriteFrame implements transport.Conn.
func (c *ClientConn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close implements transport.Conn. WriteControl is safe alongside an
// in-flight WriteMessage and is deadline-bounded, so Close never waits
// behind a writer stalled on the peer.
func (c *ClientConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *ClientConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
