// Package ws provides the WebSocket transport. The hub side speaks gobwas/ws
// directly over an accepted net.Conn; the dial side uses gorilla/websocket.
package ws

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ServerConn adapts an upgraded server-side WebSocket to transport.Conn.
// One wire event travels per text frame.
type ServerConn struct {
	rw         io.ReadWriteCloser
	remoteAddr string
	writeMu    sync.Mutex
}

// NewServerConn wraps an upgraded connection. rw must carry any bytes
// buffered during the HTTP upgrade.
func NewServerConn(rw io.ReadWriteCloser, remoteAddr string) *ServerConn {
	return &ServerConn{rw: rw, remoteAddr: remoteAddr}
}

// ReadFrame implements transport.Conn.
func (c *ServerConn) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := wsutil.ReadClientText(c.rw)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFrame implements transport.Conn.
func (c *ServerConn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerText(c.rw, frame)
}

// Close implements transport.Conn. The close frame is best effort: a writer
// stalled on the peer holds writeMu, and Close must not wait behind it or
// hub shutdown would wait too. Closing rw unblocks any such writer.
func (c *ServerConn) Close() error {
	if c.writeMu.TryLock() {
		if d, ok := c.rw.(interface{ SetWriteDeadline(time.Time) error }); ok {
			_ = d.SetWriteDeadline(time.Now().Add(time.Second))
		}
		_ = wsutil.WriteServerMessage(c.rw, ws.OpClose, nil)
		c.writeMu.Unlock()
	}
	return c.rw.Close()
}

// RemoteAddr implements transport.Conn.
func (c *ServerConn) RemoteAddr() string {
	return c.remoteAddr
}
