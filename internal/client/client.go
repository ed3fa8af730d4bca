// Package client implements the chat client: it manages the lifecycle of a
// single connection to a hub and translates the wire protocol into a small
// callback surface, so callers never touch the transport.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/hubwire/hubwire/internal/transport"
	"github.com/hubwire/hubwire/internal/transport/ws"
	"github.com/hubwire/hubwire/pkg/wire"
)

// State is the client connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrAlreadyConnected is returned by Connect when the client is not in the
// disconnected state.
var ErrAlreadyConnected = errors.New("connect already in progress or established")

// ErrNotConnected is returned by SendMessage when the client is not
// connected. Callers use it to degrade gracefully, for example by falling
// back to the local message log.
var ErrNotConnected = errors.New("not connected to server")

// ConnectionError wraps the transport failure behind a failed Connect.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Client holds at most one active connection at a time. All callbacks are
// single-slot: registering a new one replaces the prior, and events with no
// registered callback are dropped, not queued. Callbacks run on the client's
// read goroutine.
type Client struct {
	mu     sync.Mutex
	state  State
	conn   transport.Conn
	cancel context.CancelFunc
	gen    uint64

	cbMu           sync.Mutex
	onMessage      func(wire.ChatMessage)
	onUserJoined   func(wire.UserJoined)
	onUserLeft     func(wire.UserLeft)
	onUserList     func(wire.UserList)
	onConnected    func()
	onDisconnected func(error)
}

// New creates a disconnected Client.
func New() *Client {
	return &Client{}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the hub at serverAddr, emits a join event carrying
// displayName and starts receiving. Valid only while disconnected; otherwise
// it returns ErrAlreadyConnected. A dial or handshake failure returns a
// *ConnectionError and leaves the client disconnected. Disconnect (or ctx
// cancellation) unblocks a pending Connect promptly.
func (c *Client) Connect(ctx context.Context, serverAddr, displayName string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	dialCtx, cancel := context.WithCancel(ctx)
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := ws.Dial(dialCtx, serverURL(serverAddr))
	if err != nil {
		c.reset(gen, cancel)
		return &ConnectionError{Err: err}
	}

	join, err := wire.Encode(wire.EventJoin, wire.Join{DisplayName: displayName})
	if err == nil {
		err = conn.WriteFrame(dialCtx, join)
	}
	if err != nil {
		conn.Close()
		c.reset(gen, cancel)
		return &ConnectionError{Err: err}
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// Disconnect or a newer Connect raced the dial; honor it.
		c.mu.Unlock()
		cancel()
		conn.Close()
		return &ConnectionError{Err: context.Canceled}
	}
	c.state = StateConnected
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	if cb := c.connectedCallback(); cb != nil {
		cb()
	}
	return nil
}

// SendMessage emits a send-message event. Returns ErrNotConnected unless the
// client is connected; no wire event is emitted in that case.
func (c *Client) SendMessage(text string) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	frame, err := wire.Encode(wire.EventSendMessage, wire.SendMessage{Text: text})
	if err != nil {
		return err
	}
	return conn.WriteFrame(context.Background(), frame)
}

// Disconnect closes the connection and returns the client to the
// disconnected state. Idempotent. It also fails a pending Connect. The
// disconnected callback fires only for unsolicited closes, not for this.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// reset unwinds one failed connect attempt. The generation check keeps a
// stale attempt from touching state owned by a newer Connect.
func (c *Client) reset(gen uint64, cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	if c.gen == gen {
		c.cancel = nil
		c.state = StateDisconnected
	}
	c.mu.Unlock()
}

// readLoop receives frames until the transport closes. On an unsolicited
// close it transitions to disconnected and invokes the disconnected
// callback; there is no automatic reconnect, that policy belongs to the
// caller.
func (c *Client) readLoop(conn transport.Conn) {
	for {
		frame, err := conn.ReadFrame(context.Background())
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		ev, err := wire.Decode(frame)
		if err != nil {
			log.Printf("client: dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(ev)
	}
}

// handleClose distinguishes an unsolicited transport close from a teardown
// the client itself initiated: after Disconnect (or a newer Connect) the
// stored conn no longer matches this loop's.
func (c *Client) handleClose(conn transport.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if cb := c.disconnectedCallback(); cb != nil {
		cb(err)
	}
}

func (c *Client) dispatch(ev *wire.Event) {
	switch ev.Name {
	case wire.EventNewMessage:
		var msg wire.ChatMessage
		if err := ev.Bind(&msg); err != nil {
			log.Printf("client: dropping invalid new-message: %v", err)
			return
		}
		if cb := c.messageCallback(); cb != nil {
			cb(msg)
		}
	case wire.EventUserJoined:
		var joined wire.UserJoined
		if err := ev.Bind(&joined); err != nil {
			log.Printf("client: dropping invalid user-joined: %v", err)
			return
		}
		if cb := c.userJoinedCallback(); cb != nil {
			cb(joined)
		}
	case wire.EventUserLeft:
		var left wire.UserLeft
		if err := ev.Bind(&left); err != nil {
			log.Printf("client: dropping invalid user-left: %v", err)
			return
		}
		if cb := c.userLeftCallback(); cb != nil {
			cb(left)
		}
	case wire.EventUserList:
		var list wire.UserList
		if err := ev.Bind(&list); err != nil {
			log.Printf("client: dropping invalid user-list: %v", err)
			return
		}
		if cb := c.userListCallback(); cb != nil {
			cb(list)
		}
	default:
		log.Printf("client: dropping unknown event %q", ev.Name)
	}
}

// OnMessage registers the new-message callback.
func (c *Client) OnMessage(cb func(wire.ChatMessage)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onMessage = cb
}

// OnUserJoined registers the user-joined callback.
func (c *Client) OnUserJoined(cb func(wire.UserJoined)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onUserJoined = cb
}

// OnUserLeft registers the user-left callback.
func (c *Client) OnUserLeft(cb func(wire.UserLeft)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onUserLeft = cb
}

// OnUserList registers the user-list callback, invoked with the presence
// snapshot the hub sends to a joining connection.
func (c *Client) OnUserList(cb func(wire.UserList)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onUserList = cb
}

// OnConnected registers the callback invoked after a successful Connect.
func (c *Client) OnConnected(cb func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onConnected = cb
}

// OnDisconnected registers the callback invoked on an unsolicited transport
// close. Reconnect policy, including any backoff, is the caller's call.
func (c *Client) OnDisconnected(cb func(error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onDisconnected = cb
}

func (c *Client) messageCallback() func(wire.ChatMessage) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.onMessage
}

func (c *Client) userJoinedCallback() func(wire.UserJoined) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.onUserJoined
}

func (c *Client) userLeftCallback() func(wire.UserLeft) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.onUserLeft
}

func (c *Client) userListCallback() func(wire.UserList) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.onUserList
}

func (c *Client) connectedCallback() func() {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.onConnected
}

func (c *Client) disconnectedCallback() func(error) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.onDisconnected
}

// serverURL normalizes a host:port address into a WebSocket URL. Addresses
// that already carry a scheme pass through unchanged.
func serverURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "ws://" + addr + "/"
}
