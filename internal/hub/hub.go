// Package hub implements the broadcast hub: it owns the canonical set of live
// connections and their presence, and fans every accepted event out to all
// connected parties in the order the hub processed it.
//
// A single listening port accepts both raw TCP clients (newline-delimited
// JSON) and WebSocket clients (HTTP upgrade), distinguished by peeking at the
// first bytes of the connection.
package hub

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"

	"github.com/hubwire/hubwire/internal/transport"
	"github.com/hubwire/hubwire/internal/transport/tcp"
	wstransport "github.com/hubwire/hubwire/internal/transport/ws"
	"github.com/hubwire/hubwire/pkg/wire"
)

// BindError reports that the hub could not acquire its listening endpoint.
// Fatal to Start; the hub never retries on its own.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("cannot bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Hub accepts connections and runs the presence/message protocol. The zero
// value is not usable; construct with New. Multiple hubs may coexist
// in-process, each with isolated presence and message ids.
type Hub struct {
	mu            sync.RWMutex
	sessions      map[*session]bool
	pending       map[net.Conn]bool
	presence      *presenceRegistry
	nextMessageID int64

	listener net.Listener
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Hub that is not yet listening.
func New() *Hub {
	return &Hub{
		sessions:      make(map[*session]bool),
		pending:       make(map[net.Conn]bool),
		presence:      newPresenceRegistry(),
		nextMessageID: 1,
		quit:          make(chan struct{}),
	}
}

// Start begins accepting connections on address. It returns a *BindError when
// the address is unavailable, and nil once the accept loop is running.
func (h *Hub) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return &BindError{Addr: address, Err: err}
	}
	h.listener = listener

	log.Printf("hub: listening on %s (TCP and WebSocket)", listener.Addr().String())

	h.wg.Add(1)
	go h.acceptLoop()

	return nil
}

// Stop closes the listening endpoint and all live connections. Idempotent;
// calling it on a hub that never started is a no-op.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
		if h.listener != nil {
			h.listener.Close()
		}

		h.mu.RLock()
		open := make([]*session, 0, len(h.sessions))
		for s := range h.sessions {
			open = append(open, s)
		}
		detecting := make([]net.Conn, 0, len(h.pending))
		for conn := range h.pending {
			detecting = append(detecting, conn)
		}
		h.mu.RUnlock()

		for _, s := range open {
			s.conn.Close()
		}
		for _, conn := range detecting {
			conn.Close()
		}

		h.wg.Wait()
	})
}

// Addr returns the listening address, or "" before Start.
func (h *Hub) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return ""
}

// SessionCount returns the number of live connections.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// UserCount returns the number of joined users.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence.size()
}

func (h *Hub) acceptLoop() {
	defer h.wg.Done()

	for {
		conn, err := h.listener.Accept()
		if err != nil {
			select {
			case <-h.quit:
				return
			default:
				log.Printf("hub: failed to accept connection: %v", err)
				continue
			}
		}

		h.wg.Add(1)
		go h.handleConn(conn)
	}
}

// handleConn determines the transport by peeking at the first bytes, then
// hands the framed connection to the protocol loop.
func (h *Hub) handleConn(netConn net.Conn) {
	defer h.wg.Done()

	// Tracked in pending so Stop can cut short a connection that is still
	// sitting in the detection window.
	h.mu.Lock()
	select {
	case <-h.quit:
		h.mu.Unlock()
		netConn.Close()
		return
	default:
	}
	h.pending[netConn] = true
	h.mu.Unlock()
	untrack := func() {
		h.mu.Lock()
		delete(h.pending, netConn)
		h.mu.Unlock()
	}

	// A client that sends nothing within the detection window is dropped.
	netConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(netConn)
	prefix, err := reader.Peek(4)
	if err != nil {
		untrack()
		netConn.Close()
		return
	}
	netConn.SetReadDeadline(time.Time{})

	var conn transport.Conn
	if isHTTPPrefix(prefix) {
		bc := &bufferedConn{Conn: netConn, reader: reader}
		if _, err := (ws.Upgrader{}).Upgrade(bc); err != nil {
			log.Printf("hub: websocket upgrade failed for %s: %v", netConn.RemoteAddr(), err)
			untrack()
			netConn.Close()
			return
		}
		conn = wstransport.NewServerConn(bc, netConn.RemoteAddr().String())
	} else {
		conn = tcp.NewConnWithReader(netConn, reader)
	}

	h.serve(netConn, conn)
}

// isHTTPPrefix reports whether the connection opens like an HTTP request.
// Raw TCP clients send JSON frames, which never start with a method name.
func isHTTPPrefix(prefix []byte) bool {
	for _, method := range [][]byte{
		[]byte("GET "), []byte("POST"), []byte("PUT "), []byte("HEAD"),
		[]byte("OPTI"), []byte("PATC"), []byte("DELE"), []byte("CONN"),
	} {
		if bytes.HasPrefix(prefix, method) {
			return true
		}
	}
	return false
}

// serve runs the per-connection protocol loop until the transport closes.
func (h *Hub) serve(raw net.Conn, conn transport.Conn) {
	s := newSession(uuid.NewString(), conn)

	// The pending entry moves to sessions under one lock so Stop always
	// sees the connection in exactly one of the two sets.
	h.mu.Lock()
	delete(h.pending, raw)
	select {
	case <-h.quit:
		h.mu.Unlock()
		conn.Close()
		return
	default:
	}
	h.sessions[s] = true
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		s.writeLoop()
	}()

	defer h.closeSession(s)

	for {
		frame, err := conn.ReadFrame(context.Background())
		if err != nil {
			return
		}

		ev, err := wire.Decode(frame)
		if err != nil {
			log.Printf("hub: dropping malformed frame from %s: %v", conn.RemoteAddr(), err)
			continue
		}

		switch ev.Name {
		case wire.EventJoin:
			h.handleJoin(s, ev)
		case wire.EventSendMessage:
			h.handleSendMessage(s, ev)
		default:
			log.Printf("hub: dropping unknown event %q from %s", ev.Name, conn.RemoteAddr())
		}
	}
}

// handleJoin records the display name and announces it. The registry update
// happens before either send, and both sends reflect the post-join state.
func (h *Hub) handleJoin(s *session, ev *wire.Event) {
	var join wire.Join
	if err := ev.Bind(&join); err != nil {
		log.Printf("hub: dropping invalid join from %s: %v", s.conn.RemoteAddr(), err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.presence.set(s.id, join.DisplayName)
	log.Printf("hub: %s joined (%s)", join.DisplayName, s.id)

	joined, err := wire.Encode(wire.EventUserJoined, wire.UserJoined{
		DisplayName:  join.DisplayName,
		ConnectionID: s.id,
		TotalUsers:   h.presence.size(),
	})
	if err != nil {
		log.Printf("hub: failed to encode user-joined: %v", err)
		return
	}
	h.broadcastLocked(joined)

	list, err := wire.Encode(wire.EventUserList, wire.UserList{
		DisplayNames: h.presence.list(),
	})
	if err != nil {
		log.Printf("hub: failed to encode user-list: %v", err)
		return
	}
	s.enqueue(list)
}

// handleSendMessage stamps the message with a fresh id and hub-side timestamp
// and fans it out to every session, the sender included. Ids are assigned
// under the hub lock, so they strictly increase in processing order.
func (h *Hub) handleSendMessage(s *session, ev *wire.Event) {
	var send wire.SendMessage
	if err := ev.Bind(&send); err != nil {
		log.Printf("hub: dropping invalid send-message from %s: %v", s.conn.RemoteAddr(), err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	msg := wire.ChatMessage{
		ID:        h.nextMessageID,
		Username:  h.presence.name(s.id),
		Text:      send.Text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	h.nextMessageID++

	frame, err := wire.Encode(wire.EventNewMessage, msg)
	if err != nil {
		log.Printf("hub: failed to encode new-message: %v", err)
		return
	}

	log.Printf("hub: %s: %s", msg.Username, msg.Text)
	h.broadcastLocked(frame)
}

// closeSession tears a session down exactly once: the presence entry and the
// session leave the hub in one atomic step, and the departure is announced to
// everyone still connected.
func (h *Hub) closeSession(s *session) {
	s.teardown.Do(func() {
		h.mu.Lock()
		delete(h.sessions, s)
		close(s.outgoing)

		name, joined := h.presence.remove(s.id)
		if joined {
			log.Printf("hub: %s disconnected", name)
			left, err := wire.Encode(wire.EventUserLeft, wire.UserLeft{
				DisplayName: name,
				TotalUsers:  h.presence.size(),
			})
			if err == nil {
				h.broadcastLocked(left)
			}
		}
		h.mu.Unlock()

		s.conn.Close()
	})
}

// broadcastLocked fans a frame out to every live session without blocking on
// any of them. Callers hold h.mu.
func (h *Hub) broadcastLocked(frame []byte) {
	for s := range h.sessions {
		s.enqueue(frame)
	}
}

// bufferedConn carries bytes already peeked during protocol detection.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}
