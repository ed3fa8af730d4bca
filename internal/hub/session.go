package hub

import (
	"context"
	"log"
	"sync"

	"github.com/hubwire/hubwire/internal/transport"
)

// outgoingBuffer bounds the per-session send queue. A session whose queue is
// full has frames dropped rather than stalling delivery to everyone else.
const outgoingBuffer = 32

// session is one live connection on the hub. The hub exclusively owns the set
// of live sessions; teardown runs exactly once per session no matter how many
// times the transport signals close.
type session struct {
	id       string
	conn     transport.Conn
	outgoing chan []byte
	teardown sync.Once
}

func newSession(id string, conn transport.Conn) *session {
	return &session{
		id:       id,
		conn:     conn,
		outgoing: make(chan []byte, outgoingBuffer),
	}
}

// writeLoop drains the outgoing queue onto the transport. A write failure
// only ends this session's delivery; the hub notices via the read loop.
func (s *session) writeLoop() {
	for frame := range s.outgoing {
		if err := s.conn.WriteFrame(context.Background(), frame); err != nil {
			log.Printf("hub: failed to write to %s: %v", s.conn.RemoteAddr(), err)
			return
		}
	}
}

// enqueue offers a frame to the session without blocking.
func (s *session) enqueue(frame []byte) {
	select {
	case s.outgoing <- frame:
	default:
		log.Printf("hub: send queue full for %s, dropping frame", s.conn.RemoteAddr())
	}
}
