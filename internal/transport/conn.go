// Package transport abstracts the reliable, ordered, message-framed channel
// between a chat client and the hub.
package transport

import "context"

// Conn is a bidirectional connection carrying whole protocol frames. Both the
// raw TCP and the WebSocket transports satisfy this interface, which keeps
// hub and client logic transport-agnostic.
type Conn interface {
	// ReadFrame reads a single protocol frame (one wire event).
	// Returns io.EOF when the connection is closed.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame sends a single protocol frame.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
