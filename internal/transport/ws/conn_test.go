package ws_test

import (
	"context"
	"net"
	"testing"
	"time"

	gobwasws "github.com/gobwas/ws"

	"github.com/hubwire/hubwire/internal/transport"
	"github.com/hubwire/hubwire/internal/transport/ws"
)

func TestConn_ImplementsInterface(t *testing.T) {
	var _ transport.Conn = (*ws.ServerConn)(nil)
	var _ transport.Conn = (*ws.ClientConn)(nil)
}

// startEchoServer accepts one WebSocket connection, upgrades it with gobwas
// and hands the resulting ServerConn to handle.
func startEchoServer(t *testing.T, handle func(transport.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		if _, err := (gobwasws.Upgrader{}).Upgrade(conn); err != nil {
			conn.Close()
			return
		}
		handle(ws.NewServerConn(conn, conn.RemoteAddr().String()))
	}()

	return listener.Addr().String()
}

func TestServerConn_ClientConn_RoundTrip(t *testing.T) {
	received := make(chan []byte, 1)

	addr := startEchoServer(t, func(conn transport.Conn) {
		defer conn.Close()
		frame, err := conn.ReadFrame(context.Background())
		if err != nil {
			return
		}
		received <- frame
		conn.WriteFrame(context.Background(), []byte("pong"))
	})

	client, err := ws.Dial(context.Background(), "ws://"+addr+"/")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	if err := client.WriteFrame(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	select {
	case frame := <-received:
		if string(frame) != "ping" {
			t.Errorf("server received %q, want %q", string(frame), "ping")
		}
	case <-time.After(time.Second):
		t.Fatal("server did not receive frame in time")
	}

	frame, err := client.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if string(frame) != "pong" {
		t.Errorf("client received %q, want %q", string(frame), "pong")
	}
}

func TestServerConn_CloseUnblocksStalledWriter(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := ws.NewServerConn(server, "pipe")

	// Nothing reads the client end, so this write blocks holding the
	// write lock.
	writeDone := make(chan struct{})
	go func() {
		conn.WriteFrame(context.Background(), []byte("stuck"))
		close(writeDone)
	}()
	time.Sleep(50 * time.Millisecond)

	closeDone := make(chan struct{})
	go func() {
		conn.Close()
		close(closeDone)
	}()

	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() blocked behind a stalled writer")
	}
	select {
	case <-writeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled write was not unblocked by Close()")
	}
}

func TestDial_Refused(t *testing.T) {
	// Grab a port that nothing is listening on.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	if _, err := ws.Dial(context.Background(), "ws://"+addr+"/"); err == nil {
		t.Error("Dial() expected error for refused connection, got nil")
	}
}

func TestDial_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ws.Dial(ctx, "ws://127.0.0.1:1/"); err == nil {
		t.Error("Dial() expected error for canceled context, got nil")
	}
}
