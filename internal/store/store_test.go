package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hubwire/hubwire/internal/store"
	"github.com/hubwire/hubwire/pkg/wire"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(filepath.Join(t.TempDir(), "messages.json"))
}

func TestStore_LoadAll_MissingFile(t *testing.T) {
	s := testStore(t)

	msgs, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("LoadAll() = %v, want empty", msgs)
	}
}

func TestStore_AppendAndLoadAll(t *testing.T) {
	s := testStore(t)

	first := wire.ChatMessage{ID: 1, Username: "alice", Text: "hi", Timestamp: "2024-01-01T00:00:00Z"}
	second := wire.ChatMessage{ID: 2, Username: "bob", Text: "hello", Timestamp: "2024-01-01T00:00:01Z"}

	if err := s.Append(first); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(second); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	msgs, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("LoadAll() returned %d messages, want 2", len(msgs))
	}
	if msgs[0] != first || msgs[1] != second {
		t.Errorf("LoadAll() = %v, want [%v %v]", msgs, first, second)
	}
}

func TestStore_ClearAll(t *testing.T) {
	s := testStore(t)

	if err := s.Append(wire.ChatMessage{ID: 1, Username: "alice", Text: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}

	msgs, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("LoadAll() after ClearAll = %v, want empty", msgs)
	}
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("failed to seed corrupt file: %v", err)
	}

	s := store.New(path)
	if _, err := s.LoadAll(); err == nil {
		t.Error("LoadAll() on corrupt file expected error, got nil")
	}
	if err := s.Append(wire.ChatMessage{ID: 1}); err == nil {
		t.Error("Append() on corrupt file expected error, got nil")
	}

	// ClearAll recovers the log.
	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	msgs, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() after ClearAll error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("LoadAll() = %v, want empty", msgs)
	}
}
