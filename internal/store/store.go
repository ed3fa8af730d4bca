// Package store persists chat messages in a local append-only JSON log. The
// hub and client never touch it; callers use it for disconnected ("local")
// mode and as a fallback when a send fails.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/hubwire/hubwire/pkg/wire"
)

// document is the on-disk shape: {"messages": [...]}.
type document struct {
	Messages []wire.ChatMessage `json:"messages"`
}

// Store reads and writes one JSON log file. Safe for concurrent use within a
// single process.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a Store for the log at path. The file is created lazily on the
// first Append or ClearAll.
func New(path string) *Store {
	return &Store{path: path}
}

// LoadAll returns every logged message. A missing file means an empty log,
// not an error.
func (s *Store) LoadAll() ([]wire.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

// Append adds one message to the end of the log.
func (s *Store) Append(msg wire.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Messages = append(doc.Messages, msg)
	return s.write(doc)
}

// ClearAll resets the log to empty.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(&document{Messages: []wire.ChatMessage{}})
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message log: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse message log: %w", err)
	}
	return &doc, nil
}

func (s *Store) write(doc *document) error {
	if doc.Messages == nil {
		doc.Messages = []wire.ChatMessage{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode message log: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write message log: %w", err)
	}
	return nil
}
