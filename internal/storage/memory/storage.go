package memory

import (
	"context"
	"sync"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
)

// Storage is an in-memory blob backend. State is lost on restart.
type Storage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// Ensure Storage implements the interface
var _ storage.Backend = (*Storage)(nil)

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		blobs: make(map[string][]byte),
	}
}

func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[key]
	if !ok {
		return nil, model.ErrBlobNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (s *Storage) Set(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (s *Storage) Close() error {
	return nil
}

// Keys returns the keys currently stored
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	return keys
}
