package mediastore

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"wxr-go/internal/importer"
)

// MemoryStore keeps media objects in memory. Use in tests.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
}

// NewMemoryStore creates an in-memory media store.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

// Put stores size bytes under key.
func (s *MemoryStore) Put(key string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading media data: %w", err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return s.baseURL + "/" + key, nil
}

// ValidateSetup always succeeds for the in-memory store.
func (s *MemoryStore) ValidateSetup() error { return nil }

// Object returns a stored object's bytes, for test assertions.
func (s *MemoryStore) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

var _ importer.MediaStore = (*MemoryStore)(nil)
