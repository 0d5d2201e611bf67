package testutil

import (
	"wxr-go/internal/mediastore"
)

// NewTestMediaStore creates a new in-memory media store for testing.
func NewTestMediaStore() *mediastore.MemoryStore {
	return mediastore.NewMemoryStore("https://media.example.com")
}
