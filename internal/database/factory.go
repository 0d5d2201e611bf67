package database

import (
	"fmt"
	"os"
	"path/filepath"

	"wxr-go/internal/config"
	"wxr-go/internal/importer"
)

// NewStoreFromConfig creates a ContentStore implementation based on the
// database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig) (importer.ContentStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "content.db"))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
