package mediastore

import (
	"fmt"

	"wxr-go/internal/config"
	"wxr-go/internal/importer"
)

// NewStoreFromConfig creates a MediaStore implementation based on the media
// config type.
func NewStoreFromConfig(cfg config.MediaConfig) (importer.MediaStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.BaseURL), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem media store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot, cfg.BaseURL)
	case "s3":
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unknown media store type: %s", cfg.Type)
	}
}
