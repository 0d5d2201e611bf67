// Package config handles reading and writing the wxr configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for wxr.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Database DatabaseConfig `toml:"database"`
	Media    MediaConfig    `toml:"media"`
	Import   ImportConfig   `toml:"import"`
	Fetch    FetchConfig    `toml:"fetch"`
}

// DatabaseConfig configures the content store. This uses a tagged union
// pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// MediaConfig configures where fetched attachments are stored. This uses a
// tagged union pattern - the Type field determines which other fields are
// relevant.
type MediaConfig struct {
	Type    string `toml:"type"`     // "filesystem", "s3", or "memory"
	BaseURL string `toml:"base_url"` // public URL prefix for stored media

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// ImportConfig holds the per-run import options.
type ImportConfig struct {
	PrefillPosts          bool   `toml:"prefill_posts"`
	PrefillComments       bool   `toml:"prefill_comments"`
	PrefillTerms          bool   `toml:"prefill_terms"`
	FetchAttachments      bool   `toml:"fetch_attachments"`
	UpdateAttachmentGUIDs bool   `toml:"update_attachment_guids"`
	AggressiveURLSearch   bool   `toml:"aggressive_url_search"`
	DefaultAuthor         string `toml:"default_author"`
	MaxDeferredPasses     int    `toml:"max_deferred_passes"`
}

// FetchConfig holds attachment retrieval settings.
type FetchConfig struct {
	MaxSizeBytes   int64 `toml:"max_size_bytes"` // 0 = unlimited
	TimeoutSeconds int   `toml:"timeout_seconds"`
	MaxRetries     int   `toml:"max_retries"`
}

// NewConfig creates a Config with the documented defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Media: MediaConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "media"),
		},
		Import: ImportConfig{
			PrefillPosts:      true,
			PrefillComments:   true,
			PrefillTerms:      true,
			MaxDeferredPasses: 5,
		},
		Fetch: FetchConfig{
			MaxSizeBytes:   50 * 1024 * 1024,
			TimeoutSeconds: 60,
			MaxRetries:     3,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path. An existing file
// is never overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
