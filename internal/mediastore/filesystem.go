// Package mediastore provides storage backends for fetched attachment
// content. A stored object's key is its public path below the media root.
package mediastore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"wxr-go/internal/importer"
)

// FileSystemStore writes media files below a root directory, mirroring the
// key's path structure.
type FileSystemStore struct {
	root    string
	baseURL string
}

// NewFileSystemStore creates a filesystem media store rooted at root. Stored
// objects are addressed as baseURL + "/" + key.
func NewFileSystemStore(root, baseURL string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating media root: %w", err)
	}
	return &FileSystemStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put stores size bytes under key. Re-storing an existing key overwrites it
// with identical content; attachments are content-stable at their source URL.
func (s *FileSystemStore) Put(key string, r io.Reader, size int64) (string, error) {
	destPath := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(destPath, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("key escapes media root: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("creating media directory: %w", err)
	}

	if err := writeFileAtomic(destPath, r, size); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

// ValidateSetup verifies that the media root is accessible.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("media root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", s.root)
	}
	return nil
}

// writeFileAtomic writes data from r to destPath using a temp file and
// rename, verifying the byte count.
func writeFileAtomic(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing media data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}

// Compile-time check that FileSystemStore implements the media interface.
var _ importer.MediaStore = (*FileSystemStore)(nil)
