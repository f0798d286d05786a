// Package storage provides the attachment blob store.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mail_server/core/port/out"
)

// DiskStorage implements out.BlobStorage on the local filesystem under
// a fixed root. Logical paths are slash-separated and must stay inside
// the root.
type DiskStorage struct {
	root string
}

// NewDiskStorage creates a DiskStorage rooted at dir.
func NewDiskStorage(dir string) *DiskStorage {
	return &DiskStorage{root: dir}
}

// Save writes a blob, creating parent directories as needed.
func (s *DiskStorage) Save(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", path, err)
	}
	return nil
}

// Open reads a blob back.
func (s *DiskStorage) Open(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", path, err)
	}
	return data, nil
}

// resolve maps a logical path onto the root and rejects escapes.
func (s *DiskStorage) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

// Ensure DiskStorage implements out.BlobStorage
var _ out.BlobStorage = (*DiskStorage)(nil)
