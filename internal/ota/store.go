package ota

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStore persists uploaded update binaries on disk.
//
// Files are stored flat under the configured directory. The checksum of
// every stored file is computed while writing so the catalog entry and
// the bytes on disk can never disagree.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ota directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes an uploaded binary to disk and returns its SHA-256
// checksum as a hex string. An existing file with the same name is
// replaced.
func (s *FileStore) Save(filename string, r io.Reader) (checksum string, size int64, err error) {
	if err := ValidateFilename(filename); err != nil {
		return "", 0, err
	}

	path := filepath.Join(s.dir, filename)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("creating ota file: %w", err)
	}

	hasher := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, hasher), r)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return "", 0, fmt.Errorf("writing ota file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("closing ota file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("finalising ota file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// Open opens a stored binary for reading. Returns ErrFileNotFound if the
// file does not exist.
func (s *FileStore) Open(filename string) (*os.File, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("opening ota file: %w", err)
	}
	return f, nil
}

// Path returns the on-disk path for a stored binary without checking
// existence.
func (s *FileStore) Path(filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filename), nil
}
