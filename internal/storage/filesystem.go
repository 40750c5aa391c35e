// Package storage keeps exported posters on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned by Read when nothing is stored under a key.
	ErrNotFound   = errors.New("storage: not found")
	errNoStore    = errors.New("storage: no store configured")
	errInvalidKey = errors.New("storage: invalid key")
)

// FileStore maps slash-separated keys to files below a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Dir is the root directory.
func (s *FileStore) Dir() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Write stores data under key and returns the cleaned key. Readers never see
// a partial file: data goes to a temp file in the same directory first.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	clean, full, err := s.resolve(ctx, key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create %s: %w", path.Dir(clean), err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: write %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", clean, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("storage: chmod %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("storage: commit %s: %w", clean, err)
	}
	return clean, nil
}

// Read returns what is stored under key, or ErrNotFound.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	clean, full, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("storage: read %s: %w", clean, err)
	}
	return data, nil
}

func (s *FileStore) resolve(ctx context.Context, key string) (clean, full string, err error) {
	if s == nil {
		return "", "", errNoStore
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if clean, err = sanitizeKey(key); err != nil {
		return "", "", err
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// sanitizeKey cleans key into a relative slash path inside the root.
func sanitizeKey(key string) (string, error) {
	raw := strings.TrimLeft(strings.TrimSpace(strings.ReplaceAll(key, `\`, "/")), "/")
	if raw == "" || escapes(raw) {
		return "", errInvalidKey
	}
	clean := path.Clean("/" + raw)[1:]
	if clean == "" {
		return "", errInvalidKey
	}
	return clean, nil
}

// escapes reports whether the relative path p climbs above its start.
func escapes(p string) bool {
	depth := 0
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			if depth--; depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}
