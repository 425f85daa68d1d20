package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/talentforge/platform/internal/core/ports"
)

// Storage is a filesystem blob store for development and tests. URLs are
// file paths; nothing serves them over HTTP.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Put(_ context.Context, pathname, _ string, data io.Reader) (ports.StoredObject, error) {
	path := filepath.Join(s.basePath, pathname)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ports.StoredObject{}, fmt.Errorf("create object dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return ports.StoredObject{}, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return ports.StoredObject{}, fmt.Errorf("write file: %w", err)
	}
	return ports.StoredObject{URL: "file://" + path, Pathname: pathname}, nil
}

func (s *Storage) Open(_ context.Context, pathname string) (io.ReadCloser, error) {
	path := filepath.Join(s.basePath, pathname)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
