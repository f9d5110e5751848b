package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FSStore writes artifacts under a base directory, one file per key.
type FSStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFSStore creates baseDir if needed and returns a ready store.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.baseDir, key)
}

// Put writes data to baseDir/key, creating any parent directories the key
// implies (the executor namespaces keys by job: "<job>/<directory>.png").
func (s *FSStore) Put(ctx context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return "file://" + path, nil
}
