package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	domrepo "FXForecast/internal/domain/repository"
	"FXForecast/pkg/cache"
)

// FileArtifactStore keeps artifacts as files under a directory.
type FileArtifactStore struct {
	dir string
}

var _ domrepo.ArtifactStore = (*FileArtifactStore)(nil)

func NewFileArtifactStore(dir string) (*FileArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileArtifactStore{dir: dir}, nil
}

// Put writes through a temporary file and renames it into place.
func (s *FileArtifactStore) Put(_ context.Context, name string, data []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact %s: %w", name, err)
	}
	return nil
}

func (s *FileArtifactStore) Get(_ context.Context, name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, domrepo.ErrArtifactNotFound)
	}
	return data, err
}

func (s *FileArtifactStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// CacheArtifactStore keeps artifacts in a cache.Service without expiry.
type CacheArtifactStore struct {
	c cache.Service
}

var _ domrepo.ArtifactStore = (*CacheArtifactStore)(nil)

func NewCacheArtifactStore(c cache.Service) *CacheArtifactStore {
	return &CacheArtifactStore{c: c}
}

func (s *CacheArtifactStore) Put(ctx context.Context, name string, data []byte) error {
	return s.c.Set(ctx, cache.Key("artifact", name), data, 0)
}

func (s *CacheArtifactStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.c.Get(ctx, cache.Key("artifact", name))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("%s: %w", name, domrepo.ErrArtifactNotFound)
	}
	return data, err
}
