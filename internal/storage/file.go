package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

type FileConfig struct {
	// Directory is the root every key is resolved against. Defaults to the
	// working directory.
	Directory string
}

type fileStorage struct {
	root string
}

func NewFileStorage(ctx context.Context, f FileConfig) (Storage, error) {
	if f.Directory == "" {
		f.Directory = "."
	}
	root, err := filepath.Abs(f.Directory)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve %s: %w", f.Directory, err)
	}
	return &fileStorage{root: root}, nil
}

func (s *fileStorage) resolve(key string) (string, error) {
	name := filepath.FromSlash(key)
	if !filepath.IsLocal(name) {
		return "", xerrors.Errorf("key %q escapes %s", key, s.root)
	}
	return filepath.Join(s.root, name), nil
}

// Put writes through a temporary file in the target directory and renames it
// into place, so readers never see a truncated image.
func (s *fileStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", xerrors.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return "", xerrors.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", xerrors.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", xerrors.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", xerrors.Errorf("failed to chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", xerrors.Errorf("failed to move capture into %s: %w", target, err)
	}

	return target, nil
}

func (s *fileStorage) Get(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.root, location)
	if err != nil || !filepath.IsLocal(rel) || strings.HasPrefix(filepath.Base(rel), ".") {
		return nil, xerrors.Errorf("%s is not a capture under %s", location, s.root)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, xerrors.Errorf("failed to read capture: %w", err)
	}
	return data, nil
}
