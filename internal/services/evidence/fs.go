// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// FSStore keeps evidence files below a directory. Keys cannot escape it.
type FSStore struct {
	root *os.Root
}

// NewFSStore opens dir, creating it when missing.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open evidence dir: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) error {
	name := filepath.FromSlash(key)
	if err := s.root.MkdirAll(filepath.Dir(name), 0o750); err != nil {
		return err
	}

	f, err := s.root.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.root.Remove(name)
		return err
	}
	return f.Close()
}

func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := s.root.Open(filepath.FromSlash(path.Clean(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	err := s.root.Remove(filepath.FromSlash(path.Clean(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Close releases the directory handle.
func (s *FSStore) Close() error {
	return s.root.Close()
}
