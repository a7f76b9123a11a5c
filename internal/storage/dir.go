// internal/storage/dir.go - Local directory store
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valpere/airphoto_tiler/internal"
)

// DirStore implements Store over a local directory tree
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir. The directory is created on first write.
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, internal.NewError(internal.ErrorCodeConfig, "store directory is required", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeConfig, fmt.Sprintf("invalid store directory: %s", dir), err)
	}
	return &DirStore{root: abs}, nil
}

// List walks the directory tree and returns sorted keys starting with prefix
func (s *DirStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, internal.NewError(internal.ErrorCodeNotFound, fmt.Sprintf("directory not found: %s", s.root), err)
		}
		return nil, internal.NewError(internal.ErrorCodeStorage, fmt.Sprintf("failed to list %s", s.root), err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Read returns the full contents of key
func (s *DirStore) Read(ctx context.Context, key string) ([]byte, error) {
	p := s.path(key)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, internal.NewError(internal.ErrorCodeNotFound, fmt.Sprintf("file not found: %s", p), err)
		}
		return nil, internal.NewError(internal.ErrorCodeStorage, fmt.Sprintf("failed to read file: %s", p), err)
	}
	return data, nil
}

// Write stores data under key, creating parent directories and overwriting existing files
func (s *DirStore) Write(ctx context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return internal.NewError(internal.ErrorCodeStorage, fmt.Sprintf("failed to create directory for %s", p), err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return internal.NewError(internal.ErrorCodeStorage, fmt.Sprintf("failed to write file: %s", p), err)
	}
	return nil
}

// Open opens key for ranged reads
func (s *DirStore) Open(ctx context.Context, key string) (Object, error) {
	p := s.path(key)
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, internal.NewError(internal.ErrorCodeNotFound, fmt.Sprintf("file not found: %s", p), err)
		}
		return nil, internal.NewError(internal.ErrorCodeStorage, fmt.Sprintf("failed to open file: %s", p), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, internal.NewError(internal.ErrorCodeStorage, fmt.Sprintf("cannot access file: %s", p), err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, internal.NewError(internal.ErrorCodeValidation, fmt.Sprintf("path is not a regular file: %s", p), nil)
	}
	return &fileObject{File: f, size: info.Size()}, nil
}

// RasterPath returns the absolute file path of key
func (s *DirStore) RasterPath(key string) string {
	return s.path(key)
}

// Location returns the store root directory
func (s *DirStore) Location() string {
	return s.root
}

// Close is a no-op for directories
func (s *DirStore) Close() error {
	return nil
}

func (s *DirStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

type fileObject struct {
	*os.File
	size int64
}

func (o *fileObject) Size() int64 {
	return o.size
}
