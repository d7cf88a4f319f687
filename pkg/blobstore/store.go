package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

var (
	// ErrNotFound is returned when a blob does not exist
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned when staging onto a path that is already taken
	ErrExists = errors.New("blob already exists")
)

// Store is the staging area used by sessions and the archive assembler
type Store interface {
	// Stage writes the stream to path and returns the number of bytes written
	Stage(ctx context.Context, path string, r io.Reader) (int64, error)
	// Open returns a reader over the blob at path
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes the blob at path; missing blobs are ignored
	Delete(ctx context.Context, path string) error
}

// Info describes a stored blob
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FSStore is a Store backed by an afero filesystem
type FSStore struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewFSStore creates a store on top of fs
func NewFSStore(fs afero.Fs, logger zerolog.Logger) *FSStore {
	return &FSStore{
		fs:     fs,
		logger: logger.With().Str("module", "blobstore").Logger(),
	}
}

// NewDiskStore creates a store rooted at dir on the local disk
func NewDiskStore(dir string, logger zerolog.Logger) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	fs := afero.NewBasePathFs(afero.NewOsFs(), dir)
	store := NewFSStore(fs, logger)
	store.logger.Info().Str("dir", dir).Msg("Disk blob store initialized")

	return store, nil
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(logger zerolog.Logger) *FSStore {
	return NewFSStore(afero.NewMemMapFs(), logger)
}

// Stage writes r to a new blob at path
func (s *FSStore) Stage(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return 0, fmt.Errorf("failed to create blob: %w", err)
	}

	written, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		// Partial blobs are never left behind
		if rmErr := s.fs.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove partial blob")
		}
		return 0, fmt.Errorf("failed to write blob: %w", copyErr)
	}

	s.logger.Debug().
		Str("path", path).
		Int64("size", written).
		Msg("Blob staged")

	return written, nil
}

// Open opens the blob at path for reading
func (s *FSStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	return f, nil
}

// Delete removes the blob at path
func (s *FSStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("Blob deleted")
	return nil
}

// List returns every blob stored under dir, sorted by path
func (s *FSStore) List(ctx context.Context, dir string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := s.fs.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	var blobs []Info
	err := afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		blobs = append(blobs, Info{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	sort.Slice(blobs, func(i, j int) bool {
		return blobs[i].Path < blobs[j].Path
	})

	return blobs, nil
}
