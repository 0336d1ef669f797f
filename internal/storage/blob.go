package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pixil98/go-town/internal/town"
)

// BlobStore keeps post attachments as flat files under one directory, keyed
// by post id. Writes go through a temp file and rename so an interrupted
// process never leaves a partial blob behind.
type BlobStore struct {
	path string
	mu   sync.RWMutex
}

func NewBlobStore(path string) (*BlobStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("checking blob path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blob path %q is not a directory", path)
	}

	return &BlobStore{path: path}, nil
}

func (s *BlobStore) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWrite(s.filePath(id), data, 0644)
}

func (s *BlobStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filePath(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: blob %s", town.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return data, nil
}

func (s *BlobStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.filePath(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: blob %s", town.ErrNotFound, id)
	}
	return err
}

func (s *BlobStore) filePath(id string) string {
	return filepath.Join(s.path, id)
}

// atomicWrite writes data to a temp file then renames it to the target path.
// This prevents partial or empty files if the process is interrupted.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			slog.Warn("failed to remove temp file after rename failure", "path", tmp, "error", removeErr)
		}
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
