package command

import (
	"fmt"
	"os"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-town/internal/storage"
)

type StorageConfig struct {
	DatabasePath string `json:"database_path"`
	BlobPath     string `json:"blob_path"`
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()

	if c.DatabasePath == "" {
		el.Add(fmt.Errorf("database_path is required"))
	}
	if c.BlobPath == "" {
		el.Add(fmt.Errorf("blob_path is required"))
	} else if _, err := os.Stat(c.BlobPath); err != nil {
		el.Add(fmt.Errorf("invalid blob_path %q: %w", c.BlobPath, err))
	}

	return el.Err()
}

func (c *StorageConfig) buildStore() (*storage.SQLiteStore, error) {
	blobs, err := storage.NewBlobStore(c.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	store, err := storage.NewSQLiteStore(c.DatabasePath, blobs)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return store, nil
}
