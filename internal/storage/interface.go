package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetFile when the object does not exist
var ErrNotFound = errors.New("object not found")

// StorageClient defines the interface for basic object storage operations.
// Paths are slash separated and relative to the client's root.
type StorageClient interface {
	// Close closes the storage client
	Close() error

	// StoreFile writes data at filePath, replacing any existing object
	StoreFile(ctx context.Context, filePath string, fileData []byte) error

	// GetFile retrieves a file from the specified path
	GetFile(ctx context.Context, filePath string) ([]byte, error)

	// ListDir lists object paths under dirPath
	ListDir(ctx context.Context, dirPath string, recursive bool) ([]string, error)

	// FileExists checks if a file exists at the specified path
	FileExists(ctx context.Context, filePath string) (bool, error)
}
