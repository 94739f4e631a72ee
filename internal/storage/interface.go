package storage

import (
	"context"
)

// Blob keys for the two persisted tables
const (
	KeyLogins = "logins"
	KeyWorlds = "worlds"
)

// Backend stores named blobs.
// Get returns model.ErrBlobNotFound when nothing has been stored under key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte) error
	Close() error
}
