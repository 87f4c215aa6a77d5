// Package memorystorage provides an in-memory storage used when neither a
// database DSN nor a file name is configured. It reuses the jsondb logic
// without persisting anything.
package memorystorage

import (
	"context"

	"github.com/undefined7887/shortlink/internal/db/jsondb"
	"github.com/undefined7887/shortlink/internal/link"
	"github.com/undefined7887/shortlink/internal/user"
)

// MemoryStorage keeps every record in process memory.
type MemoryStorage struct {
	*jsondb.JSONDB
}

// New returns an empty in-memory storage.
func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: &jsondb.JSONDB{
			Cache: jsondb.CacheStruct{
				Users:     map[string]user.User{},
				Nicknames: map[string]string{},
				Links:     map[string]link.Link{},
			},
		},
	}, nil
}

// Close discards nothing: there is no file behind the storage.
func (theStorage *MemoryStorage) Close() error {
	return nil
}

// Ping always succeeds.
func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
