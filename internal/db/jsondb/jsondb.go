// Package jsondb implements the storage interface on top of a single JSON
// file. The whole dataset lives in memory guarded by a mutex and is written
// back on Close. It backs local development and most of the test suite.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/undefined7887/shortlink/internal/link"
	"github.com/undefined7887/shortlink/internal/models"
	"github.com/undefined7887/shortlink/internal/user"
)

// CacheStruct is the serialized layout of the store.
type CacheStruct struct {
	Users     map[string]user.User
	Nicknames map[string]string
	Links     map[string]link.Link
}

// JSONDB is a file-backed implementation of the link and user storage.
type JSONDB struct {
	fileName string

	mu    sync.RWMutex
	Cache CacheStruct
}

func emptyCache() CacheStruct {
	return CacheStruct{
		Users:     map[string]user.User{},
		Nicknames: map[string]string{},
		Links:     map[string]link.Link{},
	}
}

func initDBFile(fileName string) error {
	data, err := json.MarshalIndent(emptyCache(), "", "\t")
	if err != nil {
		return err
	}

	return os.WriteFile(fileName, data, 0644)
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

// New opens (or creates) the JSON database file and loads it into memory.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		Cache:    emptyCache(),
	}

	err := parseJSONFile(db.fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := initDBFile(fileName); err != nil {
			return nil, err
		}
		if err := parseJSONFile(db.fileName, &db.Cache); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// CreateUser inserts a new user and returns the generated identifier.
// A duplicate nickname yields models.ErrConflict.
func (db *JSONDB) CreateUser(ctx context.Context, nickname, passwordHash string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Cache.Nicknames[nickname]; exists {
		return "", models.ErrConflict
	}

	usr := user.User{
		ID:           uuid.New().String(),
		Nickname:     nickname,
		PasswordHash: passwordHash,
	}
	db.Cache.Users[usr.ID] = usr
	db.Cache.Nicknames[nickname] = usr.ID

	return usr.ID, nil
}

// FindUserByNickname fetches a user by the unique nickname.
func (db *JSONDB) FindUserByNickname(ctx context.Context, nickname string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	userID, found := db.Cache.Nicknames[nickname]
	if !found {
		return nil, models.ErrNotFound
	}

	usr := db.Cache.Users[userID]

	return &usr, nil
}

// CreateLink inserts a new link record, enforcing identifier uniqueness.
func (db *JSONDB) CreateLink(ctx context.Context, lnk *link.Link) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Cache.Links[lnk.ID]; exists {
		return models.ErrConflict
	}

	now := time.Now()
	lnk.CreatedAt = now
	lnk.UpdatedAt = now
	db.Cache.Links[lnk.ID] = *lnk

	return nil
}

// FindResolvableLink returns the link only while it has not expired.
func (db *JSONDB) FindResolvableLink(ctx context.Context, linkID string) (*link.Link, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	lnk, found := db.Cache.Links[linkID]
	if !found || !lnk.Resolvable(time.Now()) {
		return nil, models.ErrNotFound
	}

	return &lnk, nil
}

// FindOwnedLink returns the link regardless of expiration, but only for its owner.
func (db *JSONDB) FindOwnedLink(ctx context.Context, linkID, ownerID string) (*link.Link, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	lnk, found := db.Cache.Links[linkID]
	if !found || ownerID == "" || lnk.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}

	return &lnk, nil
}

// ListLinksByOwner returns every link owned by the given user,
// ordered by creation time.
func (db *JSONDB) ListLinksByOwner(ctx context.Context, ownerID string) ([]link.Link, error) {
	return db.filterLinks(ownerID, func(lnk link.Link) bool {
		return true
	})
}

// SearchLinksByOwner returns the owner's links whose destination URL contains
// the given substring. The match is case-sensitive.
func (db *JSONDB) SearchLinksByOwner(ctx context.Context, ownerID, substring string) ([]link.Link, error) {
	return db.filterLinks(ownerID, func(lnk link.Link) bool {
		return strings.Contains(lnk.URL, substring)
	})
}

// RecordAccess atomically adds count redirects to the link statistics.
// A missing link is a no-op.
func (db *JSONDB) RecordAccess(ctx context.Context, linkID string, count int64, accessedAt time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	lnk, found := db.Cache.Links[linkID]
	if !found {
		return nil
	}

	lnk.AccessCount += count
	lnk.LastAccessAt = &accessedAt
	db.Cache.Links[linkID] = lnk

	return nil
}

// UpdateLinkURL replaces the destination URL of the owner's link.
func (db *JSONDB) UpdateLinkURL(ctx context.Context, linkID, ownerID, url string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	lnk, found := db.Cache.Links[linkID]
	if !found || ownerID == "" || lnk.OwnerID != ownerID {
		return models.ErrNotFound
	}

	lnk.URL = url
	lnk.UpdatedAt = time.Now()
	db.Cache.Links[linkID] = lnk

	return nil
}

// DeleteLink removes the owner's link.
func (db *JSONDB) DeleteLink(ctx context.Context, linkID, ownerID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	lnk, found := db.Cache.Links[linkID]
	if !found || ownerID == "" || lnk.OwnerID != ownerID {
		return models.ErrNotFound
	}

	delete(db.Cache.Links, linkID)

	return nil
}

// Ping always succeeds: the dataset is in memory.
func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close writes the dataset back to the JSON file.
func (db *JSONDB) Close() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	jsonData, err := json.MarshalIndent(db.Cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	return os.WriteFile(db.fileName, jsonData, 0644)
}

func (db *JSONDB) filterLinks(ownerID string, predicate func(link.Link) bool) ([]link.Link, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if ownerID == "" {
		return []link.Link{}, nil
	}

	owned := funk.Filter(funk.Values(db.Cache.Links), func(lnk link.Link) bool {
		return lnk.OwnerID == ownerID && predicate(lnk)
	}).([]link.Link)

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})

	return owned, nil
}
