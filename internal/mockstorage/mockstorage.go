// Package mockstorage provides testify-based mock implementations of the
// storage and cache interfaces consumed by the service layer.
// It is used to simulate conflicts, failures and timeouts in unit tests.
package mockstorage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/undefined7887/shortlink/internal/link"
	"github.com/undefined7887/shortlink/internal/user"
)

// StorageMock is a testify mock implementing the storage interface
// used by the service layer.
type StorageMock struct {
	mock.Mock
}

// CreateUser mocks user creation and returns a generated ID.
func (m *StorageMock) CreateUser(ctx context.Context, nickname, passwordHash string) (string, error) {
	args := m.Called(ctx, nickname, passwordHash)
	return args.String(0), args.Error(1)
}

// FindUserByNickname mocks fetching a user by nickname.
func (m *StorageMock) FindUserByNickname(ctx context.Context, nickname string) (*user.User, error) {
	args := m.Called(ctx, nickname)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

// CreateLink mocks inserting a new link record.
func (m *StorageMock) CreateLink(ctx context.Context, lnk *link.Link) error {
	args := m.Called(ctx, lnk)
	return args.Error(0)
}

// FindResolvableLink mocks the expiration-aware link lookup.
func (m *StorageMock) FindResolvableLink(ctx context.Context, linkID string) (*link.Link, error) {
	args := m.Called(ctx, linkID)
	lnk, _ := args.Get(0).(*link.Link)
	return lnk, args.Error(1)
}

// FindOwnedLink mocks the ownership-scoped link lookup.
func (m *StorageMock) FindOwnedLink(ctx context.Context, linkID, ownerID string) (*link.Link, error) {
	args := m.Called(ctx, linkID, ownerID)
	lnk, _ := args.Get(0).(*link.Link)
	return lnk, args.Error(1)
}

// ListLinksByOwner mocks listing the owner's links.
func (m *StorageMock) ListLinksByOwner(ctx context.Context, ownerID string) ([]link.Link, error) {
	args := m.Called(ctx, ownerID)
	links, _ := args.Get(0).([]link.Link)
	return links, args.Error(1)
}

// SearchLinksByOwner mocks the substring search over the owner's links.
func (m *StorageMock) SearchLinksByOwner(ctx context.Context, ownerID, substring string) ([]link.Link, error) {
	args := m.Called(ctx, ownerID, substring)
	links, _ := args.Get(0).([]link.Link)
	return links, args.Error(1)
}

// RecordAccess mocks the atomic statistics update.
func (m *StorageMock) RecordAccess(ctx context.Context, linkID string, count int64, accessedAt time.Time) error {
	args := m.Called(ctx, linkID, count, accessedAt)
	return args.Error(0)
}

// UpdateLinkURL mocks the ownership-scoped destination update.
func (m *StorageMock) UpdateLinkURL(ctx context.Context, linkID, ownerID, url string) error {
	args := m.Called(ctx, linkID, ownerID, url)
	return args.Error(0)
}

// DeleteLink mocks the ownership-scoped deletion.
func (m *StorageMock) DeleteLink(ctx context.Context, linkID, ownerID string) error {
	args := m.Called(ctx, linkID, ownerID)
	return args.Error(0)
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks closing the storage.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// CacheMock is a testify mock implementing the redirect cache interface
// used by the service layer.
type CacheMock struct {
	mock.Mock
}

// Get mocks the cache lookup.
func (m *CacheMock) Get(ctx context.Context, linkID string) (string, bool, error) {
	args := m.Called(ctx, linkID)
	return args.String(0), args.Bool(1), args.Error(2)
}

// Set mocks the cache population.
func (m *CacheMock) Set(ctx context.Context, linkID, url string, ttl time.Duration) error {
	args := m.Called(ctx, linkID, url, ttl)
	return args.Error(0)
}

// Invalidate mocks the cache entry removal.
func (m *CacheMock) Invalidate(ctx context.Context, linkID string) error {
	args := m.Called(ctx, linkID)
	return args.Error(0)
}
