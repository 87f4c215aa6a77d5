// Package service contains the business rules of the shortener: identifier
// generation with bounded retry, the cached redirect protocol, ownership
// scoping and account management. It is the only layer with business logic;
// storage and cache are reached through narrow consumer-side interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/undefined7887/shortlink/internal/link"
	"github.com/undefined7887/shortlink/internal/logger"
	"github.com/undefined7887/shortlink/internal/models"
	"github.com/undefined7887/shortlink/internal/user"
)

type linkKeeper interface {
	CreateLink(ctx context.Context, lnk *link.Link) error

	FindResolvableLink(ctx context.Context, linkID string) (*link.Link, error)

	FindOwnedLink(ctx context.Context, linkID, ownerID string) (*link.Link, error)

	ListLinksByOwner(ctx context.Context, ownerID string) ([]link.Link, error)

	SearchLinksByOwner(ctx context.Context, ownerID, substring string) ([]link.Link, error)

	UpdateLinkURL(ctx context.Context, linkID, ownerID, url string) error

	DeleteLink(ctx context.Context, linkID, ownerID string) error
}

type userKeeper interface {
	CreateUser(ctx context.Context, nickname, passwordHash string) (string, error)

	FindUserByNickname(ctx context.Context, nickname string) (*user.User, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	linkKeeper
	userKeeper
	pinger
}

type redirectCache interface {
	Get(ctx context.Context, linkID string) (string, bool, error)

	Set(ctx context.Context, linkID, url string, ttl time.Duration) error

	Invalidate(ctx context.Context, linkID string) error
}

type accessRecorder interface {
	Enqueue(linkID string, accessedAt time.Time)
}

type codeGenerator interface {
	Generate() string
}

// Service orchestrates storage, cache and code generation.
type Service struct {
	db        storage
	cache     redirectCache
	recorder  accessRecorder
	generator codeGenerator

	maxGenerateAttempts int
	cacheTimeout        time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithMaxGenerateAttempts bounds the retry loop for generated identifiers.
func WithMaxGenerateAttempts(attempts int) Option {
	return func(s *Service) {
		s.maxGenerateAttempts = attempts
	}
}

// WithCacheTimeout bounds every cache call on the redirect path. A cache call
// that exceeds it degrades to a storage read.
func WithCacheTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.cacheTimeout = timeout
	}
}

// New creates a Service.
func New(
	db storage,
	cache redirectCache,
	recorder accessRecorder,
	generator codeGenerator,
	optionsProto ...Option,
) *Service {
	s := &Service{
		db:                  db,
		cache:               cache,
		recorder:            recorder,
		generator:           generator,
		maxGenerateAttempts: 5,
		cacheTimeout:        200 * time.Millisecond,
	}
	for _, protoOption := range optionsProto {
		protoOption(s)
	}

	return s
}

// RegisterUser creates an account with a bcrypt-hashed password and returns
// the new user ID. A taken nickname yields models.ErrConflict.
func (s *Service) RegisterUser(ctx context.Context, nickname, password string) (string, error) {
	if nickname == "" || password == "" {
		return "", fmt.Errorf("%w: nickname and password are required", models.ErrValidation)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return s.db.CreateUser(ctx, nickname, string(passwordHash))
}

// AuthenticateUser verifies the nickname/password pair and returns the user
// ID. An unknown nickname and a wrong password both yield models.ErrAuth.
func (s *Service) AuthenticateUser(ctx context.Context, nickname, password string) (string, error) {
	usr, err := s.db.FindUserByNickname(ctx, nickname)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrAuth
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrAuth
	}

	return usr.ID, nil
}

// ShortenLink creates a new link record.
//
// When the caller supplies an alias, it is tried exactly once: a conflict on
// an explicitly requested identifier is final. Without an alias the service
// draws generated candidates until the store accepts one, bounded by
// maxGenerateAttempts; running out of attempts yields
// models.ErrKeyGenerationExhausted.
func (s *Service) ShortenLink(
	ctx context.Context,
	ownerID string,
	url string,
	alias string,
	expireAt time.Time,
) (*link.Link, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: url must not be empty", models.ErrValidation)
	}

	if !expireAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: expire_at must be in the future", models.ErrValidation)
	}

	lnk := &link.Link{
		OwnerID:  ownerID,
		URL:      url,
		ExpireAt: expireAt,
	}

	if alias != "" {
		lnk.ID = alias
		if err := s.db.CreateLink(ctx, lnk); err != nil {
			return nil, err
		}

		return lnk, nil
	}

	for attempt := 0; attempt < s.maxGenerateAttempts; attempt++ {
		lnk.ID = s.generator.Generate()

		err := s.db.CreateLink(ctx, lnk)
		if err == nil {
			return lnk, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
	}

	return nil, models.ErrKeyGenerationExhausted
}

// ResolveLink returns the destination URL for the link id.
//
// The cache is consulted first and trusted on a hit: its TTL never exceeds
// the remaining link lifetime, so no expiration re-check is needed. On a miss
// the storage is asked for a resolvable link and the cache is repopulated
// with the remaining lifetime as TTL. Cache failures of any kind degrade to
// the storage path. Exactly one access record is enqueued per successful
// resolution, after the destination is known; recording problems never fail
// the redirect.
func (s *Service) ResolveLink(ctx context.Context, linkID string) (string, error) {
	url, found := s.cacheGet(ctx, linkID)
	if !found {
		lnk, err := s.db.FindResolvableLink(ctx, linkID)
		if err != nil {
			return "", err
		}

		url = lnk.URL
		s.cacheSet(ctx, linkID, lnk.URL, time.Until(lnk.ExpireAt))
	}

	s.recorder.Enqueue(linkID, time.Now())

	return url, nil
}

// GetLinkStats returns the owner's link with its access statistics,
// expired links included.
func (s *Service) GetLinkStats(ctx context.Context, linkID, ownerID string) (*link.Link, error) {
	return s.db.FindOwnedLink(ctx, linkID, ownerID)
}

// ListLinks returns every link owned by the user.
func (s *Service) ListLinks(ctx context.Context, ownerID string) ([]link.Link, error) {
	return s.db.ListLinksByOwner(ctx, ownerID)
}

// SearchLinks returns the owner's links whose destination URL contains the
// given substring. An empty substring is a caller error.
func (s *Service) SearchLinks(ctx context.Context, ownerID, substring string) ([]link.Link, error) {
	if substring == "" {
		return nil, fmt.Errorf("%w: search substring must not be empty", models.ErrValidation)
	}

	return s.db.SearchLinksByOwner(ctx, ownerID, substring)
}

// UpdateLinkURL changes the destination of the owner's link and invalidates
// the cached entry, so the next resolution re-reads the new URL from the
// storage. The cache entry is never rewritten in place: invalidation avoids
// races with concurrent cache-populating readers.
func (s *Service) UpdateLinkURL(ctx context.Context, linkID, ownerID, url string) error {
	if url == "" {
		return fmt.Errorf("%w: url must not be empty", models.ErrValidation)
	}

	if err := s.db.UpdateLinkURL(ctx, linkID, ownerID, url); err != nil {
		return err
	}

	s.cacheInvalidate(ctx, linkID)

	return nil
}

// DeleteLink removes the owner's link and invalidates the cached entry.
func (s *Service) DeleteLink(ctx context.Context, linkID, ownerID string) error {
	if err := s.db.DeleteLink(ctx, linkID, ownerID); err != nil {
		return err
	}

	s.cacheInvalidate(ctx, linkID)

	return nil
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Service) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cacheTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.cacheTimeout)
}

func (s *Service) cacheGet(ctx context.Context, linkID string) (string, bool) {
	cacheCtx, cancel := s.cacheContext(ctx)
	defer cancel()

	url, found, err := s.cache.Get(cacheCtx, linkID)
	if err != nil {
		logger.Log.Debugln("cache lookup degraded to storage: ", zap.Error(err))

		return "", false
	}

	return url, found
}

func (s *Service) cacheSet(ctx context.Context, linkID, url string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	cacheCtx, cancel := s.cacheContext(ctx)
	defer cancel()

	if err := s.cache.Set(cacheCtx, linkID, url, ttl); err != nil {
		logger.Log.Debugln("cache population failed: ", zap.Error(err))
	}
}

func (s *Service) cacheInvalidate(ctx context.Context, linkID string) {
	cacheCtx, cancel := s.cacheContext(ctx)
	defer cancel()

	if err := s.cache.Invalidate(cacheCtx, linkID); err != nil {
		logger.Log.Debugln("cache invalidation failed: ", zap.Error(err))
	}
}
