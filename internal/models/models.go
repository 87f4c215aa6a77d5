// Package models contains the request/response payloads of the HTTP API
// and the sentinel errors shared between the storage, service and router layers.
package models

import (
	"errors"
	"time"
)

// ErrValidation is returned for malformed input, before any side effect.
var ErrValidation = errors.New("validation failed")

// ErrConflict is returned when a link identifier or a user nickname already exists.
var ErrConflict = errors.New("identifier already exists")

// ErrNotFound is returned for a missing or expired link, and also for an
// ownership mismatch: non-owners must not be able to probe link existence.
var ErrNotFound = errors.New("not found")

// ErrAuth is returned when a required credential is missing or does not verify.
var ErrAuth = errors.New("authentication failed")

// ErrKeyGenerationExhausted is returned when the bounded number of attempts
// to generate a unique short code is exceeded.
var ErrKeyGenerationExhausted = errors.New("the number of attempts to generate a unique key has been exceeded")

type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterResponse struct {
	ID string `json:"id"`
}

type TokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ShortenRequest carries a URL to shorten. The URL is only required to be
// non-empty, its format is not validated. Alias is optional: when set, it is
// used as the link identifier instead of a generated code.
type ShortenRequest struct {
	URL      string    `json:"url" validate:"required"`
	ExpireAt time.Time `json:"expire_at" validate:"required"`
	Alias    string    `json:"alias,omitempty"`
}

type ShortenResponse struct {
	ID string `json:"id"`
}

// LinkDTO is the external representation of a link record.
type LinkDTO struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	AccessCount  int64      `json:"access_count"`
	LastAccessAt *time.Time `json:"last_access_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ExpireAt     time.Time  `json:"expire_at"`
}

type LinksListResponse struct {
	Links []LinkDTO `json:"links"`
}

type UpdateLinkRequest struct {
	URL string `json:"url" validate:"required"`
}
