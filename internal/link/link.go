// Package link defines the short link model shared by the storage,
// service and router layers.
package link

import "time"

// Link represents one short-to-long URL mapping.
type Link struct {
	// ID is the short code or a caller-supplied alias. It is the primary key
	// and never changes after creation.
	ID string

	// OwnerID refers to the owning user. An empty value means the link is
	// anonymous: it resolves, but nobody can list, inspect or modify it.
	OwnerID string

	// URL is the redirect destination.
	URL string

	AccessCount  int64
	LastAccessAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// ExpireAt bounds the link lifetime: the link resolves only while
	// the current time is before ExpireAt.
	ExpireAt time.Time
}

// Resolvable reports whether the link may still be served at the given moment.
func (l *Link) Resolvable(now time.Time) bool {
	return now.Before(l.ExpireAt)
}
