// Package user defines the account model used for authentication
// and link ownership.
package user

// User represents a registered account.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string

	// Nickname is unique and immutable after registration.
	Nickname string

	// PasswordHash is the bcrypt hash of the account secret.
	// It never leaves the storage and service layers.
	PasswordHash string
}
