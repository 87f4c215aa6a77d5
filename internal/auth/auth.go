// Package auth issues and verifies the JWT bearer tokens that attribute
// link ownership. A request without a token stays anonymous; a request with
// a token that does not verify is rejected, the two cases are never conflated.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims and adds a user-specific identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key used to store and retrieve the authenticated user's ID.
const UserIDKey ContextKey = "userID"

// Auth handles token issuance and HTTP authentication middleware.
type Auth struct {
	signingSecretKey []byte
	tokenTTL         time.Duration
}

// New creates an Auth handler with the given HMAC signing secret and token lifetime.
func New(signingSecretKey []byte, tokenTTL time.Duration) *Auth {
	return &Auth{
		signingSecretKey: signingSecretKey,
		tokenTTL:         tokenTTL,
	}
}

// BuildToken issues a signed time-bounded token for the given user.
func (a *Auth) BuildToken(userID string) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.tokenTTL)),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(a.signingSecretKey)
}

// VerifyToken parses and validates a token string and returns the user ID.
func (a *Auth) VerifyToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingSecretKey, nil
		},
	)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	return claims.UserID, nil
}

// AuthenticateUser is an HTTP middleware that reads the Authorization header.
// A missing header lets the request continue anonymously. A header that is
// present but does not carry a verifiable bearer token fails the request
// with 401: malformed credentials are never downgraded to anonymous access.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		header := request.Header.Get("Authorization")
		if header == "" {
			h.ServeHTTP(response, request)

			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			http.Error(response, "malformed authorization header", http.StatusUnauthorized)

			return
		}

		userID, err := a.VerifyToken(tokenString)
		if err != nil || userID == "" {
			http.Error(response, "access token malformed", http.StatusUnauthorized)

			return
		}

		ctx := context.WithValue(request.Context(), UserIDKey, userID)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// RequireUser is an HTTP middleware that rejects requests without a verified
// user identity. It must be chained after AuthenticateUser.
func (a *Auth) RequireUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if _, ok := UserIDFromContext(request.Context()); !ok {
			response.WriteHeader(http.StatusUnauthorized)

			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

// UserIDFromContext extracts the verified user ID put there by AuthenticateUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)

	return userID, ok && userID != ""
}
