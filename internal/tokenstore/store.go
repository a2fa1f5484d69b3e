// Package tokenstore holds generated artifacts behind opaque, time-limited
// tokens. A token can be read any number of times until it expires and
// claimed by Consume exactly once.
package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"edugen/internal/domain"
)

// DefaultTTL is the lifetime of a freshly minted token.
const DefaultTTL = 15 * time.Minute

// tokenBytes of entropy yield a 43 character URL-safe token.
const tokenBytes = 32

var (
	ErrNotFound        = domain.ErrTokenNotFound
	ErrExpired         = domain.ErrTokenExpired
	ErrAlreadyConsumed = domain.ErrTokenAlreadyConsumed
)

// Entry is the artifact bound to a token.
type Entry struct {
	Token     string
	Artifact  domain.Artifact
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is implemented by every token store backend.
type Store interface {
	// Put mints a new token bound to a.
	Put(ctx context.Context, a domain.Artifact) (Entry, error)
	// Get returns the entry without consuming it.
	Get(ctx context.Context, token string) (Entry, error)
	// Consume atomically claims the entry. Exactly one of any number of
	// concurrent callers succeeds; the rest observe ErrAlreadyConsumed.
	Consume(ctx context.Context, token string) (Entry, error)
	// Sweep reclaims expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// NewToken returns a fixed-length token drawn from crypto/rand.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("tokenstore: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenLength is the length of every token returned by NewToken.
var TokenLength = base64.RawURLEncoding.EncodedLen(tokenBytes)

// ValidToken reports whether s has the shape of a minted token.
func ValidToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}
