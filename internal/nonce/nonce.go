// Package nonce issues single-use sign-in challenges bound to a wallet
// address.
//
// A Store keeps at most one active nonce per wallet. Issuing overwrites the
// previous nonce; a nonce is only valid within the store's TTL. Consume is a
// compare-and-delete: it removes the nonce only when it still holds the value
// the caller verified, so two concurrent sign-ins cannot both redeem it and a
// nonce reissued in between survives the stale attempt.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// DefaultTTL is how long an issued nonce stays valid.
const DefaultTTL = 5 * time.Minute

// Store is the contract shared by the in-process and Redis implementations.
//
// Peek and Consume never fail: a backend error is reported as "absent", which
// callers already treat as not found or expired.
type Store interface {
	// Issue creates a fresh nonce for wallet, replacing any active one.
	Issue(ctx context.Context, wallet string) (string, error)
	// Peek returns the active nonce for wallet without consuming it.
	Peek(ctx context.Context, wallet string) (string, bool)
	// Consume deletes the nonce for wallet if it is still fresh and equal to
	// want, reporting whether this call redeemed it.
	Consume(ctx context.Context, wallet, want string) bool
}

// Generate returns 16 random bytes hex-encoded.
func Generate() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
