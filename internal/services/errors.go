// Package services defines the business logic for wallet sign-in, mention
// ingestion, the leaderboard, image generation and user profiles.
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer. Services wrap these sentinels with fmt.Errorf("%w") when
// they add detail, so callers match with errors.Is / errors.As.
package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks malformed input: a bad wallet address or username,
	// a prompt or profile field out of bounds.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated means there is no usable session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidSignature is returned when a sign-in signature does not verify
	// or the signed message differs from the expected one.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNonceExpired is returned when no active nonce exists for a wallet,
	// or it was redeemed by a concurrent sign-in.
	ErrNonceExpired = errors.New("nonce expired or not found")

	// ErrUpstreamUnavailable covers failures of the social API, the image
	// provider and other remote collaborators on write paths. It is retryable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrAccountNotFound means the social API reports no such account.
	ErrAccountNotFound = errors.New("social account not found")

	// ErrNotLinked is returned by operations that need a linked social account.
	ErrNotLinked = errors.New("no social account linked")

	// ErrNotFound indicates that the requested record does not exist or is
	// not accessible to the current user.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is the sentinel matched by *RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RateLimitError carries the window reset time of a rejected request.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
