// Package services – AuthService
//
// This file implements the wallet sign-in handshake: a challenge nonce is
// issued per wallet, the wallet signs a message embedding it, and a verified
// signature redeems the nonce for a session token. Resolving a token always
// re-reads the user row so profile edits are visible immediately.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/engrish-backend/internal/auth"
	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/nonce"
	"github.com/tbourn/engrish-backend/internal/repo"
)

// Challenge is what a wallet must sign.
type Challenge struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// Session is the outcome of a successful sign-in.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// AuthService coordinates nonces, signature checks, users and tokens.
type AuthService struct {
	DB     *gorm.DB
	Nonces nonce.Store
	Tokens *auth.Tokens
	// Domain is the host named in the sign-in message.
	Domain string
}

// RequestChallenge issues a nonce for wallet and returns it with the exact
// message the wallet has to sign.
func (s *AuthService) RequestChallenge(ctx context.Context, wallet string) (*Challenge, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "RequestChallenge",
		trace.WithAttributes(attribute.String("wallet", wallet)))
	defer span.End()

	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, validationf("walletAddress is required")
	}
	if !auth.ValidAddress(wallet) {
		return nil, validationf("walletAddress is not a valid Solana address")
	}
	n, err := s.Nonces.Issue(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("issue nonce: %w", err)
	}
	return &Challenge{Nonce: n, Message: auth.SignInMessage(s.Domain, wallet, n)}, nil
}

// SignIn verifies signature over the expected message for wallet's active
// nonce. A bad signature leaves the nonce in place so the client can retry;
// the nonce is consumed only once the signature has verified. If message is
// non-empty it must equal the expected message byte for byte.
func (s *AuthService) SignIn(ctx context.Context, wallet, signature, message string) (*Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SignIn",
		trace.WithAttributes(attribute.String("wallet", wallet)))
	defer span.End()

	wallet = strings.TrimSpace(wallet)
	signature = strings.TrimSpace(signature)
	if wallet == "" || signature == "" {
		return nil, validationf("walletAddress and signature are required")
	}
	if !auth.ValidAddress(wallet) {
		return nil, validationf("walletAddress is not a valid Solana address")
	}

	n, ok := s.Nonces.Peek(ctx, wallet)
	if !ok {
		return nil, ErrNonceExpired
	}
	expected := auth.SignInMessage(s.Domain, wallet, n)
	if message != "" && message != expected {
		return nil, fmt.Errorf("%w: signed message does not match challenge", ErrInvalidSignature)
	}
	if err := auth.VerifySignature(wallet, []byte(expected), signature); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	// Only one caller can take the nonce. A concurrent winner or a reissue
	// in between makes this attempt stale and leaves the newer nonce alone.
	if !s.Nonces.Consume(ctx, wallet, n) {
		return nil, ErrNonceExpired
	}

	u, err := repo.GetOrCreateUserByWallet(ctx, s.DB, wallet, domain.DefaultDisplayName(wallet))
	if err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	token, exp, err := s.Tokens.Issue(u.ID, u.WalletAddress)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", u.ID).Msg("wallet signed in")
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// ResolveSession maps a token to the current user. Any failure, including a
// rotated secret or a deleted user, yields nil.
func (s *AuthService) ResolveSession(ctx context.Context, token string) *domain.User {
	if token == "" {
		return nil
	}
	claims, err := s.Tokens.Parse(token)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("session token rejected")
		return nil
	}
	u, err := repo.GetUser(ctx, s.DB, claims.UserID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("session lookup failed")
		}
		return nil
	}
	if u.WalletAddress != claims.Wallet {
		return nil
	}
	return u
}
