// Package handlers exposes the REST endpoints. Handlers are transport-thin:
// they bind and validate input, call application services through the
// narrow interfaces below and translate results into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/http/middleware"
	"github.com/tbourn/engrish-backend/internal/repo"
	"github.com/tbourn/engrish-backend/internal/services"
)

// AuthService is wallet sign-in and session resolution.
type AuthService interface {
	RequestChallenge(ctx context.Context, wallet string) (*services.Challenge, error)
	SignIn(ctx context.Context, wallet, signature, message string) (*services.Session, error)
	ResolveSession(ctx context.Context, token string) *domain.User
}

// LeaderboardService ranks accounts by mention score.
type LeaderboardService interface {
	TopMentioners(ctx context.Context, page, limit int) (*domain.LeaderboardPage, error)
	UserRank(ctx context.Context, userID string) (*domain.UserRank, error)
	Refresh(ctx context.Context) (int, error)
}

// MentionService links social accounts and ingests their mentions.
type MentionService interface {
	LinkAndIngest(ctx context.Context, userID, username string) (*domain.LinkResult, error)
	SyncMentions(ctx context.Context, userID string) (*domain.SyncResult, error)
	Unlink(ctx context.Context, userID string) error
	UserMentions(ctx context.Context, userID string, limit int) ([]domain.Mention, error)
	GlobalFeed(ctx context.Context) ([]domain.Tweet, error)
	RefreshFeed(ctx context.Context) (int, error)
}

// ImageService generates and manages images.
type ImageService interface {
	Generate(ctx context.Context, userID, prompt, idemKey string) (*domain.GeneratedImage, error)
	ListMine(ctx context.Context, userID string, cursor *repo.ImageCursor, limit int) (*services.ImagePage, error)
	Gallery(ctx context.Context, cursor *repo.ImageCursor, limit int) (*services.ImagePage, error)
	SetVisibility(ctx context.Context, userID, imageID string, public bool) (*domain.GeneratedImage, error)
	MarkShared(ctx context.Context, userID, imageID string) error
	Delete(ctx context.Context, userID, imageID string) error
}

// UserService manages the signed-in user's profile.
type UserService interface {
	Profile(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, upd services.ProfileUpdate) (*domain.User, error)
	Stats(ctx context.Context, userID string) (*domain.UserStats, error)
	Delete(ctx context.Context, userID string) error
}

// Services bundles the dependencies of Handlers.
type Services struct {
	Auth        AuthService
	Leaderboard LeaderboardService
	Mentions    MentionService
	Images      ImageService
	Users       UserService
}

// CookieOptions shape the session cookie.
type CookieOptions struct {
	// Secure marks the cookie HTTPS-only; on in production.
	Secure bool
	// TTL is the cookie max-age; it should match the token lifetime.
	TTL time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	auth     AuthService
	board    LeaderboardService
	mentions MentionService
	images   ImageService
	users    UserService
	cookie   CookieOptions
}

// New constructs Handlers bound to svc.
func New(svc Services, cookie CookieOptions) *Handlers {
	return &Handlers{
		auth:     svc.Auth,
		board:    svc.Leaderboard,
		mentions: svc.Mentions,
		images:   svc.Images,
		users:    svc.Users,
		cookie:   cookie,
	}
}

// userID is the authenticated caller. Routes using it sit behind
// middleware.RequireAuth.
func userID(c *gin.Context) string {
	return middleware.UserID(c)
}
