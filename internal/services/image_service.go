// Package services – ImageService
//
// This file implements AI image generation and the image library around it.
// Generation is rate limited per user with the cache service's fixed window,
// may be replayed with an idempotency key, and bumps the user's counter as a
// non-fatal side effect once the image is saved.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/engrish-backend/internal/cache"
	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/imagegen"
	"github.com/tbourn/engrish-backend/internal/repo"
)

// Prompt bounds, counted in runes.
const (
	MinPromptRunes = 10
	MaxPromptRunes = 500
)

// Defaults for the per-user generation window.
const (
	DefaultImageRateMax    = 5
	DefaultImageRateWindow = time.Minute
)

// IdempotencyScopeImages is the scope idempotency keys are stored under.
const IdempotencyScopeImages = "images.generate"

// Generator produces an image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*imagegen.Result, error)
}

// ImagePage is one cursor page of images.
type ImagePage struct {
	Items      []domain.GeneratedImage `json:"items"`
	NextCursor string                  `json:"next_cursor,omitempty" example:"MjAyNC0wNi0wMVQwOTozMDowMFp8YjdlMA"`
	HasMore    bool                    `json:"has_more"`
}

// ImageService coordinates generation, persistence and the image library.
type ImageService struct {
	DB        *gorm.DB
	Generator Generator
	Cache     *cache.Service

	RateMax        int
	RateWindow     time.Duration
	IdempotencyTTL time.Duration
}

// Generate creates an image for userID. When idemKey was already used by the
// user the earlier image is returned and nothing is generated or counted.
func (s *ImageService) Generate(ctx context.Context, userID, prompt, idemKey string) (*domain.GeneratedImage, error) {
	ctx, span := otel.Tracer("services/ImageService").Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	if n := utf8.RuneCountInString(prompt); n < MinPromptRunes || n > MaxPromptRunes {
		return nil, validationf("prompt must be %d-%d characters", MinPromptRunes, MaxPromptRunes)
	}

	if idemKey != "" {
		rec, err := repo.GetIdempotency(ctx, s.DB, userID, IdempotencyScopeImages, idemKey, time.Now().UTC())
		if err == nil {
			if img, gerr := repo.GetImage(ctx, s.DB, rec.ResourceID); gerr == nil {
				span.SetAttributes(attribute.Bool("idempotent.replay", true))
				return img, nil
			}
		} else if !repo.IsNotFound(err) {
			return nil, err
		}
	}

	rl := s.Cache.CheckRateLimit(ctx, "image:"+userID, s.rateMax(), s.rateWindow())
	if !rl.Allowed {
		return nil, &RateLimitError{ResetAt: rl.ResetAt}
	}

	res, err := s.Generator.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, imagegen.ErrNotConfigured) {
			return nil, fmt.Errorf("%w: image generation is not configured", ErrUpstreamUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	img := &domain.GeneratedImage{
		UserID:      userID,
		Prompt:      prompt,
		ImageURL:    res.ImageURL,
		ReplicateID: res.ID,
		IsPublic:    true,
	}
	if err := repo.CreateImage(ctx, s.DB, img); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}

	lg := zerolog.Ctx(ctx)
	if idemKey != "" {
		if _, err := repo.CreateIdempotency(ctx, s.DB, userID, IdempotencyScopeImages, idemKey, img.ID, 201, s.idemTTL()); err != nil {
			lg.Warn().Err(err).Str("key", idemKey).Msg("idempotency record not saved")
		}
	}
	if err := repo.IncrementImagesGenerated(ctx, s.DB, userID); err != nil {
		lg.Warn().Err(err).Str("user_id", userID).Msg("images_generated counter update failed")
	}
	return img, nil
}

// ListMine pages through the user's images, newest first.
func (s *ImageService) ListMine(ctx context.Context, userID string, cursor *repo.ImageCursor, limit int) (*ImagePage, error) {
	limit = clampLimit(limit)
	rows, err := repo.ListUserImages(ctx, s.DB, userID, cursor, limit+1)
	if err != nil {
		return nil, err
	}
	return pageOf(rows, limit), nil
}

// Gallery pages through public images, newest first.
func (s *ImageService) Gallery(ctx context.Context, cursor *repo.ImageCursor, limit int) (*ImagePage, error) {
	limit = clampLimit(limit)
	rows, err := repo.ListPublicImages(ctx, s.DB, cursor, limit+1)
	if err != nil {
		return nil, err
	}
	return pageOf(rows, limit), nil
}

// SetVisibility publishes or hides one of the user's images.
func (s *ImageService) SetVisibility(ctx context.Context, userID, imageID string, public bool) (*domain.GeneratedImage, error) {
	img, err := repo.SetImageVisibility(ctx, s.DB, imageID, userID, public)
	if repo.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return img, err
}

// MarkShared records that the image was shared. The share counter moves only
// the first time.
func (s *ImageService) MarkShared(ctx context.Context, userID, imageID string) error {
	changed, err := repo.MarkImageShared(ctx, s.DB, imageID, userID)
	if repo.IsNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if changed {
		if err := repo.IncrementImagesShared(ctx, s.DB, userID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("images_shared counter update failed")
		}
	}
	return nil
}

// Delete removes one of the user's images.
func (s *ImageService) Delete(ctx context.Context, userID, imageID string) error {
	err := repo.DeleteImage(ctx, s.DB, imageID, userID)
	if repo.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}

func pageOf(rows []domain.GeneratedImage, limit int) *ImagePage {
	p := &ImagePage{Items: rows}
	if len(rows) > limit {
		p.Items = rows[:limit]
		p.HasMore = true
		p.NextCursor = repo.CursorOf(p.Items[limit-1]).String()
	}
	if p.Items == nil {
		p.Items = []domain.GeneratedImage{}
	}
	return p
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}

func (s *ImageService) rateMax() int {
	if s.RateMax > 0 {
		return s.RateMax
	}
	return DefaultImageRateMax
}

func (s *ImageService) rateWindow() time.Duration {
	if s.RateWindow > 0 {
		return s.RateWindow
	}
	return DefaultImageRateWindow
}

func (s *ImageService) idemTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}
