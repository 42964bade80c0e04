// Package services – UserService
//
// This file implements the signed-in user's own surface: profile, counters
// and account deletion.
package services

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/engrish-backend/internal/cache"
	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/repo"
)

// ProfileUpdate lists the fields to change; nil means unchanged.
type ProfileUpdate struct {
	Name   *string `json:"name,omitempty"`
	Bio    *string `json:"bio,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

// UserService serves profile reads and edits.
type UserService struct {
	DB    *gorm.DB
	Cache *cache.Service
}

// Profile returns the user row.
func (s *UserService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if repo.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return u, err
}

// UpdateProfile validates and applies upd.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*domain.User, error) {
	var patch repo.ProfilePatch
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
			return nil, validationf("name must be 2-50 characters")
		}
		patch.Name = &name
	}
	if upd.Bio != nil {
		bio := strings.TrimSpace(*upd.Bio)
		if utf8.RuneCountInString(bio) > 500 {
			return nil, validationf("bio must be at most 500 characters")
		}
		patch.Bio = &bio
	}
	if upd.Avatar != nil {
		avatar := strings.TrimSpace(*upd.Avatar)
		if avatar != "" && !absoluteHTTPURL(avatar) {
			return nil, validationf("avatar must be an absolute http(s) URL")
		}
		patch.Avatar = &avatar
	}

	u, err := repo.UpdateProfile(ctx, s.DB, userID, patch)
	if repo.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// Display names and avatars are denormalized into the cached ranking.
	if u.Linked() && (patch.Name != nil || patch.Avatar != nil) {
		s.Cache.Invalidate(ctx, LeaderboardCacheKey)
	}
	return u, nil
}

// Stats returns the user's counters; zeros when nothing was recorded yet.
func (s *UserService) Stats(ctx context.Context, userID string) (*domain.UserStats, error) {
	return repo.GetUserStats(ctx, s.DB, userID)
}

// Delete removes the account and everything it owns.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := repo.DeleteUser(ctx, s.DB, userID); err != nil {
		if repo.IsNotFound(err) {
			return ErrNotFound
		}
		return err
	}
	s.Cache.Invalidate(ctx, LeaderboardCacheKey)
	return nil
}

func absoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
