// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores generated images and serves the
// keyset-paginated listings for a user's own images and the public gallery.
package repo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/engrish-backend/internal/domain"
)

// CreateImage persists a generated image. ID and CreatedAt are filled when
// empty; CreatedAt is stored in UTC so keyset comparisons line up.
func CreateImage(ctx context.Context, db *gorm.DB, img *domain.GeneratedImage) error {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now()
	}
	img.CreatedAt = img.CreatedAt.UTC()
	return db.WithContext(ctx).Omit(clause.Associations).Create(img).Error
}

// GetImage loads an image by id.
func GetImage(ctx context.Context, db *gorm.DB, id string) (*domain.GeneratedImage, error) {
	var img domain.GeneratedImage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&img).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

// ImageCursor is the keyset position of the last image on a page. Images
// created in the same instant are ordered by id, so a page boundary never
// drops or repeats a row.
type ImageCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the position of img.
func CursorOf(img domain.GeneratedImage) ImageCursor {
	return ImageCursor{CreatedAt: img.CreatedAt, ID: img.ID}
}

// String encodes the cursor as an opaque URL-safe token.
func (c ImageCursor) String() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseImageCursor decodes a token produced by ImageCursor.String.
func ParseImageCursor(token string) (*ImageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("image cursor: %w", err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, errors.New("image cursor: malformed")
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("image cursor: %w", err)
	}
	return &ImageCursor{CreatedAt: t.UTC(), ID: id}, nil
}

// ListUserImages returns up to limit images owned by userID, newest first,
// strictly after after in that order when it is non-nil.
func ListUserImages(ctx context.Context, db *gorm.DB, userID string, after *ImageCursor, limit int) ([]domain.GeneratedImage, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	return listImages(q, after, limit)
}

// ListPublicImages returns up to limit public images, newest first.
func ListPublicImages(ctx context.Context, db *gorm.DB, after *ImageCursor, limit int) ([]domain.GeneratedImage, error) {
	q := db.WithContext(ctx).Where("is_public = ?", true)
	return listImages(q, after, limit)
}

func listImages(q *gorm.DB, after *ImageCursor, limit int) ([]domain.GeneratedImage, error) {
	if after != nil {
		at := after.CreatedAt.UTC()
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", at, at, after.ID)
	}
	var out []domain.GeneratedImage
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// SetImageVisibility flips is_public on an image owned by userID.
func SetImageVisibility(ctx context.Context, db *gorm.DB, id, userID string, public bool) (*domain.GeneratedImage, error) {
	res := db.WithContext(ctx).Model(&domain.GeneratedImage{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_public", public)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetImage(ctx, db, id)
}

// MarkImageShared sets shared_to_twitter. It reports whether the flag changed,
// so callers can count a share exactly once.
func MarkImageShared(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	img, err := GetImage(ctx, db, id)
	if err != nil {
		return false, err
	}
	if img.UserID != userID {
		return false, ErrNotFound
	}
	res := db.WithContext(ctx).Model(&domain.GeneratedImage{}).
		Where("id = ? AND user_id = ? AND shared_to_twitter = ?", id, userID, false).
		Update("shared_to_twitter", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteImage removes an image owned by userID.
func DeleteImage(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&domain.GeneratedImage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
