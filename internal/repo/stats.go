// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file maintains the per-user counters in user_stats.
// Every writer is an upsert, so a missing row is created on first touch.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/engrish-backend/internal/domain"
)

// GetUserStats returns the stats row for userID. A user without a row gets a
// zero-valued record rather than ErrNotFound.
func GetUserStats(ctx context.Context, db *gorm.DB, userID string) (*domain.UserStats, error) {
	var st domain.UserStats
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&st).Error
	if IsNotFound(err) {
		return &domain.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SetMentionCount records the current number of mentions for userID.
func SetMentionCount(ctx context.Context, db *gorm.DB, userID string, count int64) error {
	return upsertStats(ctx, db, &domain.UserStats{UserID: userID, TwitterMentions: int(count)},
		map[string]any{"twitter_mentions": count})
}

// IncrementImagesGenerated bumps images_generated by one.
func IncrementImagesGenerated(ctx context.Context, db *gorm.DB, userID string) error {
	return upsertStats(ctx, db, &domain.UserStats{UserID: userID, ImagesGenerated: 1},
		map[string]any{"images_generated": gorm.Expr("user_stats.images_generated + 1")})
}

// IncrementImagesShared bumps images_shared by one.
func IncrementImagesShared(ctx context.Context, db *gorm.DB, userID string) error {
	return upsertStats(ctx, db, &domain.UserStats{UserID: userID, ImagesShared: 1},
		map[string]any{"images_shared": gorm.Expr("user_stats.images_shared + 1")})
}

// SetLeaderboardRank stores the advisory rank snapshot. A nil rank clears it.
func SetLeaderboardRank(ctx context.Context, db *gorm.DB, userID string, rank *int) error {
	return upsertStats(ctx, db, &domain.UserStats{UserID: userID, LeaderboardRank: rank},
		map[string]any{"leaderboard_rank": rank})
}

func upsertStats(ctx context.Context, db *gorm.DB, insert *domain.UserStats, onConflict map[string]any) error {
	now := time.Now().UTC()
	insert.UpdatedAt = now
	onConflict["updated_at"] = now
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(onConflict),
		}).
		Create(insert).Error
}
