// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file persists Twitter mentions and serves the raw rows
// the leaderboard aggregates over.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/engrish-backend/internal/domain"
)

// mentionUpdateColumns are overwritten when a tweet is re-ingested. score and
// created_at are absent on purpose: a row keeps the score it was first
// ingested with.
var mentionUpdateColumns = []string{
	"social_user_id",
	"social_username",
	"text",
	"url",
	"has_image",
	"has_video",
	"linked_user_id",
	"indexed_at",
}

// UpsertMentions inserts rows keyed by tweet_id, updating existing ones.
// It returns the number of rows written.
func UpsertMentions(ctx context.Context, db *gorm.DB, rows []domain.Mention) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tweet_id"}},
			DoUpdates: clause.AssignmentColumns(mentionUpdateColumns),
		}).
		CreateInBatches(rows, 100)
	return res.RowsAffected, res.Error
}

// MentionScoreRow is one mention joined with the display fields of the local
// user it was ingested for.
type MentionScoreRow struct {
	ID             uint64
	SocialUserID   string
	SocialUsername string
	Score          int
	Name           string
	Avatar         string
}

// ListMentionScores returns every mention in insertion order.
func ListMentionScores(ctx context.Context, db *gorm.DB) ([]MentionScoreRow, error) {
	var rows []MentionScoreRow
	err := db.WithContext(ctx).
		Table("twitter_mentions AS m").
		Select("m.id, m.social_user_id, m.social_username, m.score, " +
			"COALESCE(u.name, '') AS name, COALESCE(u.avatar, '') AS avatar").
		Joins("LEFT JOIN users AS u ON u.id = m.linked_user_id").
		Order("m.id ASC").
		Scan(&rows).Error
	return rows, err
}

// MentionTotals is the count and summed score of one account's mentions.
type MentionTotals struct {
	Count int64
	Total int64
}

// MentionTotalsBySocialID aggregates the mentions authored by a social account.
func MentionTotalsBySocialID(ctx context.Context, db *gorm.DB, socialUserID string) (MentionTotals, error) {
	var t MentionTotals
	err := db.WithContext(ctx).
		Model(&domain.Mention{}).
		Select("COUNT(*) AS count, COALESCE(SUM(score), 0) AS total").
		Where("social_user_id = ?", socialUserID).
		Scan(&t).Error
	return t, err
}

// CountMentions returns the number of stored mentions.
func CountMentions(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Mention{}).Count(&n).Error
	return n, err
}

// ListUserMentions returns the newest mentions ingested for a local user.
func ListUserMentions(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Mention, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Mention
	err := db.WithContext(ctx).
		Where("linked_user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
