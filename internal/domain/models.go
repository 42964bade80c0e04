// Package domain defines the persistence models for users, mentions, stats and
// generated images. These types are mapped with GORM and form the core data
// layer of the community backend.
package domain

import (
	"time"
	"unicode/utf8"
)

// User is a wallet-authenticated community member. The wallet address is the
// primary external identity; the Twitter fields hold at most one linked
// social account at a time.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - WalletAddress: base58 Solana public key; unique and never updated.
//   - Name / Bio / Avatar: optional display profile (empty when unset).
//   - TwitterID / TwitterUsername / TwitterLinkedAt: linked social identity.
type User struct {
	ID              string     `json:"id"                         gorm:"type:char(36);primaryKey"`
	WalletAddress   string     `json:"wallet_address"             gorm:"type:varchar(64);not null;uniqueIndex:ux_users_wallet"`
	Name            string     `json:"name"                       gorm:"type:varchar(50);not null;default:''"`
	Bio             string     `json:"bio"                        gorm:"type:varchar(500);not null;default:''"`
	Avatar          string     `json:"avatar"                     gorm:"type:text;not null;default:''"`
	TwitterID       *string    `json:"twitter_id,omitempty"       gorm:"type:varchar(32);index:idx_users_twitter"`
	TwitterUsername *string    `json:"twitter_username,omitempty" gorm:"type:varchar(32)"`
	TwitterLinkedAt *time.Time `json:"twitter_linked_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Linked reports whether a social account is attached to the user.
func (u *User) Linked() bool {
	return u != nil && u.TwitterID != nil && *u.TwitterID != ""
}

// Summary returns the public projection of the user.
func (u *User) Summary() UserSummary {
	s := UserSummary{
		ID:            u.ID,
		WalletAddress: u.WalletAddress,
		Name:          u.Name,
		Avatar:        u.Avatar,
	}
	if u.TwitterUsername != nil {
		s.TwitterUsername = *u.TwitterUsername
	}
	return s
}

// UserSummary is the public view of a user returned by auth endpoints.
type UserSummary struct {
	ID              string `json:"id"                         example:"6f1c1c1e-7d2a-4a39-9d39-1c1c1e7d2a4a"`
	WalletAddress   string `json:"wallet_address"             example:"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"`
	Name            string `json:"name"                       example:"User 9xQe"`
	Avatar          string `json:"avatar,omitempty"`
	TwitterUsername string `json:"twitter_username,omitempty" example:"engrish_fan"`
}

// DefaultDisplayName derives the name given to a user on first sign-in.
func DefaultDisplayName(wallet string) string {
	prefix := wallet
	if utf8.RuneCountInString(prefix) > 4 {
		prefix = string([]rune(prefix)[:4])
	}
	return "User " + prefix
}

// Mention is a persisted tweet that references the tracked brand account.
// TweetID is globally unique; re-ingesting a tweet updates the row instead of
// duplicating it. Score is fixed at first ingestion.
//
// ID is an autoincrement sequence and doubles as the insertion order used to
// break leaderboard ties.
type Mention struct {
	ID             uint64    `json:"-"               gorm:"primaryKey;autoIncrement"`
	TweetID        string    `json:"tweet_id"        gorm:"type:varchar(32);not null;uniqueIndex:ux_mentions_tweet"`
	SocialUserID   string    `json:"social_user_id"  gorm:"type:varchar(32);not null;index:idx_mentions_social_user"`
	SocialUsername string    `json:"social_username" gorm:"type:varchar(32);not null"`
	Text           string    `json:"text"            gorm:"type:text;not null;default:''"`
	URL            string    `json:"url"             gorm:"type:text;not null;default:''"`
	HasImage       bool      `json:"has_image"       gorm:"not null"`
	HasVideo       bool      `json:"has_video"       gorm:"not null"`
	Score          int       `json:"score"           gorm:"not null;check:score >= 0"`
	CreatedAt      time.Time `json:"created_at"      gorm:"not null;index:idx_mentions_created"`
	LinkedUserID   string    `json:"linked_user_id"  gorm:"type:char(36);not null;index:idx_mentions_linked_user"`
	IndexedAt      time.Time `json:"indexed_at"      gorm:"not null"`

	// User is the local account the mention was ingested for. Mentions are
	// removed with the account.
	User User `json:"-" gorm:"foreignKey:LinkedUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Mention.
func (Mention) TableName() string { return "twitter_mentions" }

// UserStats holds per-user counters. LeaderboardRank is an advisory snapshot;
// the live rank is always recomputed from mentions.
type UserStats struct {
	UserID          string    `json:"user_id"                    gorm:"type:char(36);primaryKey"`
	ImagesGenerated int       `json:"images_generated"           gorm:"not null;default:0"`
	ImagesShared    int       `json:"images_shared"              gorm:"not null;default:0"`
	TwitterMentions int       `json:"twitter_mentions"           gorm:"not null;default:0"`
	LeaderboardRank *int      `json:"leaderboard_rank,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserStats.
func (UserStats) TableName() string { return "user_stats" }

// GeneratedImage is an AI image produced for a user.
type GeneratedImage struct {
	ID              string    `json:"id"                     gorm:"type:char(36);primaryKey"`
	UserID          string    `json:"user_id"                gorm:"type:char(36);not null;index:idx_images_user_created,priority:1"`
	Prompt          string    `json:"prompt"                 gorm:"type:text;not null"`
	ImageURL        string    `json:"image_url"              gorm:"type:text;not null"`
	ReplicateID     string    `json:"replicate_id,omitempty" gorm:"type:varchar(64)"`
	IsPublic        bool      `json:"is_public"              gorm:"not null"`
	SharedToTwitter bool      `json:"shared_to_twitter"      gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"             gorm:"index:idx_images_user_created,priority:2;index:idx_images_created"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for GeneratedImage.
func (GeneratedImage) TableName() string { return "generated_images" }
