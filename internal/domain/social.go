package domain

import "time"

// SocialAccount is a Twitter/X account as reported by the upstream API.
type SocialAccount struct {
	ID              string `json:"id"                example:"1448591840123478016"`
	Username        string `json:"username"          example:"engrish_fan"`
	Name            string `json:"name"              example:"Engrish Fan"`
	ProfileImageURL string `json:"profile_image_url"`
}

// TweetAuthor is the author block of a normalized tweet.
type TweetAuthor struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// PublicMetrics carries the engagement counters of a tweet.
type PublicMetrics struct {
	LikeCount    int64 `json:"like_count"`
	RetweetCount int64 `json:"retweet_count"`
	ReplyCount   int64 `json:"reply_count"`
}

// Tweet is the canonical shape every upstream tweet payload is normalized to.
// AuthorID is empty when the upstream carried no author id at all.
type Tweet struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	AuthorID      string        `json:"author_id"`
	Author        TweetAuthor   `json:"author"`
	CreatedAt     time.Time     `json:"created_at"`
	PublicMetrics PublicMetrics `json:"public_metrics"`
	URL           string        `json:"url"`
	HasImage      bool          `json:"has_image"`
	HasVideo      bool          `json:"has_video"`
	Score         int           `json:"score"`
}

// LinkResult is returned after linking a social account and ingesting its
// mentions.
type LinkResult struct {
	Account       SocialAccount `json:"account"`
	User          UserSummary   `json:"user"`
	MentionsCount int64         `json:"mentions_count"`
	TotalScore    int64         `json:"total_score"`
}

// SyncResult is returned by a manual mention sync.
type SyncResult struct {
	MentionsCount int64 `json:"mentions_count"`
	TotalScore    int64 `json:"total_score"`
}
