package domain

// LeaderboardEntry is one ranked social account. Entries are derived from
// mentions on every aggregation pass and never stored.
type LeaderboardEntry struct {
	Rank         int    `json:"rank"           example:"1"`
	SocialUserID string `json:"social_user_id" example:"1448591840123478016"`
	Username     string `json:"username"       example:"engrish_fan"`
	Name         string `json:"name,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	MentionCount int64  `json:"mention_count"  example:"4"`
	TotalScore   int64  `json:"total_score"    example:"55"`
}

// LeaderboardPage is a slice of the ranked set plus paging totals.
type LeaderboardPage struct {
	Items      []LeaderboardEntry `json:"items"`
	Page       int                `json:"page"        example:"1"`
	Limit      int                `json:"limit"       example:"50"`
	TotalPages int                `json:"total_pages" example:"3"`
	TotalUsers int                `json:"total_users" example:"120"`
	HasMore    bool               `json:"has_more"`
}

// UserRank answers "where am I on the leaderboard". Rank is nil when the user
// has no linked account or no mentions; Message explains why.
type UserRank struct {
	Rank         *int   `json:"rank"`
	MentionCount int64  `json:"mention_count"`
	TotalScore   int64  `json:"total_score"`
	Message      string `json:"message,omitempty"`
}
