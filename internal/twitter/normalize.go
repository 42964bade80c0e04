package twitter

import (
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tbourn/engrish-backend/internal/domain"
)

// Scoring weights for a mention.
const (
	BaseScore  = 10
	ImageBonus = 5
	VideoBonus = 10
)

// UnknownUsername is used when a tweet carries no recoverable author handle.
const UnknownUsername = "unknown"

// Score is the leaderboard value of one mention.
func Score(hasImage, hasVideo bool) int {
	s := BaseScore
	if hasImage {
		s += ImageBonus
	}
	if hasVideo {
		s += VideoBonus
	}
	return s
}

var statusURLRE = regexp.MustCompile(`(?:twitter\.com|x\.com)/([^/]+)/status`)

// UsernameFromURL extracts the handle from a tweet permalink.
func UsernameFromURL(u string) string {
	m := statusURLRE.FindStringSubmatch(u)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// createdAtLayouts are the timestamp formats seen from the upstream API.
var createdAtLayouts = []string{
	time.RubyDate,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseCreatedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// first returns the first path of r that exists and is non-empty.
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		v := r.Get(p)
		if v.Exists() && v.String() != "" {
			return v
		}
	}
	return gjson.Result{}
}

// ParseTweets finds the tweet array in an upstream payload and normalizes
// each element. Tweets without an id are dropped since they cannot be
// deduplicated.
func ParseTweets(body []byte, now time.Time) []domain.Tweet {
	root := gjson.ParseBytes(body)
	arr := first(root, "tweets", "data.tweets", "statuses")
	if !arr.IsArray() {
		if d := root.Get("data"); d.IsArray() {
			arr = d
		}
	}
	if !arr.IsArray() {
		return nil
	}
	var out []domain.Tweet
	arr.ForEach(func(_, raw gjson.Result) bool {
		if t, ok := Normalize(raw, now); ok {
			out = append(out, t)
		}
		return true
	})
	return out
}

// Normalize converts one upstream tweet object of any supported shape into a
// canonical Tweet. Missing fields degrade to safe defaults.
func Normalize(raw gjson.Result, now time.Time) (domain.Tweet, bool) {
	id := first(raw, "id_str", "id").String()
	if id == "" {
		return domain.Tweet{}, false
	}

	author := first(raw, "author", "user")
	authorID := first(author, "id_str", "id", "userId").String()
	if authorID == "" {
		authorID = first(raw, "author_id", "authorId", "userId").String()
	}

	rawURL := first(raw, "url", "twitterUrl").String()
	username := first(author, "userName", "screen_name", "username").String()
	if username == "" {
		username = UsernameFromURL(rawURL)
	}
	if username == "" {
		username = UnknownUsername
	}
	name := first(author, "name").String()
	if name == "" {
		name = username
	}

	url := rawURL
	if url == "" {
		if username != UnknownUsername {
			url = "https://x.com/" + username + "/status/" + id
		} else {
			url = "https://x.com/i/status/" + id
		}
	}

	createdAt, ok := parseCreatedAt(first(raw, "createdAt", "created_at").String())
	if !ok {
		createdAt = now.UTC()
	}

	hasImage, hasVideo := mediaFlags(raw)

	return domain.Tweet{
		ID:       id,
		Text:     first(raw, "text", "full_text").String(),
		AuthorID: authorID,
		Author: domain.TweetAuthor{
			ID:              authorID,
			Username:        username,
			Name:            name,
			ProfileImageURL: first(author, "profilePicture", "profile_image_url_https", "profile_image_url").String(),
		},
		CreatedAt: createdAt,
		PublicMetrics: domain.PublicMetrics{
			LikeCount:    first(raw, "likeCount", "favorite_count", "public_metrics.like_count").Int(),
			RetweetCount: first(raw, "retweetCount", "retweet_count", "public_metrics.retweet_count").Int(),
			ReplyCount:   first(raw, "replyCount", "reply_count", "public_metrics.reply_count").Int(),
		},
		URL:      url,
		HasImage: hasImage,
		HasVideo: hasVideo,
		Score:    Score(hasImage, hasVideo),
	}, true
}

// mediaFlags scans every known media location for photos and videos.
func mediaFlags(raw gjson.Result) (hasImage, hasVideo bool) {
	for _, path := range []string{
		"media.#.type",
		"extendedEntities.media.#.type",
		"extended_entities.media.#.type",
		"entities.media.#.type",
	} {
		for _, typ := range raw.Get(path).Array() {
			switch strings.ToLower(typ.String()) {
			case "photo", "image":
				hasImage = true
			case "video", "animated_gif":
				hasVideo = true
			}
		}
	}
	return hasImage, hasVideo
}
