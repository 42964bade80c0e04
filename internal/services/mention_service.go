// Package services – MentionService
//
// This file implements social account linking and mention ingestion. Tweets
// matching the tracking query are fetched from the social API, filtered down
// to the linked account, and upserted by tweet id so repeated syncs never
// duplicate rows. The per-user mention counter is a side effect and its
// failure never fails the ingest.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tbourn/engrish-backend/internal/cache"
	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/repo"
	"github.com/tbourn/engrish-backend/internal/twitter"
)

// Cache keys and lifetimes shared by the mention and leaderboard services.
const (
	LeaderboardCacheKey = "leaderboard:global"
	LeaderboardCacheTTL = 10 * time.Minute
	FeedCacheKey        = "twitter:feed:global"
	FeedCacheTTL        = 5 * time.Minute
)

// DefaultTrackingQuery selects the tweets that count as mentions.
const DefaultTrackingQuery = "@Engrishcoin OR #Engrishcoin OR $ENGRISH"

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{1,15}$`)

var mentionsIngested = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "mentions_ingested_total",
	Help: "Mentions written by link and sync ingestion.",
})

func init() {
	prometheus.MustRegister(mentionsIngested)
}

// SocialSource is the slice of the social API the service depends on.
// Implementations return twitter.ErrNotFound for unknown accounts.
type SocialSource interface {
	LookupUser(ctx context.Context, username string) (*domain.SocialAccount, error)
	SearchMentions(ctx context.Context, query string, maxResults int) ([]domain.Tweet, error)
}

// MentionService links social accounts and ingests their mentions.
type MentionService struct {
	DB     *gorm.DB
	Social SocialSource
	Cache  *cache.Service

	TrackingQuery string
	// MaxResults bounds one search call (default 100).
	MaxResults int
	// FeedSize bounds the public feed (default 50).
	FeedSize int

	now func() time.Time
}

// ValidUsername reports whether s is a syntactically valid handle.
func ValidUsername(s string) bool { return usernameRE.MatchString(s) }

// LinkAndIngest attaches the social account named username to the user and
// ingests that account's mentions. A failing mention search does not fail the
// link; the result then reports what is already stored.
func (s *MentionService) LinkAndIngest(ctx context.Context, userID, username string) (*domain.LinkResult, error) {
	ctx, span := otel.Tracer("services/MentionService").Start(ctx, "LinkAndIngest",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("social.username", username),
		))
	defer span.End()

	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !ValidUsername(username) {
		return nil, validationf("username must be 1-15 letters, digits or underscores")
	}

	acct, err := s.Social.LookupUser(ctx, username)
	switch {
	case errors.Is(err, twitter.ErrNotFound):
		return nil, fmt.Errorf("%w: @%s", ErrAccountNotFound, username)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	u, err := repo.LinkTwitter(ctx, s.DB, userID, *acct, s.clock().UTC())
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	tweets, err := s.Social.SearchMentions(ctx, s.query(), s.maxResults())
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("username", acct.Username).
			Msg("mention search failed during link, continuing with none")
		tweets = nil
	}
	totals, err := s.ingest(ctx, userID, *acct, tweets)
	if err != nil {
		return nil, err
	}

	return &domain.LinkResult{
		Account:       *acct,
		User:          u.Summary(),
		MentionsCount: totals.Count,
		TotalScore:    totals.Total,
	}, nil
}

// SyncMentions re-runs ingestion for the user's linked account.
func (s *MentionService) SyncMentions(ctx context.Context, userID string) (*domain.SyncResult, error) {
	ctx, span := otel.Tracer("services/MentionService").Start(ctx, "SyncMentions",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !u.Linked() {
		return nil, ErrNotLinked
	}
	acct := domain.SocialAccount{ID: *u.TwitterID}
	if u.TwitterUsername != nil {
		acct.Username = *u.TwitterUsername
	}

	tweets, err := s.Social.SearchMentions(ctx, s.query(), s.maxResults())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	totals, err := s.ingest(ctx, userID, acct, tweets)
	if err != nil {
		return nil, err
	}
	return &domain.SyncResult{MentionsCount: totals.Count, TotalScore: totals.Total}, nil
}

// Unlink clears the user's social identity. Stored mentions are kept.
func (s *MentionService) Unlink(ctx context.Context, userID string) error {
	if err := repo.UnlinkTwitter(ctx, s.DB, userID); err != nil {
		if repo.IsNotFound(err) {
			return ErrUnauthenticated
		}
		return err
	}
	return nil
}

// UserMentions lists the mentions stored for the user, newest first.
func (s *MentionService) UserMentions(ctx context.Context, userID string, limit int) ([]domain.Mention, error) {
	return repo.ListUserMentions(ctx, s.DB, userID, limit)
}

// GlobalFeed returns the latest tracked tweets. An unavailable upstream
// yields an empty feed, which is not cached.
func (s *MentionService) GlobalFeed(ctx context.Context) ([]domain.Tweet, error) {
	ctx, span := otel.Tracer("services/MentionService").Start(ctx, "GlobalFeed")
	defer span.End()

	feed, err := cache.GetCached(ctx, s.Cache, FeedCacheKey, FeedCacheTTL, s.fetchFeed)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("feed unavailable, serving empty feed")
		return []domain.Tweet{}, nil
	}
	return feed, nil
}

// RefreshFeed drops the cached feed and rebuilds it.
func (s *MentionService) RefreshFeed(ctx context.Context) (int, error) {
	s.Cache.Invalidate(ctx, FeedCacheKey)
	feed, err := cache.GetCached(ctx, s.Cache, FeedCacheKey, FeedCacheTTL, s.fetchFeed)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return len(feed), nil
}

func (s *MentionService) fetchFeed(ctx context.Context) ([]domain.Tweet, error) {
	size := s.FeedSize
	if size <= 0 {
		size = 50
	}
	tweets, err := s.Social.SearchMentions(ctx, s.query(), size)
	if err != nil {
		return nil, err
	}
	if tweets == nil {
		tweets = []domain.Tweet{}
	}
	return tweets, nil
}

// ingest filters tweets to acct, upserts them and refreshes the counters.
func (s *MentionService) ingest(ctx context.Context, userID string, acct domain.SocialAccount, tweets []domain.Tweet) (repo.MentionTotals, error) {
	lg := zerolog.Ctx(ctx)
	now := s.clock().UTC()

	matched := FilterByAuthor(tweets, acct)
	rows := make([]domain.Mention, 0, len(matched))
	for _, t := range matched {
		rows = append(rows, domain.Mention{
			TweetID:        t.ID,
			SocialUserID:   acct.ID,
			SocialUsername: acct.Username,
			Text:           t.Text,
			URL:            t.URL,
			HasImage:       t.HasImage,
			HasVideo:       t.HasVideo,
			Score:          twitter.Score(t.HasImage, t.HasVideo),
			CreatedAt:      t.CreatedAt,
			LinkedUserID:   userID,
			IndexedAt:      now,
		})
	}
	if _, err := repo.UpsertMentions(ctx, s.DB, rows); err != nil {
		return repo.MentionTotals{}, fmt.Errorf("upsert mentions: %w", err)
	}
	mentionsIngested.Add(float64(len(rows)))
	if len(rows) > 0 {
		s.Cache.Invalidate(ctx, LeaderboardCacheKey)
	}

	totals, err := repo.MentionTotalsBySocialID(ctx, s.DB, acct.ID)
	if err != nil {
		return repo.MentionTotals{}, err
	}
	if err := repo.SetMentionCount(ctx, s.DB, userID, totals.Count); err != nil {
		lg.Warn().Err(err).Str("user_id", userID).Msg("mention counter update failed")
	}
	lg.Info().
		Str("user_id", userID).
		Str("social_user_id", acct.ID).
		Int("fetched", len(tweets)).
		Int("matched", len(rows)).
		Int64("total_score", totals.Total).
		Msg("mentions ingested")
	return totals, nil
}

// FilterByAuthor keeps the tweets written by acct. A tweet carrying an author
// id matches on id alone; only tweets without one fall back to a
// case-insensitive username comparison.
func FilterByAuthor(tweets []domain.Tweet, acct domain.SocialAccount) []domain.Tweet {
	fold := cases.Fold()
	want := fold.String(acct.Username)
	var out []domain.Tweet
	for _, t := range tweets {
		if t.AuthorID != "" {
			if t.AuthorID == acct.ID {
				out = append(out, t)
			}
			continue
		}
		if want != "" && fold.String(t.Author.Username) == want {
			out = append(out, t)
		}
	}
	return out
}

func (s *MentionService) query() string {
	if s.TrackingQuery != "" {
		return s.TrackingQuery
	}
	return DefaultTrackingQuery
}

func (s *MentionService) maxResults() int {
	if s.MaxResults > 0 {
		return s.MaxResults
	}
	return 100
}

func (s *MentionService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
