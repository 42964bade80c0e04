// Package services – LeaderboardService
//
// This file derives the mention leaderboard. Mentions are grouped by social
// account, ranked by total score with first-seen order breaking ties, and the
// full ranked list is cached as one unit so pagination and rank lookups read
// the same snapshot.
package services

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/engrish-backend/internal/cache"
	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/repo"
	"github.com/tbourn/engrish-backend/internal/utils"
)

// Messages returned with an absent rank.
const (
	MsgNotLinked    = "Twitter account not linked"
	MsgNotRankedYet = "Not on leaderboard yet. Start mentioning @Engrishcoin!"
)

// LeaderboardService ranks social accounts by mention score.
type LeaderboardService struct {
	DB    *gorm.DB
	Cache *cache.Service
}

// Aggregate groups rows by social user id. Rows must be in insertion order:
// an account's position among equal scores is that of its earliest row, and
// display fields come from its latest row. Ranks are 1..N without gaps.
func Aggregate(rows []repo.MentionScoreRow) []domain.LeaderboardEntry {
	idx := make(map[string]int)
	var out []domain.LeaderboardEntry
	for _, r := range rows {
		i, ok := idx[r.SocialUserID]
		if !ok {
			i = len(out)
			idx[r.SocialUserID] = i
			out = append(out, domain.LeaderboardEntry{SocialUserID: r.SocialUserID})
		}
		e := &out[i]
		e.MentionCount++
		e.TotalScore += int64(r.Score)
		e.Username = r.SocialUsername
		if r.Name != "" {
			e.Name = r.Name
		}
		if r.Avatar != "" {
			e.Avatar = r.Avatar
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].TotalScore > out[b].TotalScore })
	for i := range out {
		out[i].Rank = i + 1
	}
	if out == nil {
		out = []domain.LeaderboardEntry{}
	}
	return out
}

// Ranked returns the full ranked list, from cache when present.
func (s *LeaderboardService) Ranked(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	return cache.GetCached(ctx, s.Cache, LeaderboardCacheKey, LeaderboardCacheTTL, s.compute)
}

func (s *LeaderboardService) compute(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	ctx, span := otel.Tracer("services/LeaderboardService").Start(ctx, "compute")
	defer span.End()

	rows, err := repo.ListMentionScores(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	entries := Aggregate(rows)
	span.SetAttributes(attribute.Int("leaderboard.users", len(entries)))
	return entries, nil
}

// TopMentioners returns one page of the leaderboard. Ranks are global, so
// page 2 continues where page 1 ended.
func (s *LeaderboardService) TopMentioners(ctx context.Context, page, limit int) (*domain.LeaderboardPage, error) {
	ctx, span := otel.Tracer("services/LeaderboardService").Start(ctx, "TopMentioners",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("limit", limit),
		))
	defer span.End()

	if page < 1 {
		return nil, validationf("page must be >= 1")
	}
	if limit < 1 {
		return nil, validationf("limit must be >= 1")
	}
	all, err := s.Ranked(ctx)
	if err != nil {
		return nil, err
	}

	p := utils.Paginate(len(all), page, limit)
	return &domain.LeaderboardPage{
		Items:      all[p.Start:p.End],
		Page:       page,
		Limit:      limit,
		TotalPages: p.TotalPages,
		TotalUsers: len(all),
		HasMore:    p.HasMore,
	}, nil
}

// UserRank locates the user's linked account on the leaderboard. A user
// without a link or without mentions gets a nil rank and a message. The
// computed rank is copied to user_stats as an advisory snapshot.
func (s *LeaderboardService) UserRank(ctx context.Context, userID string) (*domain.UserRank, error) {
	ctx, span := otel.Tracer("services/LeaderboardService").Start(ctx, "UserRank",
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
		return &domain.UserRank{Message: MsgNotLinked}, nil
	}

	all, err := s.Ranked(ctx)
	if err != nil {
		return nil, err
	}
	res := &domain.UserRank{Message: MsgNotRankedYet}
	for i := range all {
		if all[i].SocialUserID == *u.TwitterID {
			rank := all[i].Rank
			res = &domain.UserRank{
				Rank:         &rank,
				MentionCount: all[i].MentionCount,
				TotalScore:   all[i].TotalScore,
			}
			break
		}
	}
	if err := repo.SetLeaderboardRank(ctx, s.DB, userID, res.Rank); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("rank snapshot failed")
	}
	return res, nil
}

// Refresh drops the cached ranking and recomputes it. It returns the number
// of ranked accounts.
func (s *LeaderboardService) Refresh(ctx context.Context) (int, error) {
	s.Cache.Invalidate(ctx, LeaderboardCacheKey)
	all, err := s.Ranked(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}
