package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/engrish-backend/internal/cache"
	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/repo"
)

type seedMention struct {
	social string
	score  int
}

// seedMentions inserts one row per element, in order, each linked to a user
// owning the social account.
func seedMentions(t *testing.T, svcDB func() *LeaderboardService, rows []seedMention) *LeaderboardService {
	t.Helper()
	s := svcDB()
	ctx := context.Background()
	owners := map[string]string{}
	for i, r := range rows {
		uid, ok := owners[r.social]
		if !ok {
			u := mustUser(t, s.DB, "wallet-"+r.social)
			mustLink(t, s.DB, u.ID, domain.SocialAccount{ID: r.social, Username: "user_" + r.social, Name: "Name " + r.social})
			uid = u.ID
			owners[r.social] = uid
		}
		m := domain.Mention{
			TweetID:        fmt.Sprintf("t%d", i),
			SocialUserID:   r.social,
			SocialUsername: "user_" + r.social,
			Score:          r.score,
			CreatedAt:      time.Now().UTC(),
			LinkedUserID:   uid,
			IndexedAt:      time.Now().UTC(),
		}
		if _, err := repo.UpsertMentions(ctx, s.DB, []domain.Mention{m}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

func newLeaderboard(t *testing.T, withCache bool) func() *LeaderboardService {
	return func() *LeaderboardService {
		s := &LeaderboardService{DB: newServiceDB(t)}
		if withCache {
			s.Cache = cache.New(cache.NewMemoryStore(), 0)
		}
		return s
	}
}

func TestAggregate_TieBreakByFirstSeen(t *testing.T) {
	rows := []repo.MentionScoreRow{
		{ID: 1, SocialUserID: "B", SocialUsername: "b_old", Score: 15},
		{ID: 2, SocialUserID: "A", SocialUsername: "a", Score: 20},
		{ID: 3, SocialUserID: "C", SocialUsername: "c", Score: 10},
		{ID: 4, SocialUserID: "A", SocialUsername: "a", Score: 10},
		{ID: 5, SocialUserID: "B", SocialUsername: "b_new", Score: 15, Name: "Bee"},
	}
	got := Aggregate(rows)
	want := []struct {
		id    string
		rank  int
		total int64
		count int64
	}{{"B", 1, 30, 2}, {"A", 2, 30, 2}, {"C", 3, 10, 1}}
	if len(got) != len(want) {
		t.Fatalf("len = %d", len(got))
	}
	for i, w := range want {
		e := got[i]
		if e.SocialUserID != w.id || e.Rank != w.rank || e.TotalScore != w.total || e.MentionCount != w.count {
			t.Fatalf("entry %d = %+v; want %+v", i, e, w)
		}
	}
	if got[0].Username != "b_new" || got[0].Name != "Bee" {
		t.Fatalf("display fields not from latest row: %+v", got[0])
	}
	if out := Aggregate(nil); out == nil || len(out) != 0 {
		t.Fatalf("Aggregate(nil) = %v", out)
	}
}

func TestTopMentioners_RankingFromStore(t *testing.T) {
	s := seedMentions(t, newLeaderboard(t, false), []seedMention{
		{"B", 15}, {"A", 20}, {"C", 10}, {"A", 10}, {"B", 15},
	})
	page, err := s.TopMentioners(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	order := ""
	for _, e := range page.Items {
		order += fmt.Sprintf("%s%d ", e.SocialUserID, e.Rank)
	}
	if order != "B1 A2 C3 " {
		t.Fatalf("order = %q", order)
	}
	if page.Items[0].Name != "Name B" {
		t.Fatalf("name = %q", page.Items[0].Name)
	}
}

func TestTopMentioners_PaginationContinuity(t *testing.T) {
	s := seedMentions(t, newLeaderboard(t, true), []seedMention{
		{"u1", 50}, {"u2", 40}, {"u3", 30}, {"u4", 20}, {"u5", 10},
	})
	ctx := context.Background()
	wantRanks := [][]int{{1, 2}, {3, 4}, {5}}
	for i, want := range wantRanks {
		p, err := s.TopMentioners(ctx, i+1, 2)
		if err != nil {
			t.Fatalf("page %d: %v", i+1, err)
		}
		if p.TotalPages != 3 || p.TotalUsers != 5 {
			t.Fatalf("page %d totals = %d/%d", i+1, p.TotalPages, p.TotalUsers)
		}
		if len(p.Items) != len(want) {
			t.Fatalf("page %d len = %d", i+1, len(p.Items))
		}
		for j, r := range want {
			if p.Items[j].Rank != r {
				t.Fatalf("page %d item %d rank = %d; want %d", i+1, j, p.Items[j].Rank, r)
			}
		}
		if p.HasMore != (i < 2) {
			t.Fatalf("page %d has_more = %v", i+1, p.HasMore)
		}
	}

	past, err := s.TopMentioners(ctx, 9, 2)
	if err != nil || len(past.Items) != 0 {
		t.Fatalf("past end = %+v, %v", past, err)
	}
	if _, err := s.TopMentioners(ctx, 0, 2); !errors.Is(err, ErrValidation) {
		t.Fatalf("page 0 err = %v", err)
	}
}

func TestTopMentioners_CachedUntilRefresh(t *testing.T) {
	s := seedMentions(t, newLeaderboard(t, true), []seedMention{{"A", 10}})
	ctx := context.Background()
	if p, _ := s.TopMentioners(ctx, 1, 10); p.TotalUsers != 1 {
		t.Fatalf("users = %d", p.TotalUsers)
	}

	u := mustUser(t, s.DB, "wallet-late")
	late := domain.Mention{TweetID: "late", SocialUserID: "Z", SocialUsername: "z", Score: 25,
		CreatedAt: time.Now(), LinkedUserID: u.ID, IndexedAt: time.Now()}
	if _, err := repo.UpsertMentions(ctx, s.DB, []domain.Mention{late}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if p, _ := s.TopMentioners(ctx, 1, 10); p.TotalUsers != 1 {
		t.Fatalf("cache bypassed: users = %d", p.TotalUsers)
	}

	n, err := s.Refresh(ctx)
	if err != nil || n != 2 {
		t.Fatalf("refresh = %d, %v", n, err)
	}
	if p, _ := s.TopMentioners(ctx, 1, 10); p.Items[0].SocialUserID != "Z" {
		t.Fatalf("top = %+v", p.Items[0])
	}
}

func TestUserRank(t *testing.T) {
	s := seedMentions(t, newLeaderboard(t, true), []seedMention{{"A", 10}, {"B", 25}, {"A", 10}})
	ctx := context.Background()

	owner, _ := repo.GetUserByWallet(ctx, s.DB, "wallet-A")
	r, err := s.UserRank(ctx, owner.ID)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if r.Rank == nil || *r.Rank != 2 || r.MentionCount != 2 || r.TotalScore != 20 || r.Message != "" {
		t.Fatalf("rank = %+v", r)
	}
	st, _ := repo.GetUserStats(ctx, s.DB, owner.ID)
	if st.LeaderboardRank == nil || *st.LeaderboardRank != 2 {
		t.Fatalf("snapshot = %+v", st.LeaderboardRank)
	}

	unlinked := mustUser(t, s.DB, "wallet-none")
	r, err = s.UserRank(ctx, unlinked.ID)
	if err != nil || r.Rank != nil || r.Message != MsgNotLinked {
		t.Fatalf("unlinked = %+v, %v", r, err)
	}

	quiet := mustUser(t, s.DB, "wallet-quiet")
	mustLink(t, s.DB, quiet.ID, domain.SocialAccount{ID: "Q", Username: "quiet"})
	r, err = s.UserRank(ctx, quiet.ID)
	if err != nil || r.Rank != nil || r.MentionCount != 0 || r.Message != MsgNotRankedYet {
		t.Fatalf("quiet = %+v, %v", r, err)
	}

	if _, err := s.UserRank(ctx, "missing"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("missing err = %v", err)
	}
}
