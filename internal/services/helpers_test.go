package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/imagegen"
	"github.com/tbourn/engrish-backend/internal/repo"
	"github.com/tbourn/engrish-backend/internal/twitter"
)

// newServiceDB opens a private in-memory database with the full schema.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustUser(t *testing.T, db *gorm.DB, wallet string) *domain.User {
	t.Helper()
	u, err := repo.GetOrCreateUserByWallet(context.Background(), db, wallet, domain.DefaultDisplayName(wallet))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func mustLink(t *testing.T, db *gorm.DB, userID string, acct domain.SocialAccount) {
	t.Helper()
	if _, err := repo.LinkTwitter(context.Background(), db, userID, acct, time.Now().UTC()); err != nil {
		t.Fatalf("link: %v", err)
	}
}

// ----- Fake social API -----

type fakeSocial struct {
	mu          sync.Mutex
	accounts    map[string]domain.SocialAccount
	tweets      []domain.Tweet
	lookupErr   error
	searchErr   error
	searchCalls int
	lastMax     int
}

var _ SocialSource = (*fakeSocial)(nil)

func (f *fakeSocial) LookupUser(_ context.Context, username string) (*domain.SocialAccount, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	a, ok := f.accounts[username]
	if !ok {
		return nil, twitter.ErrNotFound
	}
	return &a, nil
}

func (f *fakeSocial) SearchMentions(_ context.Context, _ string, maxResults int) ([]domain.Tweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastMax = maxResults
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]domain.Tweet(nil), f.tweets...), nil
}

func tweet(id, authorID, username string, image, video bool) domain.Tweet {
	return domain.Tweet{
		ID:        id,
		Text:      "tweet " + id,
		AuthorID:  authorID,
		Author:    domain.TweetAuthor{ID: authorID, Username: username, Name: username},
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		URL:       "https://x.com/" + username + "/status/" + id,
		HasImage:  image,
		HasVideo:  video,
		Score:     twitter.Score(image, video),
	}
}

// ----- Fake image generator -----

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
}

var _ Generator = (*fakeGenerator)(nil)

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (*imagegen.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &imagegen.Result{
		ID:       fmt.Sprintf("pred-%d", g.calls),
		ImageURL: fmt.Sprintf("https://cdn.example/%d.webp", g.calls),
	}, nil
}
