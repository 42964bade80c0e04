package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/http/middleware"
	"github.com/tbourn/engrish-backend/internal/repo"
	"github.com/tbourn/engrish-backend/internal/services"
)

// ---------- fakes ----------

type fakeAuth struct {
	challenge func(ctx context.Context, wallet string) (*services.Challenge, error)
	signIn    func(ctx context.Context, wallet, sig, msg string) (*services.Session, error)
	sessions  map[string]*domain.User
}

func (f *fakeAuth) RequestChallenge(ctx context.Context, wallet string) (*services.Challenge, error) {
	return f.challenge(ctx, wallet)
}

func (f *fakeAuth) SignIn(ctx context.Context, wallet, sig, msg string) (*services.Session, error) {
	return f.signIn(ctx, wallet, sig, msg)
}

func (f *fakeAuth) ResolveSession(_ context.Context, token string) *domain.User {
	return f.sessions[token]
}

type fakeBoard struct {
	top     func(page, limit int) (*domain.LeaderboardPage, error)
	rank    func(userID string) (*domain.UserRank, error)
	refresh func() (int, error)
}

func (f *fakeBoard) TopMentioners(_ context.Context, page, limit int) (*domain.LeaderboardPage, error) {
	return f.top(page, limit)
}

func (f *fakeBoard) UserRank(_ context.Context, uid string) (*domain.UserRank, error) {
	return f.rank(uid)
}

func (f *fakeBoard) Refresh(context.Context) (int, error) {
	return f.refresh()
}

type fakeMentions struct {
	link     func(uid, username string) (*domain.LinkResult, error)
	sync     func(uid string) (*domain.SyncResult, error)
	unlink   func(uid string) error
	mine     func(uid string, limit int) ([]domain.Mention, error)
	feed     func() ([]domain.Tweet, error)
	refeed   func() (int, error)
	lastUser string
}

func (f *fakeMentions) LinkAndIngest(_ context.Context, uid, username string) (*domain.LinkResult, error) {
	f.lastUser = uid
	return f.link(uid, username)
}

func (f *fakeMentions) SyncMentions(_ context.Context, uid string) (*domain.SyncResult, error) {
	return f.sync(uid)
}

func (f *fakeMentions) Unlink(_ context.Context, uid string) error {
	return f.unlink(uid)
}

func (f *fakeMentions) UserMentions(_ context.Context, uid string, limit int) ([]domain.Mention, error) {
	return f.mine(uid, limit)
}

func (f *fakeMentions) GlobalFeed(context.Context) ([]domain.Tweet, error) {
	return f.feed()
}

func (f *fakeMentions) RefreshFeed(context.Context) (int, error) {
	return f.refeed()
}

type fakeImages struct {
	generate   func(uid, prompt, key string) (*domain.GeneratedImage, error)
	listMine   func(uid string, cursor *repo.ImageCursor, limit int) (*services.ImagePage, error)
	gallery    func(cursor *repo.ImageCursor, limit int) (*services.ImagePage, error)
	visibility func(uid, id string, public bool) (*domain.GeneratedImage, error)
	share      func(uid, id string) error
	del        func(uid, id string) error
}

func (f *fakeImages) Generate(_ context.Context, uid, prompt, key string) (*domain.GeneratedImage, error) {
	return f.generate(uid, prompt, key)
}

func (f *fakeImages) ListMine(_ context.Context, uid string, cursor *repo.ImageCursor, limit int) (*services.ImagePage, error) {
	return f.listMine(uid, cursor, limit)
}

func (f *fakeImages) Gallery(_ context.Context, cursor *repo.ImageCursor, limit int) (*services.ImagePage, error) {
	return f.gallery(cursor, limit)
}

func (f *fakeImages) SetVisibility(_ context.Context, uid, id string, public bool) (*domain.GeneratedImage, error) {
	return f.visibility(uid, id, public)
}

func (f *fakeImages) MarkShared(_ context.Context, uid, id string) error {
	return f.share(uid, id)
}

func (f *fakeImages) Delete(_ context.Context, uid, id string) error {
	return f.del(uid, id)
}

type fakeUsers struct {
	profile func(uid string) (*domain.User, error)
	update  func(uid string, upd services.ProfileUpdate) (*domain.User, error)
	stats   func(uid string) (*domain.UserStats, error)
	del     func(uid string) error
}

func (f *fakeUsers) Profile(_ context.Context, uid string) (*domain.User, error) {
	return f.profile(uid)
}

func (f *fakeUsers) UpdateProfile(_ context.Context, uid string, upd services.ProfileUpdate) (*domain.User, error) {
	return f.update(uid, upd)
}

func (f *fakeUsers) Stats(_ context.Context, uid string) (*domain.UserStats, error) {
	return f.stats(uid)
}

func (f *fakeUsers) Delete(_ context.Context, uid string) error {
	return f.del(uid)
}

// ---------- wiring ----------

var testUser = &domain.User{ID: "u-1", WalletAddress: "wallet-1", Name: "User wall"}

const testToken = "tok-1"

// mount registers the endpoints the way the router does, minus the edge
// middleware.
func mount(svc Services) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if svc.Auth == nil {
		svc.Auth = &fakeAuth{sessions: map[string]*domain.User{testToken: testUser}}
	}
	h := New(svc, CookieOptions{Secure: true, TTL: time.Hour})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Next()
	})
	r.Use(middleware.Session(svc.Auth))
	r.POST("/auth/nonce", h.RequestNonce)
	r.POST("/auth/signin", h.SignIn)
	r.GET("/auth/session", h.GetSession)
	r.POST("/auth/signout", h.SignOut)
	r.GET("/leaderboard", h.TopMentioners)
	r.GET("/twitter/feed", h.GlobalFeed)
	r.GET("/gallery", h.Gallery)

	p := r.Group("", middleware.RequireAuth())
	p.GET("/leaderboard/me", h.MyRank)
	p.POST("/leaderboard/refresh", h.RefreshLeaderboard)
	p.POST("/twitter/link", h.LinkAccount)
	p.DELETE("/twitter/link", h.UnlinkAccount)
	p.POST("/twitter/sync", h.SyncMentions)
	p.GET("/twitter/mentions", h.ListMyMentions)
	p.POST("/twitter/feed/refresh", h.RefreshFeed)
	p.POST("/images", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.GenerateImage)
	p.GET("/images", h.ListMyImages)
	p.PATCH("/images/:id/visibility", h.SetImageVisibility)
	p.POST("/images/:id/share", h.ShareImage)
	p.DELETE("/images/:id", h.DeleteImage)
	p.GET("/me", h.GetProfile)
	p.PATCH("/me", h.UpdateProfile)
	p.GET("/me/stats", h.GetStats)
	p.DELETE("/me", h.DeleteAccount)
	return r
}

type call struct {
	method  string
	path    string
	body    any
	authed  bool
	headers map[string]string
}

func do(t *testing.T, r http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		switch b := c.body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode: %v", err)
			}
		}
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	e := decode[ErrorResponse](t, w)
	if e.Code != code || e.RequestID != "rid-test" {
		t.Fatalf("envelope=%+v want code %q", e, code)
	}
	return e
}
