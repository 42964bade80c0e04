package handlers

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/http/middleware"
	"github.com/tbourn/engrish-backend/internal/repo"
	"github.com/tbourn/engrish-backend/internal/services"
)

func TestGenerateImage(t *testing.T) {
	var gotKey, gotPrompt string
	imgs := &fakeImages{generate: func(uid, prompt, key string) (*domain.GeneratedImage, error) {
		gotPrompt, gotKey = prompt, key
		return &domain.GeneratedImage{ID: uuid.NewString(), UserID: uid, Prompt: prompt, ImageURL: "https://img/x.png", IsPublic: true}, nil
	}}
	r := mount(Services{Images: imgs})

	w := do(t, r, call{method: http.MethodPost, path: "/images", authed: true,
		body:    GenerateImageRequest{Prompt: "a cat in a top hat"},
		headers: map[string]string{middleware.HeaderIdempotencyKey: "idem-1"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("generate -> %d %s", w.Code, w.Body.String())
	}
	if img := decode[domain.GeneratedImage](t, w); img.UserID != testUser.ID || img.ImageURL == "" {
		t.Fatalf("image=%+v", img)
	}
	if gotKey != "idem-1" || gotPrompt != "a cat in a top hat" {
		t.Fatalf("service got key=%q prompt=%q", gotKey, gotPrompt)
	}

	w = do(t, r, call{method: http.MethodPost, path: "/images", authed: true, body: "{"})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
	if w := do(t, r, call{method: http.MethodPost, path: "/images", body: GenerateImageRequest{Prompt: "x"}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous -> %d", w.Code)
	}
}

func TestGenerateImage_RateLimitedCarriesSeconds(t *testing.T) {
	imgs := &fakeImages{generate: func(string, string, string) (*domain.GeneratedImage, error) {
		return nil, &services.RateLimitError{ResetAt: time.Now().Add(42 * time.Second)}
	}}
	w := do(t, mount(Services{Images: imgs}), call{method: http.MethodPost, path: "/images", authed: true, body: GenerateImageRequest{Prompt: "long enough prompt"}})
	e := expectError(t, w, http.StatusTooManyRequests, ErrCodeRateLimited)
	if e.RetryAfterSeconds < 41 || e.RetryAfterSeconds > 42 {
		t.Fatalf("retry_after_seconds=%d", e.RetryAfterSeconds)
	}
	if h := w.Header().Get("Retry-After"); h != strconv.Itoa(e.RetryAfterSeconds) {
		t.Fatalf("Retry-After=%q", h)
	}
}

func TestImageLists_CursorParsing(t *testing.T) {
	var gotCursor *repo.ImageCursor
	var gotLimit int
	page := &services.ImagePage{Items: []domain.GeneratedImage{}, NextCursor: "next-token", HasMore: true}
	imgs := &fakeImages{
		listMine: func(_ string, cursor *repo.ImageCursor, limit int) (*services.ImagePage, error) {
			gotCursor, gotLimit = cursor, limit
			return page, nil
		},
		gallery: func(cursor *repo.ImageCursor, limit int) (*services.ImagePage, error) {
			gotCursor, gotLimit = cursor, limit
			return page, nil
		},
	}
	r := mount(Services{Images: imgs})

	want := repo.ImageCursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC), ID: uuid.NewString()}
	w := do(t, r, call{method: http.MethodGet, path: "/gallery?limit=5&cursor=" + want.String()})
	if w.Code != http.StatusOK || gotCursor == nil || !gotCursor.CreatedAt.Equal(want.CreatedAt) || gotCursor.ID != want.ID || gotLimit != 5 {
		t.Fatalf("gallery -> %d cursor=%+v limit=%d", w.Code, gotCursor, gotLimit)
	}
	if got := decode[services.ImagePage](t, w); got.NextCursor != "next-token" || !got.HasMore {
		t.Fatalf("page body = %+v", got)
	}
	w = do(t, r, call{method: http.MethodGet, path: "/images", authed: true})
	if w.Code != http.StatusOK || gotCursor != nil || gotLimit != 0 {
		t.Fatalf("mine -> %d cursor=%v limit=%d", w.Code, gotCursor, gotLimit)
	}
	bare := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339)
	for _, q := range []string{"cursor=yesterday", "cursor=" + bare, "limit=many"} {
		w := do(t, r, call{method: http.MethodGet, path: "/gallery?" + q})
		expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
	}
}

func TestImageMutations(t *testing.T) {
	id := uuid.NewString()
	var gotPublic *bool
	imgs := &fakeImages{
		visibility: func(_, imageID string, public bool) (*domain.GeneratedImage, error) {
			gotPublic = &public
			return &domain.GeneratedImage{ID: imageID, IsPublic: public}, nil
		},
		share: func(_, imageID string) error {
			if imageID != id {
				return services.ErrNotFound
			}
			return nil
		},
		del: func(string, string) error { return services.ErrNotFound },
	}
	r := mount(Services{Images: imgs})

	w := do(t, r, call{method: http.MethodPatch, path: "/images/" + id + "/visibility", authed: true, body: map[string]bool{"is_public": false}})
	if w.Code != http.StatusOK || gotPublic == nil || *gotPublic {
		t.Fatalf("visibility -> %d %s", w.Code, w.Body.String())
	}
	w = do(t, r, call{method: http.MethodPatch, path: "/images/" + id + "/visibility", authed: true, body: map[string]string{}})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
	w = do(t, r, call{method: http.MethodPatch, path: "/images/not-a-uuid/visibility", authed: true, body: map[string]bool{"is_public": true}})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	if w := do(t, r, call{method: http.MethodPost, path: "/images/" + id + "/share", authed: true}); w.Code != http.StatusNoContent {
		t.Fatalf("share -> %d", w.Code)
	}
	w = do(t, r, call{method: http.MethodPost, path: "/images/" + uuid.NewString() + "/share", authed: true})
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound)

	w = do(t, r, call{method: http.MethodDelete, path: "/images/" + id, authed: true})
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound)
}
