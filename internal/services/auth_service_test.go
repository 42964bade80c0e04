package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/engrish-backend/internal/auth"
	"github.com/tbourn/engrish-backend/internal/nonce"
	"github.com/tbourn/engrish-backend/internal/repo"
)

const testSecret = "test-secret-test-secret-test-secret"

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	return &AuthService{
		DB:     newServiceDB(t),
		Nonces: nonce.NewMemoryStore(0),
		Tokens: auth.NewTokens(testSecret, 0),
		Domain: "engrish.test",
	}
}

type wallet struct {
	addr string
	priv ed25519.PrivateKey
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return wallet{addr: auth.EncodeAddress(pub), priv: priv}
}

func (w wallet) sign(msg string) string {
	return auth.EncodeSignature(ed25519.Sign(w.priv, []byte(msg)))
}

func TestRequestChallenge_Validation(t *testing.T) {
	s := newAuthService(t)
	for _, addr := range []string{"", "   ", "not-a-wallet"} {
		if _, err := s.RequestChallenge(context.Background(), addr); !errors.Is(err, ErrValidation) {
			t.Fatalf("RequestChallenge(%q) err = %v; want ErrValidation", addr, err)
		}
	}
}

func TestSignIn_HappyPathCreatesUser(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	ch, err := s.RequestChallenge(ctx, w.addr)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if len(ch.Nonce) != 32 {
		t.Fatalf("nonce len = %d; want 32 hex chars", len(ch.Nonce))
	}

	sess, err := s.SignIn(ctx, w.addr, w.sign(ch.Message), ch.Message)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if sess.User.WalletAddress != w.addr {
		t.Fatalf("wallet = %q", sess.User.WalletAddress)
	}
	if want := "User " + w.addr[:4]; sess.User.Name != want {
		t.Fatalf("name = %q; want %q", sess.User.Name, want)
	}
	if time.Until(sess.ExpiresAt) < 29*24*time.Hour {
		t.Fatalf("expiry too short: %v", sess.ExpiresAt)
	}

	// The token resolves back to the same user.
	u := s.ResolveSession(ctx, sess.Token)
	if u == nil || u.ID != sess.User.ID {
		t.Fatalf("ResolveSession = %+v", u)
	}

	// A second sign-in reuses the row.
	ch2, _ := s.RequestChallenge(ctx, w.addr)
	sess2, err := s.SignIn(ctx, w.addr, w.sign(ch2.Message), "")
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if sess2.User.ID != sess.User.ID {
		t.Fatalf("user not reused: %s vs %s", sess2.User.ID, sess.User.ID)
	}
}

func TestSignIn_NonceIsSingleUse(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	ch, _ := s.RequestChallenge(ctx, w.addr)
	sig := w.sign(ch.Message)
	if _, err := s.SignIn(ctx, w.addr, sig, ch.Message); err != nil {
		t.Fatalf("first sign in: %v", err)
	}
	if _, err := s.SignIn(ctx, w.addr, sig, ch.Message); !errors.Is(err, ErrNonceExpired) {
		t.Fatalf("replay err = %v; want ErrNonceExpired", err)
	}
}

func TestSignIn_BadSignaturePreservesNonce(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)
	other := newWallet(t)

	ch, _ := s.RequestChallenge(ctx, w.addr)
	if _, err := s.SignIn(ctx, w.addr, other.sign(ch.Message), ch.Message); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v; want ErrInvalidSignature", err)
	}
	if _, err := s.SignIn(ctx, w.addr, "garbage-0OIl", ch.Message); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("malformed err = %v; want ErrInvalidSignature", err)
	}
	// The nonce survives, so a corrected signature succeeds.
	if _, err := s.SignIn(ctx, w.addr, w.sign(ch.Message), ch.Message); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestSignIn_MessageMismatchAndMissingFields(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	ch, _ := s.RequestChallenge(ctx, w.addr)
	tampered := ch.Message + " "
	if _, err := s.SignIn(ctx, w.addr, w.sign(tampered), tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v; want ErrInvalidSignature", err)
	}
	if _, err := s.SignIn(ctx, "", "sig", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing wallet err = %v", err)
	}
	if _, err := s.SignIn(ctx, w.addr, "", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing signature err = %v", err)
	}
}

func TestSignIn_WithoutChallenge(t *testing.T) {
	s := newAuthService(t)
	w := newWallet(t)
	msg := auth.SignInMessage(s.Domain, w.addr, "deadbeefdeadbeefdeadbeefdeadbeef")
	if _, err := s.SignIn(context.Background(), w.addr, w.sign(msg), msg); !errors.Is(err, ErrNonceExpired) {
		t.Fatalf("err = %v; want ErrNonceExpired", err)
	}
}

func TestSignIn_ConcurrentRedemptionHasOneWinner(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)
	ch, _ := s.RequestChallenge(ctx, w.addr)
	sig := w.sign(ch.Message)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SignIn(ctx, w.addr, sig, ch.Message); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d; want 1", wins)
	}
}

// reissuingStore issues a new nonce right after the first Peek, as a
// concurrent RequestChallenge would between verification and redemption.
type reissuingStore struct {
	nonce.Store
	fresh string
}

func (r *reissuingStore) Peek(ctx context.Context, wallet string) (string, bool) {
	v, ok := r.Store.Peek(ctx, wallet)
	if ok && r.fresh == "" {
		r.fresh, _ = r.Store.Issue(ctx, wallet)
	}
	return v, ok
}

func TestSignIn_StaleAttemptKeepsReissuedNonce(t *testing.T) {
	s := newAuthService(t)
	store := &reissuingStore{Store: s.Nonces}
	s.Nonces = store
	ctx := context.Background()
	w := newWallet(t)

	ch, _ := s.RequestChallenge(ctx, w.addr)
	if _, err := s.SignIn(ctx, w.addr, w.sign(ch.Message), ch.Message); !errors.Is(err, ErrNonceExpired) {
		t.Fatalf("stale err = %v; want ErrNonceExpired", err)
	}
	if store.fresh == "" || store.fresh == ch.Nonce {
		t.Fatalf("no reissue happened: %q", store.fresh)
	}
	if got, ok := store.Store.Peek(ctx, w.addr); !ok || got != store.fresh {
		t.Fatalf("reissued nonce lost: %q %v", got, ok)
	}

	msg := auth.SignInMessage(s.Domain, w.addr, store.fresh)
	if _, err := s.SignIn(ctx, w.addr, w.sign(msg), msg); err != nil {
		t.Fatalf("sign in with reissued nonce: %v", err)
	}
}

func TestResolveSession_FailsClosed(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)
	ch, _ := s.RequestChallenge(ctx, w.addr)
	sess, err := s.SignIn(ctx, w.addr, w.sign(ch.Message), ch.Message)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if u := s.ResolveSession(ctx, ""); u != nil {
		t.Fatal("empty token resolved")
	}
	if u := s.ResolveSession(ctx, "garbage"); u != nil {
		t.Fatal("garbage token resolved")
	}

	rotated := *s
	rotated.Tokens = auth.NewTokens("another-secret-another-secret-xx", 0)
	if u := rotated.ResolveSession(ctx, sess.Token); u != nil {
		t.Fatal("token signed with old secret resolved")
	}

	// Profile edits are visible immediately.
	name := "Renamed"
	if _, err := repo.UpdateProfile(ctx, s.DB, sess.User.ID, repo.ProfilePatch{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if u := s.ResolveSession(ctx, sess.Token); u == nil || u.Name != "Renamed" {
		t.Fatalf("ResolveSession after edit = %+v", u)
	}

	if err := repo.DeleteUser(ctx, s.DB, sess.User.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if u := s.ResolveSession(ctx, sess.Token); u != nil {
		t.Fatal("deleted user resolved")
	}
}
