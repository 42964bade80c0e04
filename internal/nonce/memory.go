package nonce

import (
	"context"
	"sync"
	"time"
)

type record struct {
	value    string
	issuedAt time.Time
}

// MemoryStore is a process-local Store. It suits single-instance deployments;
// run several instances behind a balancer with RedisStore instead.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]record
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore returns an empty store. A ttl <= 0 falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]record),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue stores a fresh nonce for wallet and sweeps every expired entry.
func (s *MemoryStore) Issue(_ context.Context, wallet string) (string, error) {
	n, err := Generate()
	if err != nil {
		return "", err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.entries {
		if s.expired(r, now) {
			delete(s.entries, k)
		}
	}
	s.entries[wallet] = record{value: n, issuedAt: now}
	return n, nil
}

// Peek returns the active nonce, evicting it when it has expired.
func (s *MemoryStore) Peek(_ context.Context, wallet string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entries[wallet]
	if !ok {
		return "", false
	}
	if s.expired(r, s.now()) {
		delete(s.entries, wallet)
		return "", false
	}
	return r.value, true
}

// Consume removes the nonce for wallet when it matches want and is still
// fresh. A mismatch leaves the stored nonce in place; an expired one is
// evicted.
func (s *MemoryStore) Consume(_ context.Context, wallet, want string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entries[wallet]
	if !ok {
		return false
	}
	if s.expired(r, s.now()) {
		delete(s.entries, wallet)
		return false
	}
	if r.value != want {
		return false
	}
	delete(s.entries, wallet)
	return true
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(r record, now time.Time) bool {
	return now.Sub(r.issuedAt) > s.ttl
}
