package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type SignalKind string

const (
	SignalOAuth SignalKind = "oauth"
	SignalForm  SignalKind = "form"
)

// Signal is the ephemeral note a page leaves for the next load of the same
// session: an OAuth button was clicked, or a login form was submitted.
type Signal struct {
	Kind      SignalKind `json:"kind"`
	Domain    string     `json:"domain"`
	Value     string     `json:"value,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// ActiveAt reports whether the signal is still inside its window at now.
func (s Signal) ActiveAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// SignalStore is session-scoped. Put overwrites any signal of the same kind
// and domain; Take removes and returns it, or nil when there is none.
type SignalStore interface {
	Put(ctx context.Context, sig Signal) error
	Take(ctx context.Context, kind SignalKind, domain string) (*Signal, error)
}

type signalKey struct {
	kind   SignalKind
	domain string
}

// MemorySignalStore keeps the signals of one browsing session.
type MemorySignalStore struct {
	mu      sync.Mutex
	signals map[signalKey]Signal
}

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{signals: make(map[signalKey]Signal)}
}

func (s *MemorySignalStore) Put(_ context.Context, sig Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[signalKey{sig.Kind, sig.Domain}] = sig
	return nil
}

func (s *MemorySignalStore) Take(_ context.Context, kind SignalKind, domain string) (*Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signalKey{kind, domain}
	sig, ok := s.signals[key]
	if !ok {
		return nil, nil
	}
	delete(s.signals, key)
	return &sig, nil
}

func (s *MemorySignalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals)
}

// RedisSignalStore shares signals of one session between processes. Keys
// carry a TTL equal to the signal window; expiry is still judged from
// ExpiresAt so virtual clocks work too.
type RedisSignalStore struct {
	rdb       *redis.Client
	sessionID string
}

func NewRedisSignalStore(rdb *redis.Client, sessionID string) *RedisSignalStore {
	return &RedisSignalStore{rdb: rdb, sessionID: sessionID}
}

func (s *RedisSignalStore) Key(kind SignalKind, domain string) string {
	return fmt.Sprintf("capture:signal:%s:%s:%s", s.sessionID, kind, domain)
}

func (s *RedisSignalStore) Put(ctx context.Context, sig Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	ttl := sig.ExpiresAt.Sub(sig.CreatedAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.rdb.Set(ctx, s.Key(sig.Kind, sig.Domain), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s signal for %s: %w", sig.Kind, sig.Domain, err)
	}
	return nil
}

func (s *RedisSignalStore) Take(ctx context.Context, kind SignalKind, domain string) (*Signal, error) {
	data, err := s.rdb.GetDel(ctx, s.Key(kind, domain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take %s signal for %s: %w", kind, domain, err)
	}
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("decode %s signal: %w", kind, err)
	}
	return &sig, nil
}
