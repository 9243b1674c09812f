package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"emailtracker/internal/model"
)

// RedisBackupStore mirrors records as JSON strings.
type RedisBackupStore struct {
	rdb *redis.Client
}

func NewRedisBackupStore(rdb *redis.Client) *RedisBackupStore {
	return &RedisBackupStore{rdb: rdb}
}

func (s *RedisBackupStore) Set(ctx context.Context, key string, record model.EmailRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode backup %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, payload, 0).Err()
}

func (s *RedisBackupStore) Get(ctx context.Context, key string) (*model.EmailRecord, error) {
	payload, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("backup %s: %w", key, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var record model.EmailRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", key, err)
	}
	return &record, nil
}

func (s *RedisBackupStore) Remove(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// MemoryBackupStore is the in-process mirror used by the local profile and tests.
type MemoryBackupStore struct {
	mu      sync.Mutex
	entries map[string]model.EmailRecord
	fail    error
}

func NewMemoryBackupStore() *MemoryBackupStore {
	return &MemoryBackupStore{entries: make(map[string]model.EmailRecord)}
}

func (s *MemoryBackupStore) Set(_ context.Context, key string, record model.EmailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries[key] = record.Clone()
	return nil
}

func (s *MemoryBackupStore) Get(_ context.Context, key string) (*model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	record, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("backup %s: %w", key, model.ErrNotFound)
	}
	out := record.Clone()
	return &out, nil
}

func (s *MemoryBackupStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.entries, key)
	return nil
}

// SetFailure makes subsequent calls fail with err (nil restores normal behaviour).
func (s *MemoryBackupStore) SetFailure(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Len reports how many keys are mirrored.
func (s *MemoryBackupStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NopBackupStore discards every write; selected by backup.driver=none.
type NopBackupStore struct{}

func (NopBackupStore) Set(context.Context, string, model.EmailRecord) error { return nil }

func (NopBackupStore) Get(_ context.Context, key string) (*model.EmailRecord, error) {
	return nil, fmt.Errorf("backup %s: %w", key, model.ErrNotFound)
}

func (NopBackupStore) Remove(context.Context, string) error { return nil }
