package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apiward/apiward/internal/config"
)

// ErrNotFound reports a checkpoint key with no stored state.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists opaque checkpoint blobs under string keys.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection before
// returning the store.
func NewRedisStore(cfg config.RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return data, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *redisStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return keys, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

type fallbackStore struct {
	primary Store
	backup  Store
}

// NewFallbackStore chains two stores: writes and reads go to primary, and
// any primary failure falls through to backup. A scan keeps checkpointing
// in memory when Redis drops away mid-run.
func NewFallbackStore(primary, backup Store) Store {
	return &fallbackStore{primary: primary, backup: backup}
}

func (s *fallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		return s.backup.Set(ctx, key, value, ttl)
	}
	return nil
}

func (s *fallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.primary.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	return s.backup.Get(ctx, key)
}

func (s *fallbackStore) Delete(ctx context.Context, key string) error {
	primaryErr := s.primary.Delete(ctx, key)
	backupErr := s.backup.Delete(ctx, key)
	if primaryErr != nil {
		return primaryErr
	}
	return backupErr
}

func (s *fallbackStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.primary.List(ctx, prefix)
	if err != nil {
		return s.backup.List(ctx, prefix)
	}
	return keys, nil
}

func (s *fallbackStore) Close() error {
	primaryErr := s.primary.Close()
	backupErr := s.backup.Close()
	if primaryErr != nil {
		return primaryErr
	}
	return backupErr
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns an in-process store. Scans survive pause/resume
// within one process lifetime only; entries expire lazily on access.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{data: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.data...), nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var keys []string
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, key)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryStore) Close() error {
	return nil
}
