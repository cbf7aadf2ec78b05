package issue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix and TTL for memoized classifications.
const (
	memoKeyPrefix  = "classify:"
	defaultMemoTTL = 24 * time.Hour
)

// MemoStore caches classification results keyed by raw-finding identity.
// Classification is pure, so a hit is always safe to reuse.
type MemoStore interface {
	Get(ctx context.Context, identity string) (*Issue, bool)
	Put(ctx context.Context, identity string, iss *Issue) error
}

// memoKey hashes the finding identity so arbitrary scanner payloads produce
// bounded redis keys.
func memoKey(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return memoKeyPrefix + hex.EncodeToString(sum[:])
}

// RedisMemoStore is a redis-backed classification memo store.
type RedisMemoStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMemoStore creates a redis-backed memo store.
func NewRedisMemoStore(client *redis.Client, ttl time.Duration) *RedisMemoStore {
	if ttl <= 0 {
		ttl = defaultMemoTTL
	}
	return &RedisMemoStore{client: client, ttl: ttl}
}

// Get retrieves a memoized issue, reporting whether it was present.
func (s *RedisMemoStore) Get(ctx context.Context, identity string) (*Issue, bool) {
	data, err := s.client.Get(ctx, memoKey(identity)).Bytes()
	if err != nil {
		return nil, false
	}
	var iss Issue
	if unmarshalErr := json.Unmarshal(data, &iss); unmarshalErr != nil {
		return nil, false
	}
	return &iss, true
}

// Put stores a classified issue under the finding identity.
func (s *RedisMemoStore) Put(ctx context.Context, identity string, iss *Issue) error {
	data, err := json.Marshal(iss)
	if err != nil {
		return fmt.Errorf("marshal issue: %w", err)
	}
	if setErr := s.client.Set(ctx, memoKey(identity), data, s.ttl).Err(); setErr != nil {
		return fmt.Errorf("set key: %w", setErr)
	}
	return nil
}

// MemoryMemoStore is an in-process memo store for tests and single-instance
// deployments without redis.
type MemoryMemoStore struct {
	mu      sync.RWMutex
	entries map[string]*Issue
}

// NewMemoryMemoStore creates an in-memory memo store.
func NewMemoryMemoStore() *MemoryMemoStore {
	return &MemoryMemoStore{entries: make(map[string]*Issue)}
}

// Get retrieves a memoized issue.
func (s *MemoryMemoStore) Get(_ context.Context, identity string) (*Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iss, ok := s.entries[identity]
	return iss, ok
}

// Put stores a classified issue.
func (s *MemoryMemoStore) Put(_ context.Context, identity string, iss *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[identity] = iss
	return nil
}
