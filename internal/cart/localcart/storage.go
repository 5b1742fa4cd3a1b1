package localcart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// ErrNotFound is returned by Storage when the session has no saved cart.
var ErrNotFound = errors.New("local cart not found")

// Storage persists one serialized cart per guest session.
type Storage interface {
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Save(ctx context.Context, sessionID string, data []byte) error
	Delete(ctx context.Context, sessionID string) error
	// LoadAndDelete reads and removes the cart in a single step.
	LoadAndDelete(ctx context.Context, sessionID string) ([]byte, error)
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	GuestCartKey(sessionID string) string
}

// RedisStorage keeps guest carts under mkt:cart:guest:<session> with a
// sliding TTL refreshed on every write.
type RedisStorage struct {
	client redisStore
	ttl    time.Duration
}

// NewRedisStorage builds a Redis-backed Storage.
func NewRedisStorage(client redisStore, ttl time.Duration) (*RedisStorage, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		return nil, errors.New("guest cart ttl must be positive")
	}
	return &RedisStorage{client: client, ttl: ttl}, nil
}

func (s *RedisStorage) Load(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.client.GuestCartKey(sessionID))
	return redisResult(raw, err)
}

func (s *RedisStorage) Save(ctx context.Context, sessionID string, data []byte) error {
	return s.client.Set(ctx, s.client.GuestCartKey(sessionID), string(data), s.ttl)
}

func (s *RedisStorage) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.client.GuestCartKey(sessionID))
}

func (s *RedisStorage) LoadAndDelete(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := s.client.GetDel(ctx, s.client.GuestCartKey(sessionID))
	return redisResult(raw, err)
}

func redisResult(raw string, err error) ([]byte, error) {
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(raw), nil
}

// MemoryStorage is a process-local Storage for tests and single-node development.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string][]byte{}}
}

func (s *MemoryStorage) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Save(_ context.Context, sessionID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *MemoryStorage) LoadAndDelete(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.data, sessionID)
	return data, nil
}
