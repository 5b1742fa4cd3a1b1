package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func TestManagerOpenAndRevoke(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	manager := &Manager{store: store, keyer: store, ttl: time.Hour}

	accessID := NewAccessID()
	userID := uuid.New()
	require.NoError(t, manager.Open(ctx, accessID, userID))
	require.Equal(t, userID.String(), store.data["sess:"+accessID])
	require.Equal(t, time.Hour, store.ttls["sess:"+accessID])

	live, err := manager.HasSession(ctx, accessID)
	require.NoError(t, err)
	require.True(t, live)

	require.NoError(t, manager.Revoke(ctx, accessID))
	live, err = manager.HasSession(ctx, accessID)
	require.NoError(t, err)
	require.False(t, live)
}

func TestManagerRequiresAccessID(t *testing.T) {
	store := newMockStore()
	manager := &Manager{store: store, keyer: store, ttl: time.Hour}

	require.Error(t, manager.Open(context.Background(), " ", uuid.New()))
	require.Error(t, manager.Revoke(context.Background(), ""))
	_, err := manager.HasSession(context.Background(), "")
	require.Error(t, err)
}
