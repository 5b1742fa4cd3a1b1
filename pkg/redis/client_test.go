package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "login:ip", 2, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)
	require.EqualValues(t, 1, count)
	require.Len(t, mock.expireCalls, 1)

	allowed, count, err = client.FixedWindowAllow(ctx, "login:ip", 2, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)
	require.EqualValues(t, 2, count)
	require.Len(t, mock.expireCalls, 1, "expire should only be set on the first hit")

	allowed, _, err = client.FixedWindowAllow(ctx, "login:ip", 2, time.Second)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestGetDelConsumesValue(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.GuestCartKey("guest-1")

	require.NoError(t, client.Set(ctx, key, `[{"productId":"p"}]`, time.Hour))

	val, err := client.GetDel(ctx, key)
	require.NoError(t, err)
	require.Equal(t, `[{"productId":"p"}]`, val)

	_, err = client.GetDel(ctx, key)
	require.ErrorIs(t, err, ErrNil)
}

func TestUninitializedClient(t *testing.T) {
	var client *Client
	_, err := client.Get(context.Background(), "k")
	require.Error(t, err)
	require.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "mkt:idempotency:checkout:abc", client.IdempotencyKey("checkout", "abc"))
	require.Equal(t, "mkt:rate_limit:login", client.RateLimitKey("login"))
	require.Equal(t, "mkt:cart:guest:sess", client.GuestCartKey("sess"))
	require.Equal(t, "mkt:lock:order-expiry", client.LockKey("order-expiry"))
	require.Equal(t, "mkt:idempotency:scope", client.IdempotencyKey("scope", ""), "empty parts are skipped")
}

func TestOwnerCheckedWrites(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron-worker")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.ExpireIfEqual(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, mock.expireCalls)

	ok, err = client.ExpireIfEqual(ctx, key, "owner-a", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []expireCall{{key: key, ttl: 2 * time.Minute}}, mock.expireCalls)

	ok, err = client.DelIfEqual(ctx, key, "owner-b")
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, mock.data, key)

	ok, err = client.DelIfEqual(ctx, key, "owner-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, mock.data, key)
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) GetDel(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	delete(m.data, key)
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval understands the two owner-checked scripts the client sends.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	if m.data[key] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case delIfEqualScript:
		delete(m.data, key)
	case pexpireIfEqualScript:
		m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: time.Duration(args[1].(int64)) * time.Millisecond})
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}
