package cache

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/marketplace-api/internal/dto"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestProductCache(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	c := NewProductCache(client, slog.Default())

	p := dto.ProductResponse{ID: uuid.New(), Name: "lamp", Price: decimal.NewFromFloat(19.5), Stock: 3}
	_, ok := c.Get(ctx, p.ID)
	assert.False(t, ok)

	c.Set(ctx, p)
	got, ok := c.Get(ctx, p.ID)
	require.True(t, ok)
	assert.Equal(t, "lamp", got.Name)
	assert.True(t, p.Price.Equal(got.Price))

	ttl, err := client.TTL(ctx, productKey(p.ID)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, ProductTTL)

	c.Invalidate(ctx, p.ID, uuid.New())
	_, ok = c.Get(ctx, p.ID)
	assert.False(t, ok)
}

func TestIdempotencyStore(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	s := NewIdempotencyStore(client, time.Minute)
	key := uuid.NewString() + ":checkout-1"

	id, reserved, err := s.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Equal(t, uuid.Nil, id)

	id, reserved, err = s.Reserve(ctx, key)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, uuid.Nil, id, "in flight")

	orderID := uuid.New()
	require.NoError(t, s.Complete(ctx, key, orderID))
	id, reserved, err = s.Reserve(ctx, key)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, orderID, id)

	require.NoError(t, s.Release(ctx, key))
	_, reserved, err = s.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, reserved)
}

// expiringKeyHook answers every SETNX as taken and every GET as missing, the
// way a key that expires between the two commands looks to the client.
type expiringKeyHook struct{ gets int }

func (h *expiringKeyHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *expiringKeyHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *expiringKeyHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		switch cmd.Name() {
		case "set", "setnx":
			cmd.(*redis.BoolCmd).SetVal(false)
			return nil
		case "get":
			h.gets++
			return redis.Nil
		}
		return next(ctx, cmd)
	}
}

func TestIdempotencyStore_ReserveReportsKeyChurn(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { client.Close() })
	hook := &expiringKeyHook{}
	client.AddHook(hook)

	id, reserved, err := NewIdempotencyStore(client, time.Minute).Reserve(context.Background(), "buyer:key")
	require.ErrorIs(t, err, ErrKeyChurn)
	assert.False(t, reserved)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, reserveAttempts, hook.gets)
}

func TestEventLedger(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	l := NewEventLedger(client)
	eventID := uuid.New()

	seen, err := l.Processed(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, l.MarkProcessed(ctx, eventID))
	seen, err = l.Processed(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, seen)
}
