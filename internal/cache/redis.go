package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/marketplace-api/internal/dto"
)

const (
	productKeyPrefix   = "product:"
	checkoutKeyPrefix  = "checkout:"
	processedKeyPrefix = "event_processed:"

	ProductTTL   = 60 * time.Second
	processedTTL = 24 * time.Hour

	pendingMarker = "pending"

	reserveAttempts = 3
)

// ErrKeyChurn means a checkout key kept expiring between SETNX and GET.
var ErrKeyChurn = errors.New("checkout key expired while being read")

// ProductCache keeps product responses in Redis. Errors are logged and
// treated as misses so the database stays the source of truth.
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewProductCache(client *redis.Client, log *slog.Logger) *ProductCache {
	return &ProductCache{client: client, ttl: ProductTTL, log: log}
}

func productKey(id uuid.UUID) string { return productKeyPrefix + id.String() }

func (c *ProductCache) Get(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, bool) {
	data, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("read product cache", "product_id", id, "error", err)
		}
		return nil, false
	}
	var p dto.ProductResponse
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Warn("decode cached product", "product_id", id, "error", err)
		return nil, false
	}
	return &p, true
}

func (c *ProductCache) Set(ctx context.Context, p dto.ProductResponse) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, productKey(p.ID), data, c.ttl).Err(); err != nil {
		c.log.Warn("write product cache", "product_id", p.ID, "error", err)
	}
}

func (c *ProductCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("invalidate product cache", "products", len(ids), "error", err)
	}
}

// IdempotencyStore remembers which order a checkout key produced.
// A key holds "pending" while the first request is still running.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Reserve claims key. When the key is already taken it returns the order id
// stored for it, or uuid.Nil while that order is still being placed.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (uuid.UUID, bool, error) {
	redisKey := checkoutKeyPrefix + key
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ok, err := s.client.SetNX(ctx, redisKey, pendingMarker, s.ttl).Result()
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("reserve checkout key: %w", err)
		}
		if ok {
			return uuid.Nil, true, nil
		}

		value, err := s.client.Get(ctx, redisKey).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("read checkout key: %w", err)
		}
		if value == pendingMarker {
			return uuid.Nil, false, nil
		}
		orderID, err := uuid.Parse(value)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("corrupt checkout key %q: %w", key, err)
		}
		return orderID, false, nil
	}
	return uuid.Nil, false, fmt.Errorf("reserve checkout key %q: %w", key, ErrKeyChurn)
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, orderID uuid.UUID) error {
	if err := s.client.Set(ctx, checkoutKeyPrefix+key, orderID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("store checkout key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, checkoutKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release checkout key: %w", err)
	}
	return nil
}

// EventLedger records which broker events the worker already handled.
type EventLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEventLedger(client *redis.Client) *EventLedger {
	return &EventLedger{client: client, ttl: processedTTL}
}

func (l *EventLedger) Processed(ctx context.Context, eventID uuid.UUID) (bool, error) {
	n, err := l.client.Exists(ctx, processedKeyPrefix+eventID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return n > 0, nil
}

func (l *EventLedger) MarkProcessed(ctx context.Context, eventID uuid.UUID) error {
	if err := l.client.Set(ctx, processedKeyPrefix+eventID.String(), "1", l.ttl).Err(); err != nil {
		return fmt.Errorf("mark processed event: %w", err)
	}
	return nil
}
