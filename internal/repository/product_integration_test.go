//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrent buyers racing for the last units of one product never drive stock negative.
func TestProductRepository_ConcurrentDecrements(t *testing.T) {
	pool := requireDB(t)
	cleanupTable(t, allTables...)

	products := NewProductRepository(pool)
	tx := NewTxManager(pool, RetryPolicy{MaxAttempts: 10, AttemptTimeout: 5 * time.Second, BaseBackoff: 5 * time.Millisecond})
	ctx := context.Background()

	product := newTestProduct(uuid.New(), "Last units", 5)
	require.NoError(t, products.Create(ctx, product))

	const buyers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.WithinTx(ctx, func(ctx context.Context) error {
				p, err := products.GetForUpdate(ctx, product.ID)
				if err != nil {
					return err
				}
				if p.Stock < 1 {
					return ErrNegativeStock
				}
				return products.AdjustStock(ctx, product.ID, -1)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrContention):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, succeeded, 5)
	assert.Equal(t, buyers, succeeded+rejected)

	found, err := products.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5-succeeded, found.Stock)
	assert.GreaterOrEqual(t, found.Stock, 0)
}
