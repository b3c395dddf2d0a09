package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestWithRetry_SucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 3}, isRetryable, func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgSerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ExhaustedBecomesContention(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 4, BaseBackoff: time.Millisecond}, isRetryable, func(context.Context) error {
		calls++
		return fmt.Errorf("lock product: %w", &pgconn.PgError{Code: pgDeadlockDetected})
	})
	assert.ErrorIs(t, err, ErrContention)
	assert.Equal(t, 4, calls)
}

func TestWithRetry_DomainErrorIsNotRetried(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 5}, isRetryable, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrContention)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Hour}, isRetryable, func(context.Context) error {
		calls++
		cancel()
		return &pgconn.PgError{Code: pgSerializationFailure}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_AttemptTimeoutIsRetryable(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 2}, isRetryable, func(context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("lock rows: %w", context.DeadlineExceeded)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBackoff_GrowsExponentially(t *testing.T) {
	base := 10 * time.Millisecond
	for attempt := 0; attempt < 4; attempt++ {
		d := backoff(base, attempt)
		exp := base * time.Duration(1<<attempt)
		assert.GreaterOrEqual(t, d, exp)
		assert.LessOrEqual(t, d, exp+exp/2+1)
	}
	assert.Zero(t, backoff(0, 3))
}
