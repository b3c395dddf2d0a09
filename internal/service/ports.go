package service

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/flicky/marketplace-api/internal/dto"
	"github.com/flicky/marketplace-api/internal/model"
)

type EventPublisher interface {
	Publish(ctx context.Context, event model.OrderEvent) error
}

type ProductCache interface {
	Get(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, bool)
	Set(ctx context.Context, product dto.ProductResponse)
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// IdempotencyStore maps a client supplied checkout key to the order it produced.
type IdempotencyStore interface {
	// Reserve claims key. When the key is already taken it returns the stored
	// order id, or uuid.Nil while the first request is still running.
	Reserve(ctx context.Context, key string) (orderID uuid.UUID, reserved bool, err error)
	Complete(ctx context.Context, key string, orderID uuid.UUID) error
	Release(ctx context.Context, key string) error
}

type TimelineReader interface {
	Timeline(ctx context.Context, orderID uuid.UUID) ([]model.StatusRecord, error)
}

type ImageUploader interface {
	Upload(ctx context.Context, file io.Reader, filename string) (string, error)
}
