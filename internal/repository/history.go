package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/marketplace-api/internal/model"
)

type HistoryRepository interface {
	// Insert archives one seller slice. It reports false when the
	// (original order, seller) pair was already archived.
	Insert(ctx context.Context, h *model.HistoryOrder) (bool, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.HistoryOrder, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.HistoryOrder, error)
}

type pgHistoryRepo struct{ pool *pgxpool.Pool }

func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &pgHistoryRepo{pool: pool}
}

func (r *pgHistoryRepo) Insert(ctx context.Context, h *model.HistoryOrder) (bool, error) {
	h.ID = uuid.New()
	ct, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO history_orders (id, original_order_id, seller_id, buyer_id, status, items, total, address,
			order_created_at, cleared_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (original_order_id, seller_id) DO NOTHING`,
		h.ID, h.OriginalOrderID, h.SellerID, h.BuyerID, h.Status, h.Items, h.Total, h.Address, h.OrderCreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert history order: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

const historyColumns = `id, original_order_id, seller_id, buyer_id, status, items, total, address,
	order_created_at, cleared_at`

func (r *pgHistoryRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.HistoryOrder, error) {
	return r.list(ctx, `SELECT `+historyColumns+` FROM history_orders WHERE seller_id = $1 ORDER BY cleared_at DESC`, sellerID)
}

func (r *pgHistoryRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.HistoryOrder, error) {
	return r.list(ctx, `SELECT `+historyColumns+` FROM history_orders WHERE buyer_id = $1 ORDER BY cleared_at DESC`, buyerID)
}

func (r *pgHistoryRepo) list(ctx context.Context, query string, id uuid.UUID) ([]model.HistoryOrder, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list history orders: %w", err)
	}
	defer rows.Close()

	var history []model.HistoryOrder
	for rows.Next() {
		var h model.HistoryOrder
		if err := rows.Scan(
			&h.ID, &h.OriginalOrderID, &h.SellerID, &h.BuyerID, &h.Status, &h.Items,
			&h.Total, &h.Address, &h.OrderCreatedAt, &h.ClearedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history order: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
