package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/flicky/marketplace-api/internal/model"
)

type OrderRepository interface {
	// Create inserts the order together with its seller groups and items.
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// GetForUpdate locks the order row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Order, error)
	// ListBySeller returns every order holding a group for sellerID.
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error)
	// ListArchivableIDs returns orders holding a group for sellerID where no group is pending.
	ListArchivableIDs(ctx context.Context, sellerID uuid.UUID) ([]uuid.UUID, error)
	UpdateGroupStatus(ctx context.Context, orderID, sellerID uuid.UUID, status model.OrderStatus) error
	RemoveGroup(ctx context.Context, orderID, sellerID uuid.UUID) error
	UpdateTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error
	Delete(ctx context.Context, orderID uuid.UUID) error
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

func (r *pgOrderRepo) Create(ctx context.Context, order *model.Order) error {
	db := conn(ctx, r.pool)
	order.ID = uuid.New()
	err := db.QueryRow(ctx,
		`INSERT INTO orders (id, buyer_id, address, total, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.BuyerID, order.Address, order.Total,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for gi := range order.Groups {
		g := &order.Groups[gi]
		err := db.QueryRow(ctx,
			`INSERT INTO order_groups (order_id, seller_id, status, updated_at)
			 VALUES ($1, $2, $3, NOW()) RETURNING updated_at`,
			order.ID, g.SellerID, g.Status,
		).Scan(&g.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order group: %w", err)
		}
		for pos, item := range g.Items {
			_, err := db.Exec(ctx,
				`INSERT INTO order_items (id, order_id, seller_id, position, product_id, name, price, main_image, quantity)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				uuid.New(), order.ID, g.SellerID, pos, item.ProductID, item.Name, item.Price, item.MainImage, item.Quantity,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
	}
	return nil
}

const orderColumns = `id, buyer_id, address, total, created_at, updated_at`

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *pgOrderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgOrderRepo) getOne(ctx context.Context, query string, id uuid.UUID) (*model.Order, error) {
	orders, err := r.list(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (r *pgOrderRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID,
	)
}

func (r *pgOrderRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders o
		 WHERE EXISTS (SELECT 1 FROM order_groups g WHERE g.order_id = o.id AND g.seller_id = $1)
		 ORDER BY created_at DESC`, sellerID,
	)
}

func (r *pgOrderRepo) ListArchivableIDs(ctx context.Context, sellerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT g.order_id FROM order_groups g
		 WHERE g.seller_id = $1
		   AND NOT EXISTS (SELECT 1 FROM order_groups p WHERE p.order_id = g.order_id AND p.status = $2)
		 ORDER BY g.order_id`,
		sellerID, model.OrderStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list archivable orders: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *pgOrderRepo) list(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	db := conn(ctx, r.pool)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.Address, &o.Total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	if err := r.loadGroups(ctx, db, ids, orders, index); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *pgOrderRepo) loadGroups(ctx context.Context, db DBTX, ids []uuid.UUID, orders []model.Order, index map[uuid.UUID]int) error {
	rows, err := db.Query(ctx,
		`SELECT order_id, seller_id, status, updated_at FROM order_groups
		 WHERE order_id = ANY($1) ORDER BY order_id, seller_id`, ids,
	)
	if err != nil {
		return fmt.Errorf("get order groups: %w", err)
	}
	for rows.Next() {
		var orderID uuid.UUID
		var g model.OrderLineGroup
		if err := rows.Scan(&orderID, &g.SellerID, &g.Status, &g.UpdatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan order group: %w", err)
		}
		o := &orders[index[orderID]]
		o.Groups = append(o.Groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("get order groups: %w", err)
	}

	rows, err = db.Query(ctx,
		`SELECT order_id, seller_id, product_id, name, price, main_image, quantity FROM order_items
		 WHERE order_id = ANY($1) ORDER BY order_id, seller_id, position`, ids,
	)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderID uuid.UUID
		var item model.OrderItem
		if err := rows.Scan(&orderID, &item.SellerID, &item.ProductID, &item.Name, &item.Price, &item.MainImage, &item.Quantity); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o := &orders[index[orderID]]
		if g, ok := o.Group(item.SellerID); ok {
			g.Items = append(g.Items, item)
		}
	}
	return rows.Err()
}

func (r *pgOrderRepo) UpdateGroupStatus(ctx context.Context, orderID, sellerID uuid.UUID, status model.OrderStatus) error {
	db := conn(ctx, r.pool)
	ct, err := db.Exec(ctx,
		`UPDATE order_groups SET status = $3, updated_at = NOW() WHERE order_id = $1 AND seller_id = $2`,
		orderID, sellerID, status,
	)
	if err != nil {
		return fmt.Errorf("update order group status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.touch(ctx, orderID)
}

func (r *pgOrderRepo) RemoveGroup(ctx context.Context, orderID, sellerID uuid.UUID) error {
	ct, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM order_groups WHERE order_id = $1 AND seller_id = $2`, orderID, sellerID,
	)
	if err != nil {
		return fmt.Errorf("remove order group: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgOrderRepo) UpdateTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	ct, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE orders SET total = $2, updated_at = NOW() WHERE id = $1`, orderID, total,
	)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgOrderRepo) Delete(ctx context.Context, orderID uuid.UUID) error {
	ct, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgOrderRepo) touch(ctx context.Context, orderID uuid.UUID) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, `UPDATE orders SET updated_at = NOW() WHERE id = $1`, orderID); err != nil {
		return fmt.Errorf("touch order: %w", err)
	}
	return nil
}
