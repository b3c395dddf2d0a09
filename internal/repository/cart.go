package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/marketplace-api/internal/model"
)

type CartRepository interface {
	// GetByUserID returns nil when the user has no cart yet.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// GetOrCreateForUpdate returns the user's cart with its row locked, creating it if needed.
	GetOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// GetForUpdate returns the user's locked cart, or nil when there is none.
	GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	AddItem(ctx context.Context, cartID uuid.UUID, item model.CartItem) error
	UpdateItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	Delete(ctx context.Context, cartID uuid.UUID) error
}

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

func (r *pgCartRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return r.load(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`, userID)
}

func (r *pgCartRepo) GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return r.load(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *pgCartRepo) GetOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO carts (id, user_id, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.New(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	cart, err := r.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, fmt.Errorf("create cart: %w", ErrNotFound)
	}
	return cart, nil
}

func (r *pgCartRepo) load(ctx context.Context, query string, userID uuid.UUID) (*model.Cart, error) {
	db := conn(ctx, r.pool)
	cart := &model.Cart{}
	err := db.QueryRow(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := db.Query(ctx,
		`SELECT product_id, seller_id, name, price, main_image, quantity
		 FROM cart_items WHERE cart_id = $1 ORDER BY created_at, product_id`, cart.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = []model.CartItem{}
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ProductID, &item.SellerID, &item.Name, &item.Price, &item.MainImage, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	return cart, nil
}

func (r *pgCartRepo) AddItem(ctx context.Context, cartID uuid.UUID, item model.CartItem) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO cart_items (cart_id, product_id, seller_id, name, price, main_image, quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		cartID, item.ProductID, item.SellerID, item.Name, item.Price, item.MainImage, item.Quantity,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("add cart item: %w", err)
	}
	return r.touch(ctx, cartID)
}

func (r *pgCartRepo) UpdateItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error {
	ct, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE cart_items SET quantity = $3, updated_at = NOW() WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.touch(ctx, cartID)
}

func (r *pgCartRepo) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return r.touch(ctx, cartID)
}

func (r *pgCartRepo) Delete(ctx context.Context, cartID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (r *pgCartRepo) touch(ctx context.Context, cartID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
