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

type AddressRepository interface {
	Create(ctx context.Context, address *model.Address) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Address, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Address, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type pgAddressRepo struct{ pool *pgxpool.Pool }

func NewAddressRepository(pool *pgxpool.Pool) AddressRepository {
	return &pgAddressRepo{pool: pool}
}

const addressColumns = `id, buyer_id, full_name, phone, street, city, state, country, zip, created_at`

func scanAddress(row pgx.Row) (*model.Address, error) {
	a := &model.Address{}
	err := row.Scan(&a.ID, &a.BuyerID, &a.FullName, &a.Phone, &a.Street, &a.City, &a.State, &a.Country, &a.Zip, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *pgAddressRepo) Create(ctx context.Context, a *model.Address) error {
	a.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO addresses (id, buyer_id, full_name, phone, street, city, state, country, zip, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING created_at`,
		a.ID, a.BuyerID, a.FullName, a.Phone, a.Street, a.City, a.State, a.Country, a.Zip,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create address: %w", err)
	}
	return nil
}

func (r *pgAddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Address, error) {
	a, err := scanAddress(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

func (r *pgAddressRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Address, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE buyer_id = $1 ORDER BY created_at`, buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []model.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, *a)
	}
	return addresses, rows.Err()
}

func (r *pgAddressRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
