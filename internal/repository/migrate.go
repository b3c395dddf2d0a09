package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'buyer',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`ALTER TABLE users ADD COLUMN IF NOT EXISTS profile_image TEXT NOT NULL DEFAULT ''`,

	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		seller_id UUID NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(100) NOT NULL,
		price NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
		main_image TEXT NOT NULL DEFAULT '',
		images JSONB NOT NULL DEFAULT '[]',
		properties JSONB NOT NULL DEFAULT '[]',
		stock INTEGER NOT NULL CHECK (stock >= 0),
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (name, description)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_seller_id ON products(seller_id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,

	`CREATE TABLE IF NOT EXISTS carts (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		cart_id UUID NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id UUID NOT NULL,
		seller_id UUID NOT NULL,
		name VARCHAR(255) NOT NULL,
		price NUMERIC(12, 2) NOT NULL,
		main_image TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (cart_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS addresses (
		id UUID PRIMARY KEY,
		buyer_id UUID NOT NULL,
		full_name VARCHAR(255) NOT NULL,
		phone VARCHAR(50) NOT NULL,
		street TEXT NOT NULL,
		city VARCHAR(100) NOT NULL,
		state VARCHAR(100) NOT NULL DEFAULT '',
		country VARCHAR(100) NOT NULL,
		zip VARCHAR(20) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (buyer_id, street, city, zip)
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		buyer_id UUID NOT NULL,
		address JSONB NOT NULL,
		total NUMERIC(12, 2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_buyer_id ON orders(buyer_id)`,
	`CREATE TABLE IF NOT EXISTS order_groups (
		order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		seller_id UUID NOT NULL,
		status VARCHAR(20) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (order_id, seller_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_groups_seller_id ON order_groups(seller_id)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL,
		seller_id UUID NOT NULL,
		position INTEGER NOT NULL,
		product_id UUID NOT NULL,
		name VARCHAR(255) NOT NULL,
		price NUMERIC(12, 2) NOT NULL,
		main_image TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		FOREIGN KEY (order_id, seller_id) REFERENCES order_groups(order_id, seller_id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS history_orders (
		id UUID PRIMARY KEY,
		original_order_id UUID NOT NULL,
		seller_id UUID NOT NULL,
		buyer_id UUID NOT NULL,
		status VARCHAR(20) NOT NULL,
		items JSONB NOT NULL,
		total NUMERIC(12, 2) NOT NULL,
		address JSONB NOT NULL,
		order_created_at TIMESTAMPTZ NOT NULL,
		cleared_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (original_order_id, seller_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_orders_seller_id ON history_orders(seller_id)`,
	`CREATE INDEX IF NOT EXISTS idx_history_orders_buyer_id ON history_orders(buyer_id)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}
