package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockorder/internal/domain/order"
)

const createOrderSQL = `INSERT INTO orders (id, customer_id, items, total)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order, assigning its UUID and creation timestamp.
// The line items are serialized to JSON for storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("marshaling order items: %w", err)
	}

	stored := *o
	stored.ID = uuid.New().String()

	err = r.pool.QueryRow(ctx, createOrderSQL,
		stored.ID, stored.CustomerID, itemsJSON, stored.Total,
	).Scan(&stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating order %q: %w", stored.ID, err)
	}

	return &stored, nil
}
