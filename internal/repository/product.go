package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockorder/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, quantity, category
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, quantity, category
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, quantity, category
		FROM products WHERE id = ANY($1)`

	// The quantity >= 0 guard is enforced by the CHECK constraint on the
	// table; the WHERE clause makes the violation a no-match instead of a
	// constraint error so the whole batch can be rolled back deliberately.
	updateProductQuantitySQL = `UPDATE products SET quantity = $2
		WHERE id = $1 AND $2 >= 0`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. IDs without a
// matching row are simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// UpdateQuantities persists the stock level of every given product in a
// single transaction. If any product no longer exists or its new quantity is
// negative, the whole batch is rolled back.
func (r *ProductRepository) UpdateQuantities(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning stock update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(updateProductQuantitySQL, p.ID, p.Quantity)
	}

	br := tx.SendBatch(ctx, batch)
	for _, p := range products {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return fmt.Errorf("updating stock for %q: %w", p.ID, err)
		}
		if tag.RowsAffected() == 0 {
			br.Close()
			return fmt.Errorf("updating stock for %q: no matching row", p.ID)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing stock update batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing stock update: %w", err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Quantity, &p.Category)
	p.Price = price
	return p, err
}
