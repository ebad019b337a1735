package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item with a finite stock level. Callers that fetch
// products receive their own copies and may mutate Quantity freely before
// asking the repository to persist the new levels.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity int
	Category string
}

// Repository defines catalog operations over products and their stock levels.
//
// GetByIDs returns only the products that exist; ids without a match are
// silently absent from the result. UpdateQuantities persists the Quantity
// field of every given product as one batch: either all rows are updated or
// none are, and an update that would drive a quantity negative fails the
// whole batch.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	UpdateQuantities(ctx context.Context, products []Product) error
}
