package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a customer order. Items carry the price each product had at the
// moment the order was created; later catalog changes do not affect it.
type Order struct {
	ID         string
	CustomerID string
	Items      []LineItem
	Total      decimal.Decimal
	CreatedAt  time.Time
}

// LineItem is a priced, quantified reference to one product within an order.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Repository persists orders. Create stores the draft order, assigns its
// identity and creation timestamp, and returns the stored representation.
type Repository interface {
	Create(ctx context.Context, o *Order) (*Order, error)
}
