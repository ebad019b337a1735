package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockorder/internal/domain/customer"
	"github.com/xenking/stockorder/internal/domain/product"
)

// InvalidCustomerError indicates the customer placing the order does not exist.
type InvalidCustomerError struct {
	CustomerID string
}

func (e *InvalidCustomerError) Error() string {
	return fmt.Sprintf("invalid customer %s", e.CustomerID)
}

// InvalidProductError indicates a requested product does not exist in the catalog.
type InvalidProductError struct {
	ProductID string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product %s", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// DuplicateProductError indicates the same product id appears more than once
// in a single request. Callers wanting a larger quantity of a product send it
// as one line.
type DuplicateProductError struct {
	ProductID string
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("product %s appears more than once in the order", e.ProductID)
}

// InsufficientStockError indicates a product's available quantity cannot
// cover the requested quantity.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough items of %q in stock: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// RequestedItem is one product line of an incoming order request.
type RequestedItem struct {
	ProductID string
	Quantity  int
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	CustomerID string
	Items      []RequestedItem
}

// Service encapsulates order creation business logic.
type Service struct {
	customers customer.Directory
	products  product.Repository
	orders    Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	customers customer.Directory,
	products product.Repository,
	orders Repository,
) *Service {
	return &Service{
		customers: customers,
		products:  products,
		orders:    orders,
	}
}

// CreateOrder resolves the customer, fetches the requested products in a
// single batch, validates quantities against available stock, persists the
// order with per-line price snapshots, and finally persists the decremented
// stock levels.
//
// All validation happens before any write: a business error leaves both the
// order store and the catalog untouched. An empty item list is valid and
// produces an order with no lines.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	cust, err := s.customers.FindByID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, &InvalidCustomerError{CustomerID: req.CustomerID}
		}
		return nil, errors.Wrap(err, "find customer")
	}

	// Validate quantities, reject duplicates, collect product IDs.
	ids := make([]string, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		if _, dup := seen[item.ProductID]; dup {
			return nil, &DuplicateProductError{ProductID: item.ProductID}
		}
		seen[item.ProductID] = struct{}{}
		ids[i] = item.ProductID
	}

	// Batch fetch current stock records. The fetched slice is our own copy;
	// quantities are decremented in place and persisted at the end.
	var stock []product.Product
	if len(ids) > 0 {
		stock, err = s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get products")
		}
	}

	byID := make(map[string]*product.Product, len(stock))
	for i := range stock {
		byID[stock[i].ID] = &stock[i]
	}

	// Build line items, checking and decrementing stock as we go.
	items := make([]LineItem, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &InvalidProductError{ProductID: item.ProductID}
		}
		if p.Quantity < item.Quantity {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: item.Quantity,
				Available: p.Quantity,
			}
		}

		p.Quantity -= item.Quantity
		items[i] = LineItem{
			ProductID: p.ID,
			Price:     p.Price,
			Quantity:  item.Quantity,
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	created, err := s.orders.Create(ctx, &Order{
		CustomerID: cust.ID,
		Items:      items,
		Total:      total.Round(2),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if len(stock) > 0 {
		if err := s.products.UpdateQuantities(ctx, stock); err != nil {
			return nil, errors.Wrap(err, "update stock")
		}
	}

	return created, nil
}
