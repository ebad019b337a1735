package order

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/stockorder/internal/domain/customer"
	"github.com/xenking/stockorder/internal/domain/product"
)

// --- Mock implementations ---

type mockDirectory struct {
	byID    map[string]*customer.Customer
	findErr error
	calls   int
}

func (m *mockDirectory) FindByID(_ context.Context, id string) (*customer.Customer, error) {
	m.calls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

type mockCatalog struct {
	byID       map[string]product.Product
	getErr     error
	updateErr  error
	getCalls   int
	lastUpdate []product.Product
}

func (m *mockCatalog) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalog) UpdateQuantities(_ context.Context, products []product.Product) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.lastUpdate = products
	for _, p := range products {
		m.byID[p.ID] = p
	}
	return nil
}

type mockOrderRepo struct {
	err     error
	created []*Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) (*Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	stored := *o
	stored.ID = fmt.Sprintf("order-%d", len(m.created)+1)
	m.created = append(m.created, &stored)
	return &stored, nil
}

// --- Helpers ---

func newDirectory(ids ...string) *mockDirectory {
	byID := make(map[string]*customer.Customer, len(ids))
	for _, id := range ids {
		byID[id] = &customer.Customer{ID: id, Name: "Customer " + id}
	}
	return &mockDirectory{byID: byID}
}

func newCatalog(products ...product.Product) *mockCatalog {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalog{byID: byID}
}

func widget(quantity int) product.Product {
	return product.Product{
		ID:       "P1",
		Name:     "Widget",
		Price:    decimal.NewFromInt(10),
		Quantity: quantity,
		Category: "tools",
	}
}

// --- Tests ---

func TestCreateOrder_Success(t *testing.T) {
	catalog := newCatalog(widget(5))
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	got, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []RequestedItem{{ProductID: "P1", Quantity: 3}},
	})

	require.NoError(t, err)
	assert.Equal(t, "C1", got.CustomerID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "P1", got.Items[0].ProductID)
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Items[0].Price))
	assert.True(t, decimal.NewFromInt(30).Equal(got.Total))

	// Stock decremented and persisted.
	assert.Equal(t, 2, catalog.byID["P1"].Quantity)
	require.Len(t, catalog.lastUpdate, 1)
}

func TestCreateOrder_InvalidCustomer(t *testing.T) {
	catalog := newCatalog(widget(5))
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory(), catalog, repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C_missing",
		Items:      []RequestedItem{{ProductID: "P1", Quantity: 1}},
	})

	var icErr *InvalidCustomerError
	require.ErrorAs(t, err, &icErr)
	assert.Equal(t, "C_missing", icErr.CustomerID)

	// No catalog read, no persistence of any kind.
	assert.Zero(t, catalog.getCalls)
	assert.Nil(t, catalog.lastUpdate)
	assert.Empty(t, repo.created)
}

func TestCreateOrder_DirectoryError(t *testing.T) {
	dir := &mockDirectory{findErr: errors.New("directory down")}
	svc := NewService(dir, newCatalog(), &mockOrderRepo{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{CustomerID: "C1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "find customer")
}

func TestCreateOrder_InvalidProduct(t *testing.T) {
	catalog := newCatalog(widget(5))
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items: []RequestedItem{
			{ProductID: "P1", Quantity: 1},
			{ProductID: "P2", Quantity: 1},
		},
	})

	var ipErr *InvalidProductError
	require.ErrorAs(t, err, &ipErr)
	assert.Equal(t, "P2", ipErr.ProductID)

	// No partial order and no stock change for any product in the request.
	assert.Empty(t, repo.created)
	assert.Nil(t, catalog.lastUpdate)
	assert.Equal(t, 5, catalog.byID["P1"].Quantity)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	catalog := newCatalog(widget(5))
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []RequestedItem{{ProductID: "P1", Quantity: 10}},
	})

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "Widget", isErr.Name)
	assert.Equal(t, 10, isErr.Requested)
	assert.Equal(t, 5, isErr.Available)
	assert.Contains(t, err.Error(), "Widget")

	assert.Empty(t, repo.created)
	assert.Equal(t, 5, catalog.byID["P1"].Quantity)
}

func TestCreateOrder_InsufficientStockAbortsWholeRequest(t *testing.T) {
	gadget := product.Product{
		ID: "P2", Name: "Gadget", Price: decimal.NewFromInt(20), Quantity: 1,
	}
	catalog := newCatalog(widget(5), gadget)
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items: []RequestedItem{
			{ProductID: "P1", Quantity: 2}, // would pass on its own
			{ProductID: "P2", Quantity: 3}, // fails
		},
	})

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "Gadget", isErr.Name)

	// All-or-nothing: P1's stock is untouched too.
	assert.Equal(t, 5, catalog.byID["P1"].Quantity)
	assert.Equal(t, 1, catalog.byID["P2"].Quantity)
	assert.Nil(t, catalog.lastUpdate)
	assert.Empty(t, repo.created)
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	catalog := newCatalog(widget(5))
	svc := NewService(newDirectory("C1"), catalog, &mockOrderRepo{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []RequestedItem{{ProductID: "P1", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "P1", iqErr.ProductID)
	assert.Zero(t, catalog.getCalls)
}

func TestCreateOrder_DuplicateProduct(t *testing.T) {
	catalog := newCatalog(widget(5))
	svc := NewService(newDirectory("C1"), catalog, &mockOrderRepo{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items: []RequestedItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P1", Quantity: 2},
		},
	})

	var dupErr *DuplicateProductError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "P1", dupErr.ProductID)
	assert.Zero(t, catalog.getCalls)
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	catalog := newCatalog(widget(5))
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	got, err := svc.CreateOrder(context.Background(), CreateOrderRequest{CustomerID: "C1"})

	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.True(t, decimal.Zero.Equal(got.Total))
	// Degenerate order: the catalog is never consulted.
	assert.Zero(t, catalog.getCalls)
	assert.Nil(t, catalog.lastUpdate)
}

func TestCreateOrder_MultipleProducts(t *testing.T) {
	gadget := product.Product{
		ID: "P2", Name: "Gadget", Price: decimal.RequireFromString("19.99"), Quantity: 4,
	}
	catalog := newCatalog(widget(5), gadget)
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	got, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items: []RequestedItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 3},
		},
	})

	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "P1", got.Items[0].ProductID)
	assert.Equal(t, "P2", got.Items[1].ProductID)
	assert.True(t, decimal.RequireFromString("79.97").Equal(got.Total))

	assert.Equal(t, 3, catalog.byID["P1"].Quantity)
	assert.Equal(t, 1, catalog.byID["P2"].Quantity)
}

func TestCreateOrder_NotIdempotent(t *testing.T) {
	catalog := newCatalog(widget(5))
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	req := CreateOrderRequest{
		CustomerID: "C1",
		Items:      []RequestedItem{{ProductID: "P1", Quantity: 2}},
	}

	first, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	// Two distinct orders, stock decremented twice.
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, repo.created, 2)
	assert.Equal(t, 1, catalog.byID["P1"].Quantity)
}

func TestCreateOrder_OrderCreateError(t *testing.T) {
	catalog := newCatalog(widget(5))
	svc := NewService(newDirectory("C1"), catalog, &mockOrderRepo{err: errors.New("db write failed")})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []RequestedItem{{ProductID: "P1", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	// Stock update never runs when the order insert fails.
	assert.Nil(t, catalog.lastUpdate)
}

func TestCreateOrder_StockUpdateError(t *testing.T) {
	catalog := newCatalog(widget(5))
	catalog.updateErr = errors.New("catalog down")
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []RequestedItem{{ProductID: "P1", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "update stock")
	// The order was already persisted; the failure surfaces as-is.
	assert.Len(t, repo.created, 1)
}

func TestCreateOrder_GetProductsError(t *testing.T) {
	catalog := newCatalog(widget(5))
	catalog.getErr = errors.New("catalog down")
	repo := &mockOrderRepo{}
	svc := NewService(newDirectory("C1"), catalog, repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []RequestedItem{{ProductID: "P1", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")
	assert.Empty(t, repo.created)
}
