// Package handler adapts the HTTP surface to the domain services: request
// decoding, domain error mapping, and response encoding.
package handler

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/stockorder/internal/domain/order"
	"github.com/xenking/stockorder/internal/domain/product"
)

const instrumentationName = "github.com/xenking/stockorder/internal/handler"

// Handler serves the public API, delegating business logic to the order
// service and the product repository.
type Handler struct {
	products     product.Repository
	orderService *order.Service

	tracer        trace.Tracer
	ordersCreated metric.Int64Counter
}

// NewHandler constructs a Handler with the required domain dependencies.
// Tracer and meter come from the global OpenTelemetry providers.
func NewHandler(products product.Repository, orderService *order.Service) *Handler {
	ordersCreated, _ := otel.Meter(instrumentationName).Int64Counter(
		"orders.created",
		metric.WithDescription("Number of successfully created orders."),
	)

	return &Handler{
		products:      products,
		orderService:  orderService,
		tracer:        otel.Tracer(instrumentationName),
		ordersCreated: ordersCreated,
	}
}

// Register attaches all API routes to the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
}
