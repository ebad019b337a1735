package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/stockorder/internal/domain/order"
)

// maxOrderBodySize bounds the request body to keep decoding cheap.
const maxOrderBodySize = 1 << 20

// CreateOrder handles POST /api/orders. It decodes the request, delegates to
// the order service, and maps domain errors to HTTP statuses.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOrderBodySize))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "cannot read request body")
		return
	}

	req, err := decodeOrderRequest(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed order request")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	created, err := h.orderService.CreateOrder(ctx, req)
	if err != nil {
		status, message, ok := mapOrderError(err)
		if !ok {
			zctx.From(ctx).Error("Create order", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeError(w, r, status, message)
		return
	}

	h.ordersCreated.Add(ctx, 1)
	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, created)
	})
}

// mapOrderError converts the order service's business errors to HTTP status
// codes. It reports ok=false for infrastructure errors, which are not
// classified here.
func mapOrderError(err error) (status int, message string, ok bool) {
	var (
		iqErr  *order.InvalidQuantityError
		dupErr *order.DuplicateProductError
		icErr  *order.InvalidCustomerError
		ipErr  *order.InvalidProductError
		isErr  *order.InsufficientStockError
	)

	switch {
	case errors.As(err, &iqErr):
		return http.StatusBadRequest, iqErr.Error(), true
	case errors.As(err, &dupErr):
		return http.StatusBadRequest, dupErr.Error(), true
	case errors.As(err, &icErr):
		return http.StatusUnprocessableEntity, icErr.Error(), true
	case errors.As(err, &ipErr):
		return http.StatusUnprocessableEntity, ipErr.Error(), true
	case errors.As(err, &isErr):
		return http.StatusUnprocessableEntity, isErr.Error(), true
	}
	return 0, "", false
}

// decodeOrderRequest parses {"customerId": ..., "items": [{"productId": ...,
// "quantity": ...}]}. Unknown fields are skipped.
func decodeOrderRequest(data []byte) (order.CreateOrderRequest, error) {
	var req order.CreateOrderRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customerId":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "customerId")
			}
			req.CustomerID = v
			return nil
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeOrderItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "decode order request")
	}
	return req, nil
}

func decodeOrderItem(d *jx.Decoder) (order.RequestedItem, error) {
	var item order.RequestedItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "productId")
			}
			item.ProductID = v
			return nil
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			item.Quantity = v
			return nil
		default:
			return d.Skip()
		}
	})
	return item, err
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("total")
	e.Float64(o.Total.InexactFloat64())
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("price")
		e.Float64(item.Price.InexactFloat64())
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	if !o.CreatedAt.IsZero() {
		e.FieldStart("createdAt")
		e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	}
	e.ObjEnd()
}
