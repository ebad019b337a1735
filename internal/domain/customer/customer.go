package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer does not exist in the directory.
var ErrNotFound = errors.New("customer not found")

// Customer is a registered customer able to place orders. The order service
// only cares about identity; the remaining fields exist for the API surface.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Directory resolves customer identifiers to customer records.
type Directory interface {
	FindByID(ctx context.Context, id string) (*Customer, error)
}
