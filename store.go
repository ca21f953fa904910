package bazaar

import (
	"context"

	"github.com/google/uuid"
)

// OrderStore is the source of truth for order records. The top-of-book
// buffers cache it; the market service writes through it. Save owns the
// record lifecycle: an order that became fully claimed is deleted rather
// than updated.
type OrderStore interface {
	Save(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Get returns ErrNotFound when no such order exists.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	// ByOwner returns the owner's active orders (not yet fully claimed).
	ByOwner(ctx context.Context, owner uuid.UUID) ([]*Order, error)
	// Supplier streams one (product, side) listing best price first, only
	// orders with unfilled units. Feeds Book.Fill.
	Supplier(ctx context.Context, productID string, side Side) (OrderSupplier, error)
	Close() error
}
