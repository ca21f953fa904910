package bazaar

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hexwell/bazaar/catalog"
)

// Side represents the order side (Buy/Sell).
type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// Opposite returns the side an instant order of this side matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is a standing buy or sell offer for units of a product at a fixed
// price per unit. All monetary values are a single integer fixed-point
// unit; there is no currency dimension.
//
// A value copy of an Order is the read-only view handed out by queries;
// *Order is the mutable counterpart used by the matching engine and the
// claim operation. FilledUnits moves only through applyFill, ClaimedUnits
// only through claimAll, so 0 <= claimed <= filled <= total holds after
// every operation.
type Order struct {
	ID           uuid.UUID `json:"id"`
	Owner        uuid.UUID `json:"owner"`
	ProductID    string    `json:"product_id"`
	Side         Side      `json:"side"`
	TotalUnits   int64     `json:"units"`
	FilledUnits  int64     `json:"filled"`
	ClaimedUnits int64     `json:"claimed"`
	PricePerUnit int64     `json:"price_per_unit"`

	resolver catalog.Resolver
}

// NewOrder creates a fresh, unfilled order. The resolver is the capability
// used to lazily reach the product: orders can exist before the catalogue
// has finished loading, so no *Product is embedded.
func NewOrder(owner uuid.UUID, productID string, side Side, units int64, pricePerUnit int64, resolver catalog.Resolver) (*Order, error) {
	o := &Order{
		ID:           uuid.New(),
		Owner:        owner,
		ProductID:    productID,
		Side:         side,
		TotalUnits:   units,
		PricePerUnit: pricePerUnit,
		resolver:     resolver,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the order invariants.
func (o *Order) Validate() error {
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w: side %d", ErrInvalidParam, o.Side)
	}
	if o.ProductID == "" {
		return fmt.Errorf("%w: empty product id", ErrInvalidParam)
	}
	if o.TotalUnits <= 0 {
		return fmt.Errorf("%w: units %d", ErrInvalidParam, o.TotalUnits)
	}
	if o.PricePerUnit <= 0 {
		return fmt.Errorf("%w: price %d", ErrInvalidParam, o.PricePerUnit)
	}
	if o.FilledUnits < 0 || o.FilledUnits > o.TotalUnits {
		return fmt.Errorf("%w: filled %d of %d", ErrInvalidParam, o.FilledUnits, o.TotalUnits)
	}
	if o.ClaimedUnits < 0 || o.ClaimedUnits > o.FilledUnits {
		return fmt.Errorf("%w: claimed %d of filled %d", ErrInvalidParam, o.ClaimedUnits, o.FilledUnits)
	}
	return nil
}

// SetResolver attaches the product resolver. Used when rehydrating orders
// from storage or the wire, where the constructor is bypassed.
func (o *Order) SetResolver(r catalog.Resolver) {
	o.resolver = r
}

// Product resolves the product this order trades. The second return is
// false while the catalogue has not loaded the product yet.
func (o *Order) Product() (*catalog.Product, bool) {
	if o.resolver == nil {
		return nil, false
	}
	return o.resolver.Resolve(o.ProductID)
}

// UnfilledUnits is the quantity still standing on the book.
func (o *Order) UnfilledUnits() int64 {
	return o.TotalUnits - o.FilledUnits
}

// UnclaimedUnits is the filled quantity the owner has not collected yet.
func (o *Order) UnclaimedUnits() int64 {
	return o.FilledUnits - o.ClaimedUnits
}

// TotalPrice is the full notional value of the order.
func (o *Order) TotalPrice() int64 {
	return o.PricePerUnit * o.TotalUnits
}

// RemovedFromListing reports whether the order has left the tradable
// listing (nothing remains to match).
func (o *Order) RemovedFromListing() bool {
	return o.FilledUnits == o.TotalUnits
}

// RemovedFromOwner reports whether the order has left the owner's active
// set (everything filled and claimed); at that point the record itself is
// deleted from the store.
func (o *Order) RemovedFromOwner() bool {
	return o.ClaimedUnits == o.TotalUnits
}

// applyFill records units traded against this order. Only the matching
// engine calls this, through OrdersIterator.Update.
func (o *Order) applyFill(units int64) error {
	if units < 0 || units > o.UnfilledUnits() {
		return fmt.Errorf("%w: fill of %d with %d unfilled", ErrInvalidParam, units, o.UnfilledUnits())
	}
	o.FilledUnits += units
	return nil
}

// claimAll moves every filled-but-unclaimed unit to claimed and returns
// the delta. Partial claims are not supported.
func (o *Order) claimAll() int64 {
	delta := o.FilledUnits - o.ClaimedUnits
	o.ClaimedUnits = o.FilledUnits
	return delta
}
