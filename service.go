package bazaar

import (
	"context"

	"github.com/google/uuid"

	"github.com/hexwell/bazaar/catalog"
)

// Catalogue is the full tradable catalogue as one value.
type Catalogue struct {
	Categories []*catalog.Category
	Products   []*catalog.Product
}

// ClaimResult reports a claim-all operation. Partial claims do not exist;
// the delta is everything filled but not yet claimed at call time.
type ClaimResult struct {
	// ClaimedUnits is the number of units moved to claimed by this call.
	ClaimedUnits int64
	// ClaimedValue is ClaimedUnits priced at the order's rate.
	ClaimedValue int64
	// FullyClaimed reports whether the order became fully claimed, in
	// which case the record is gone and further lookups fail.
	FullyClaimed bool
}

// MarketService is the single capability surface every consumer of the
// exchange goes through: game-server adapters, the CLI and the remote
// protocol all speak this interface and nothing below it.
//
// Calls are synchronous; domain failures come back as errors, insufficient
// liquidity comes back in the result's residual fields, never as an error.
// Implementations are not safe for concurrent use by themselves; wrap one
// in a QueuedMarketService to share it across goroutines.
type MarketService interface {
	Catalogue(ctx context.Context) (*Catalogue, error)
	Summary(ctx context.Context, productID string) (*ProductSummary, error)

	OrdersByOwner(ctx context.Context, owner uuid.UUID) ([]Order, error)
	OrderByID(ctx context.Context, id uuid.UUID) (*Order, error)

	PlaceBuyOrder(ctx context.Context, owner uuid.UUID, productID string, units, pricePerUnit int64) (*Order, error)
	PlaceSellOrder(ctx context.Context, owner uuid.UUID, productID string, units, pricePerUnit int64) (*Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ClaimOrder(ctx context.Context, id uuid.UUID) (*ClaimResult, error)

	InstantBuy(ctx context.Context, buyer uuid.UUID, productID string, units, balance int64) (*InstantBuyResult, error)
	InstantSell(ctx context.Context, seller uuid.UUID, productID string, units int64) (*InstantSellResult, error)

	// OnOrderFilled registers a listener for orders crossing into fully
	// filled. Listeners run in registration order, synchronously with the
	// mutation that filled the order.
	OnOrderFilled(l OrderFilledListener)

	Close(ctx context.Context) error
}
