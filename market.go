package bazaar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hexwell/bazaar/catalog"
)

const (
	defaultSummaryLevels    = 16
	defaultSummaryRetention = 2 * time.Second
)

// Market is the local MarketService: it composes the order store, the
// per-(product, side) top-of-book buffers, the instant matching walk and
// the per-product summary generators. Backed by SQL through SQLStore or by
// memory through MemoryStore; the semantics are identical.
//
// Market itself is single-threaded per call and holds no locks; callers
// needing concurrency wrap it in a QueuedMarketService.
type Market struct {
	store     OrderStore
	catalogue catalog.Provider

	books     map[listingKey]*Book
	summaries map[string]*SummaryGenerator
	fills     fillBroadcaster

	bufferLimit      int64
	requestsPerCycle int64
	summaryLevels    int
	summaryRetention time.Duration
	clock            func() time.Time
}

// MarketOption configures a Market.
type MarketOption func(*Market)

// WithBufferLimit bounds how many unfilled units each top-of-book buffer
// holds after a refill. The default drains the supplier fully.
func WithBufferLimit(limit int64) MarketOption {
	return func(m *Market) {
		m.bufferLimit = limit
	}
}

// WithRequestsPerCycle tunes the fairness cap on instant orders: one
// request may consume at most trackedUnits/n of the current refill window.
func WithRequestsPerCycle(n int64) MarketOption {
	return func(m *Market) {
		m.requestsPerCycle = n
	}
}

// WithSummaryLevels sets how many price levels a summary emits per side.
func WithSummaryLevels(levels int) MarketOption {
	return func(m *Market) {
		m.summaryLevels = levels
	}
}

// WithSummaryRetention sets how long a generated summary stays fresh.
func WithSummaryRetention(d time.Duration) MarketOption {
	return func(m *Market) {
		m.summaryRetention = d
	}
}

// WithMarketClock overrides the time source, for tests.
func WithMarketClock(now func() time.Time) MarketOption {
	return func(m *Market) {
		m.clock = now
	}
}

// NewMarket creates a Market over the given store and catalogue.
func NewMarket(store OrderStore, catalogue catalog.Provider, opts ...MarketOption) *Market {
	m := &Market{
		store:            store,
		catalogue:        catalogue,
		books:            make(map[listingKey]*Book),
		summaries:        make(map[string]*SummaryGenerator),
		bufferLimit:      DrainSupplier,
		requestsPerCycle: 1,
		summaryLevels:    defaultSummaryLevels,
		summaryRetention: defaultSummaryRetention,
		clock:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Market) Catalogue(ctx context.Context) (*Catalogue, error) {
	return &Catalogue{
		Categories: m.catalogue.Categories(),
		Products:   m.catalogue.Products(),
	}, nil
}

// book returns the buffer for one listing, refilling it from the store
// whenever it is empty. An empty book after refill is the normal
// no-liquidity state.
func (m *Market) book(ctx context.Context, productID string, side Side) (*Book, error) {
	key := listingKey{productID: productID, side: side}
	b, ok := m.books[key]
	if !ok {
		b = NewBook(productID, side)
		m.books[key] = b
	}
	if b.Len() == 0 {
		if err := m.refill(ctx, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (m *Market) refill(ctx context.Context, b *Book) error {
	b.Reset()
	supplier, err := m.store.Supplier(ctx, b.ProductID(), b.Side())
	if err != nil {
		return err
	}
	return b.Fill(m.bufferLimit, supplier)
}

// RefreshListings discards and refills both buffers of a product. The
// buffers are caches; this is the periodic resynchronization hook.
func (m *Market) RefreshListings(ctx context.Context, productID string) error {
	for _, side := range []Side{Buy, Sell} {
		b, err := m.book(ctx, productID, side)
		if err != nil {
			return err
		}
		if err := m.refill(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// EvictProduct drops the per-product caches (buffers, summary generator).
// Call when the catalogue removes a product, so cache size tracks the live
// catalogue rather than historical activity.
func (m *Market) EvictProduct(productID string) {
	delete(m.summaries, productID)
	delete(m.books, listingKey{productID: productID, side: Buy})
	delete(m.books, listingKey{productID: productID, side: Sell})
}

func (m *Market) Summary(ctx context.Context, productID string) (*ProductSummary, error) {
	if _, ok := m.catalogue.Resolve(productID); !ok {
		return nil, ErrUnknownProduct
	}

	gen, ok := m.summaries[productID]
	if !ok {
		gen = NewSummaryGenerator(productID, m.summaryLevels, m.summaryRetention, WithClock(m.clock))
		m.summaries[productID] = gen
	}

	buyBook, err := m.book(ctx, productID, Buy)
	if err != nil {
		return nil, err
	}
	sellBook, err := m.book(ctx, productID, Sell)
	if err != nil {
		return nil, err
	}
	return gen.Generate(buyBook.Iterator(nil), sellBook.Iterator(nil)), nil
}

func (m *Market) OrdersByOwner(ctx context.Context, owner uuid.UUID) ([]Order, error) {
	orders, err := m.store.ByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	views := make([]Order, 0, len(orders))
	for _, o := range orders {
		views = append(views, *o)
	}
	return views, nil
}

func (m *Market) OrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := *o
	return &view, nil
}

func (m *Market) PlaceBuyOrder(ctx context.Context, owner uuid.UUID, productID string, units, pricePerUnit int64) (*Order, error) {
	return m.placeOrder(ctx, owner, productID, Buy, units, pricePerUnit)
}

func (m *Market) PlaceSellOrder(ctx context.Context, owner uuid.UUID, productID string, units, pricePerUnit int64) (*Order, error) {
	return m.placeOrder(ctx, owner, productID, Sell, units, pricePerUnit)
}

func (m *Market) placeOrder(ctx context.Context, owner uuid.UUID, productID string, side Side, units, pricePerUnit int64) (*Order, error) {
	if _, ok := m.catalogue.Resolve(productID); !ok {
		return nil, ErrUnknownProduct
	}
	o, err := NewOrder(owner, productID, side, units, pricePerUnit, m.catalogue)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, o); err != nil {
		return nil, err
	}

	// Keep the buffer coherent without waiting for the next refill.
	if b, ok := m.books[listingKey{productID: productID, side: side}]; ok && b.Len() > 0 {
		b.Insert(o)
	}

	logger.Info("order placed",
		zap.String("order", o.ID.String()),
		zap.String("product", productID),
		zap.String("side", side.String()),
		zap.Int64("units", units),
		zap.Int64("price", pricePerUnit))

	view := *o
	return &view, nil
}

func (m *Market) CancelOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return nil, err
	}

	// The buffer may still hold the record; discard it wholesale rather
	// than hunting for the entry.
	if b, ok := m.books[listingKey{productID: o.ProductID, side: o.Side}]; ok {
		b.Reset()
	}

	logger.Info("order cancelled", zap.String("order", id.String()))
	view := *o
	return &view, nil
}

func (m *Market) ClaimOrder(ctx context.Context, id uuid.UUID) (*ClaimResult, error) {
	o, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	delta := o.claimAll()
	if err := m.store.Save(ctx, o); err != nil {
		return nil, err
	}

	return &ClaimResult{
		ClaimedUnits: delta,
		ClaimedValue: delta * o.PricePerUnit,
		FullyClaimed: o.RemovedFromOwner(),
	}, nil
}

// persistFill is the PersistFunc threaded through instant-order iterators:
// write the mutation durably, then fire the fill event if this update made
// the order full.
func (m *Market) persistFill(ctx context.Context) PersistFunc {
	return func(o *Order) error {
		if err := m.store.Save(ctx, o); err != nil {
			return err
		}
		if o.RemovedFromListing() {
			m.fills.publish(OrderFilledEvent{Order: *o})
		}
		return nil
	}
}

func (m *Market) InstantBuy(ctx context.Context, buyer uuid.UUID, productID string, units, balance int64) (*InstantBuyResult, error) {
	b, err := m.book(ctx, productID, Buy.Opposite())
	if err != nil {
		return nil, err
	}

	capped := b.RecommendedCap(units, m.requestsPerCycle)
	if capped <= 0 {
		// No liquidity in this refill window; not an error.
		return &InstantBuyResult{
			Requested:      units,
			InitialBalance: balance,
			NewBalance:     balance,
		}, nil
	}

	res, err := InstantBuy(b.Iterator(m.persistFill(ctx)), buyer, capped, balance)
	if err != nil {
		return nil, err
	}
	res.Requested = units
	return res, nil
}

func (m *Market) InstantSell(ctx context.Context, seller uuid.UUID, productID string, units int64) (*InstantSellResult, error) {
	b, err := m.book(ctx, productID, Sell.Opposite())
	if err != nil {
		return nil, err
	}

	capped := b.RecommendedCap(units, m.requestsPerCycle)
	if capped <= 0 {
		return &InstantSellResult{Requested: units, Leftover: units}, nil
	}

	res, err := InstantSell(b.Iterator(m.persistFill(ctx)), seller, capped)
	if err != nil {
		return nil, err
	}
	res.Requested = units
	res.Leftover = units - (capped - res.Leftover)
	return res, nil
}

func (m *Market) OnOrderFilled(l OrderFilledListener) {
	m.fills.subscribe(l)
}

func (m *Market) Close(ctx context.Context) error {
	return m.store.Close()
}
