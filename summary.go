package bazaar

import "time"

// PriceLevel is one coalesced price point of a product summary: every
// consecutive live order at the same price folded into aggregate volume
// and a count of offers.
type PriceLevel struct {
	TotalUnits int64 `json:"units"`
	OfferCount int64 `json:"offer_count"`
	Price      int64 `json:"price"`
}

// ProductSummary is a leveled snapshot of both sides of one product's
// book, best price first per side.
type ProductSummary struct {
	ProductID   string       `json:"product_id"`
	BuyLevels   []PriceLevel `json:"buy_levels"`
	SellLevels  []PriceLevel `json:"sell_levels"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// SummaryGenerator builds ProductSummary snapshots for one product and
// caches the result for a retention window: a summary is display data, so
// serving a slightly stale one beats rescanning the book on every query.
type SummaryGenerator struct {
	productID string
	maxLevels int
	retention time.Duration
	now       func() time.Time
	cached    *ProductSummary
}

// SummaryOption configures a SummaryGenerator.
type SummaryOption func(*SummaryGenerator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) SummaryOption {
	return func(g *SummaryGenerator) {
		g.now = now
	}
}

func NewSummaryGenerator(productID string, maxLevels int, retention time.Duration, opts ...SummaryOption) *SummaryGenerator {
	g := &SummaryGenerator{
		productID: productID,
		maxLevels: maxLevels,
		retention: retention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the cached summary while it is fresh, otherwise scans
// both iterators and rebuilds it. Iterators are consumed only on rebuild.
func (g *SummaryGenerator) Generate(buyIt, sellIt OrdersIterator) *ProductSummary {
	if g.cached != nil && g.now().Sub(g.cached.GeneratedAt) < g.retention {
		return g.cached
	}

	g.cached = &ProductSummary{
		ProductID:   g.productID,
		BuyLevels:   g.levels(buyIt),
		SellLevels:  g.levels(sellIt),
		GeneratedAt: g.now(),
	}
	return g.cached
}

// Invalidate drops the cached snapshot so the next Generate rebuilds.
func (g *SummaryGenerator) Invalidate() {
	g.cached = nil
}

// levels coalesces consecutive same-price orders into price levels, up to
// maxLevels. A level that would start beyond the cap is dropped in full,
// never partially merged into the last emitted one. Fully filled orders
// are logically dead and skipped by the iterator.
func (g *SummaryGenerator) levels(it OrdersIterator) []PriceLevel {
	out := make([]PriceLevel, 0, g.maxLevels)
	var current *PriceLevel

	for it.HasNext() {
		o := it.Next()

		if current != nil && o.PricePerUnit == current.Price {
			current.TotalUnits += o.UnfilledUnits()
			current.OfferCount++
			continue
		}

		// Price changed: flush the level under construction.
		if current != nil {
			out = append(out, *current)
			current = nil
		}
		if len(out) == g.maxLevels {
			break
		}
		current = &PriceLevel{
			TotalUnits: o.UnfilledUnits(),
			OfferCount: 1,
			Price:      o.PricePerUnit,
		}
	}

	if current != nil {
		out = append(out, *current)
	}
	return out
}
