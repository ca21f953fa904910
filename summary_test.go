package bazaar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryCoalescesSamePriceRuns(t *testing.T) {
	orders := []*Order{
		mustOrder(t, Sell, 10, 100),
		mustOrder(t, Sell, 5, 100),
		mustOrder(t, Sell, 7, 120),
	}

	g := NewSummaryGenerator("iron_ingot", 16, 0)
	sum := g.Generate(EmptyIterator(), SliceIterator(orders, nil))

	require.Len(t, sum.SellLevels, 2)
	assert.Equal(t, PriceLevel{TotalUnits: 15, OfferCount: 2, Price: 100}, sum.SellLevels[0])
	assert.Equal(t, PriceLevel{TotalUnits: 7, OfferCount: 1, Price: 120}, sum.SellLevels[1])
	assert.Empty(t, sum.BuyLevels)
}

func TestSummaryDropsOverflowLevelInFull(t *testing.T) {
	orders := []*Order{
		mustOrder(t, Sell, 1, 100),
		mustOrder(t, Sell, 1, 110),
		mustOrder(t, Sell, 1, 120),
		mustOrder(t, Sell, 1, 120),
	}

	g := NewSummaryGenerator("iron_ingot", 2, 0)
	sum := g.Generate(EmptyIterator(), SliceIterator(orders, nil))

	// The 120 level starts beyond the cap and is dropped entirely, never
	// merged into the 110 level.
	require.Len(t, sum.SellLevels, 2)
	assert.Equal(t, int64(100), sum.SellLevels[0].Price)
	assert.Equal(t, int64(110), sum.SellLevels[1].Price)
}

func TestSummarySkipsFilledOrders(t *testing.T) {
	dead := mustOrder(t, Sell, 5, 100)
	require.NoError(t, dead.applyFill(5))
	partial := mustOrder(t, Sell, 10, 100)
	require.NoError(t, partial.applyFill(4))

	g := NewSummaryGenerator("iron_ingot", 16, 0)
	sum := g.Generate(EmptyIterator(), SliceIterator([]*Order{dead, partial}, nil))

	require.Len(t, sum.SellLevels, 1)
	assert.Equal(t, PriceLevel{TotalUnits: 6, OfferCount: 1, Price: 100}, sum.SellLevels[0])
}

func TestSummaryCaching(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewSummaryGenerator("iron_ingot", 16, 2*time.Second, WithClock(func() time.Time { return now }))

	first := g.Generate(EmptyIterator(), SliceIterator([]*Order{mustOrder(t, Sell, 10, 100)}, nil))
	require.Len(t, first.SellLevels, 1)

	// Within the retention window the cache is served; the fresh iterators
	// are never consumed.
	now = now.Add(time.Second)
	cached := g.Generate(EmptyIterator(), SliceIterator([]*Order{mustOrder(t, Sell, 99, 1)}, nil))
	assert.Same(t, first, cached)

	now = now.Add(2 * time.Second)
	rebuilt := g.Generate(EmptyIterator(), SliceIterator([]*Order{mustOrder(t, Sell, 99, 1)}, nil))
	require.Len(t, rebuilt.SellLevels, 1)
	assert.Equal(t, int64(99), rebuilt.SellLevels[0].TotalUnits)
}

func TestSummaryInvalidate(t *testing.T) {
	g := NewSummaryGenerator("iron_ingot", 16, time.Hour)
	first := g.Generate(EmptyIterator(), EmptyIterator())
	g.Invalidate()
	second := g.Generate(EmptyIterator(), EmptyIterator())
	assert.NotSame(t, first, second)
}

func TestSummaryLevelsMonotonicPerSide(t *testing.T) {
	buy := NewBook("iron_ingot", Buy)
	sell := NewBook("iron_ingot", Sell)
	for _, price := range []int64{50, 20, 90, 20, 70} {
		buy.Insert(mustOrder(t, Buy, 3, price))
		sell.Insert(mustOrder(t, Sell, 3, price))
	}

	g := NewSummaryGenerator("iron_ingot", 16, 0)
	sum := g.Generate(buy.Iterator(nil), sell.Iterator(nil))

	for i := 1; i < len(sum.BuyLevels); i++ {
		assert.Greater(t, sum.BuyLevels[i-1].Price, sum.BuyLevels[i].Price)
	}
	for i := 1; i < len(sum.SellLevels); i++ {
		assert.Less(t, sum.SellLevels[i-1].Price, sum.SellLevels[i].Price)
	}
}
