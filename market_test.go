package bazaar

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMarket(t *testing.T, opts ...MarketOption) *Market {
	t.Helper()
	m := NewMarket(NewMemoryStore(), testCatalogue(), opts...)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func TestMarketCatalogue(t *testing.T) {
	m := newTestMarket(t)
	cat, err := m.Catalogue(context.Background())
	require.NoError(t, err)
	assert.Len(t, cat.Categories, 1)
	assert.Len(t, cat.Products, 2)
}

func TestMarketPlaceOrderUnknownProduct(t *testing.T) {
	m := newTestMarket(t)
	_, err := m.PlaceBuyOrder(context.Background(), uuid.New(), "dragon_scale", 10, 100)
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestMarketPlaceAndQueryOrders(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	owner := uuid.New()

	placed, err := m.PlaceSellOrder(ctx, owner, "iron_ingot", 10, 100)
	require.NoError(t, err)

	got, err := m.OrderByID(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)
	assert.Equal(t, int64(10), got.TotalUnits)

	owned, err := m.OrdersByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, placed.ID, owned[0].ID)

	_, err = m.OrderByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarketInstantSellScenario(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	maker := uuid.New()

	_, err := m.PlaceBuyOrder(ctx, maker, "iron_ingot", 150, 20)
	require.NoError(t, err)
	_, err = m.PlaceBuyOrder(ctx, maker, "iron_ingot", 150, 10)
	require.NoError(t, err)

	res, err := m.InstantSell(ctx, uuid.New(), "iron_ingot", 150)
	require.NoError(t, err)
	assert.Equal(t, int64(150), res.Requested)
	assert.Equal(t, int64(0), res.Leftover)
	assert.Equal(t, int64(150*20), res.CollectedBalance)

	// Only the 10s remain; a huge sell is bounded by available liquidity.
	res, err = m.InstantSell(ctx, uuid.New(), "iron_ingot", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Requested)
	assert.Equal(t, int64(350), res.Leftover)
	assert.Equal(t, int64(150*10), res.CollectedBalance)
}

func TestMarketInstantBuy(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	maker := uuid.New()

	_, err := m.PlaceSellOrder(ctx, maker, "iron_ingot", 10, 100)
	require.NoError(t, err)
	_, err = m.PlaceSellOrder(ctx, maker, "iron_ingot", 10, 300)
	require.NoError(t, err)

	res, err := m.InstantBuy(ctx, uuid.New(), "iron_ingot", 20, 1250)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Requested)
	assert.Equal(t, int64(10), res.Bought)
	assert.Equal(t, int64(250), res.NewBalance)

	// The maker's cheap offer is now fully filled but still claimable.
	owned, err := m.OrdersByOwner(ctx, maker)
	require.NoError(t, err)
	require.Len(t, owned, 2)
}

func TestMarketInstantOrderNoLiquidity(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)

	res, err := m.InstantBuy(ctx, uuid.New(), "iron_ingot", 10, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Bought)
	assert.Equal(t, int64(1000), res.NewBalance)

	sellRes, err := m.InstantSell(ctx, uuid.New(), "iron_ingot", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sellRes.Leftover)
}

func TestMarketFairnessCap(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t, WithRequestsPerCycle(2))
	maker := uuid.New()

	_, err := m.PlaceBuyOrder(ctx, maker, "iron_ingot", 100, 10)
	require.NoError(t, err)

	// One request may only consume half the refill window.
	res, err := m.InstantSell(ctx, uuid.New(), "iron_ingot", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Requested-res.Leftover)
}

func TestMarketClaimOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewMarket(store, testCatalogue())
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	o, err := NewOrder(uuid.New(), "iron_ingot", Sell, 100, 5, testCatalogue())
	require.NoError(t, err)
	require.NoError(t, o.applyFill(80))
	o.ClaimedUnits = 20
	require.NoError(t, store.Save(ctx, o))

	res, err := m.ClaimOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.ClaimedUnits)
	assert.Equal(t, int64(60*5), res.ClaimedValue)
	assert.False(t, res.FullyClaimed)

	require.NoError(t, o.applyFill(20))
	require.NoError(t, store.Save(ctx, o))

	res, err = m.ClaimOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.ClaimedUnits)
	assert.True(t, res.FullyClaimed)

	// Fully claimed orders leave the store.
	_, err = m.OrderByID(ctx, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarketCancelOrder(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	owner := uuid.New()

	placed, err := m.PlaceSellOrder(ctx, owner, "iron_ingot", 10, 100)
	require.NoError(t, err)

	cancelled, err := m.CancelOrder(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cancelled.UnfilledUnits())

	_, err = m.OrderByID(ctx, placed.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The cancelled offer no longer matches.
	res, err := m.InstantBuy(ctx, uuid.New(), "iron_ingot", 10, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Bought)

	_, err = m.CancelOrder(ctx, placed.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarketSummary(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := newTestMarket(t,
		WithSummaryRetention(2*time.Second),
		WithMarketClock(func() time.Time { return now }))
	maker := uuid.New()

	_, err := m.PlaceSellOrder(ctx, maker, "iron_ingot", 10, 100)
	require.NoError(t, err)
	_, err = m.PlaceSellOrder(ctx, maker, "iron_ingot", 5, 100)
	require.NoError(t, err)
	_, err = m.PlaceBuyOrder(ctx, maker, "iron_ingot", 3, 50)
	require.NoError(t, err)

	sum, err := m.Summary(ctx, "iron_ingot")
	require.NoError(t, err)
	require.Len(t, sum.SellLevels, 1)
	assert.Equal(t, PriceLevel{TotalUnits: 15, OfferCount: 2, Price: 100}, sum.SellLevels[0])
	require.Len(t, sum.BuyLevels, 1)
	assert.Equal(t, int64(50), sum.BuyLevels[0].Price)

	// Stale-tolerant: a new offer is invisible until the retention lapses.
	_, err = m.PlaceSellOrder(ctx, maker, "iron_ingot", 1, 90)
	require.NoError(t, err)
	cached, err := m.Summary(ctx, "iron_ingot")
	require.NoError(t, err)
	assert.Len(t, cached.SellLevels, 1)

	now = now.Add(3 * time.Second)
	fresh, err := m.Summary(ctx, "iron_ingot")
	require.NoError(t, err)
	require.Len(t, fresh.SellLevels, 2)
	assert.Equal(t, int64(90), fresh.SellLevels[0].Price)

	_, err = m.Summary(ctx, "dragon_scale")
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestMarketEvictProduct(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t, WithSummaryRetention(time.Hour))
	maker := uuid.New()

	_, err := m.PlaceSellOrder(ctx, maker, "iron_ingot", 10, 100)
	require.NoError(t, err)
	_, err = m.Summary(ctx, "iron_ingot")
	require.NoError(t, err)

	// Eviction drops the cached generator, so the next summary sees the
	// current book despite the long retention.
	_, err = m.PlaceSellOrder(ctx, maker, "iron_ingot", 10, 90)
	require.NoError(t, err)
	m.EvictProduct("iron_ingot")

	sum, err := m.Summary(ctx, "iron_ingot")
	require.NoError(t, err)
	assert.Len(t, sum.SellLevels, 2)
}

func TestMarketRefreshListings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewMarket(store, testCatalogue())
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	_, err := m.PlaceSellOrder(ctx, uuid.New(), "iron_ingot", 10, 100)
	require.NoError(t, err)

	// An order written behind the facade's back surfaces after a refresh.
	o, err := NewOrder(uuid.New(), "iron_ingot", Sell, 5, 90, testCatalogue())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, o))
	require.NoError(t, m.RefreshListings(ctx, "iron_ingot"))

	res, err := m.InstantBuy(ctx, uuid.New(), "iron_ingot", 5, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Bought)
	assert.Equal(t, int64(10_000-5*90), res.NewBalance)
}

func TestMarketFillEventFiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	maker := uuid.New()

	placed, err := m.PlaceSellOrder(ctx, maker, "iron_ingot", 10, 100)
	require.NoError(t, err)

	fills := make(map[uuid.UUID]int)
	m.OnOrderFilled(func(ev OrderFilledEvent) {
		fills[ev.Order.ID]++
	})

	// A partial fill must not fire the event.
	_, err = m.InstantBuy(ctx, uuid.New(), "iron_ingot", 4, 10_000)
	require.NoError(t, err)
	assert.Empty(t, fills)

	_, err = m.InstantBuy(ctx, uuid.New(), "iron_ingot", 6, 10_000)
	require.NoError(t, err)
	assert.Equal(t, 1, fills[placed.ID])

	// Claiming the proceeds does not re-fire.
	_, err = m.ClaimOrder(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fills[placed.ID])
}

func TestMarketFillListenersRunInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)

	var calls []string
	m.OnOrderFilled(func(OrderFilledEvent) { calls = append(calls, "first") })
	m.OnOrderFilled(func(OrderFilledEvent) { calls = append(calls, "second") })

	_, err := m.PlaceSellOrder(ctx, uuid.New(), "iron_ingot", 1, 100)
	require.NoError(t, err)
	_, err = m.InstantBuy(ctx, uuid.New(), "iron_ingot", 1, 1000)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, calls)
}
