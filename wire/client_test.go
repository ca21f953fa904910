package wire

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexwell/bazaar"
	"github.com/hexwell/bazaar/catalog"
)

func newTestExchange(t *testing.T) (*Server, *Client) {
	t.Helper()

	provider := catalog.NewMemoryProvider()
	provider.PutCategory(&catalog.Category{ID: "metals", Name: "Metals"})
	provider.PutProduct(&catalog.Product{ID: "iron_ingot", Name: "Iron Ingot", CategoryID: "metals"})
	provider.PutProduct(&catalog.Product{ID: "gold_ingot", Name: "Gold Ingot", CategoryID: "metals"})

	svc := bazaar.NewQueuedMarketService(bazaar.NewMarket(bazaar.NewMemoryStore(), provider))

	server, err := Listen("inet:127.0.0.1:0", svc)
	require.NoError(t, err)
	go func() { _ = server.Serve() }()
	t.Cleanup(func() {
		_ = server.Close()
		_ = svc.Close(context.Background())
	})

	client, err := Dial("inet:" + server.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return server, client
}

func TestClientMirrorsCatalogue(t *testing.T) {
	_, client := newTestExchange(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cat, err := client.Catalogue(ctx)
	require.NoError(t, err)

	require.Len(t, cat.Categories, 1)
	assert.Equal(t, "Metals", cat.Categories[0].Name)
	require.Len(t, cat.Products, 2)
	assert.Equal(t, "gold_ingot", cat.Products[0].ID)
	assert.Equal(t, "iron_ingot", cat.Products[1].ID)
}

func TestClientPlaceQueryCancel(t *testing.T) {
	_, client := newTestExchange(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	owner := uuid.New()

	placed, err := client.PlaceSellOrder(ctx, owner, "iron_ingot", 10, 100)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, placed.ID)

	// The returned order resolves its product against the local mirror.
	p, ok := placed.Product()
	require.True(t, ok)
	assert.Equal(t, "Iron Ingot", p.Name)

	got, err := client.OrderByID(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)

	owned, err := client.OrdersByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, placed.ID, owned[0].ID)

	cancelled, err := client.CancelOrder(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cancelled.UnfilledUnits())

	owned, err = client.OrdersByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestClientRehydratesSentinelErrors(t *testing.T) {
	_, client := newTestExchange(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.OrderByID(ctx, uuid.New())
	assert.ErrorIs(t, err, bazaar.ErrNotFound)

	_, err = client.PlaceBuyOrder(ctx, uuid.New(), "dragon_scale", 10, 100)
	assert.ErrorIs(t, err, bazaar.ErrUnknownProduct)

	_, err = client.Summary(ctx, "dragon_scale")
	assert.ErrorIs(t, err, bazaar.ErrUnknownProduct)
}

// brokenListingService fails every order listing, standing in for a store
// whose backing connection is gone.
type brokenListingService struct {
	bazaar.MarketService
}

func (s *brokenListingService) OrdersByOwner(context.Context, uuid.UUID) ([]bazaar.Order, error) {
	return nil, errors.New("orders table locked")
}

func TestClientSeesRemoteListingFailure(t *testing.T) {
	provider := catalog.NewMemoryProvider()
	svc := &brokenListingService{MarketService: bazaar.NewMarket(bazaar.NewMemoryStore(), provider)}

	server, err := Listen("inet:127.0.0.1:0", svc)
	require.NoError(t, err)
	go func() { _ = server.Serve() }()
	t.Cleanup(func() { _ = server.Close() })

	client, err := Dial("inet:" + server.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A failed listing must not read as an owner with no orders.
	orders, err := client.OrdersByOwner(ctx, uuid.New())
	require.EqualError(t, err, "orders table locked")
	assert.Nil(t, orders)
}

func TestClientSummaryAndInstantOrders(t *testing.T) {
	_, client := newTestExchange(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	maker := uuid.New()

	_, err := client.PlaceBuyOrder(ctx, maker, "iron_ingot", 150, 20)
	require.NoError(t, err)
	_, err = client.PlaceBuyOrder(ctx, maker, "iron_ingot", 150, 10)
	require.NoError(t, err)
	_, err = client.PlaceSellOrder(ctx, maker, "iron_ingot", 10, 50)
	require.NoError(t, err)

	sum, err := client.Summary(ctx, "iron_ingot")
	require.NoError(t, err)
	require.Len(t, sum.BuyLevels, 2)
	assert.Equal(t, bazaar.PriceLevel{TotalUnits: 150, OfferCount: 1, Price: 20}, sum.BuyLevels[0])
	require.Len(t, sum.SellLevels, 1)

	sell, err := client.InstantSell(ctx, uuid.New(), "iron_ingot", 150)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sell.Leftover)
	assert.Equal(t, int64(150*20), sell.CollectedBalance)

	buy, err := client.InstantBuy(ctx, uuid.New(), "iron_ingot", 10, 450)
	require.NoError(t, err)
	assert.Equal(t, int64(9), buy.Bought)
	assert.Equal(t, int64(0), buy.NewBalance)
}

func TestClientClaimOrder(t *testing.T) {
	_, client := newTestExchange(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	maker := uuid.New()

	placed, err := client.PlaceSellOrder(ctx, maker, "iron_ingot", 10, 100)
	require.NoError(t, err)
	_, err = client.InstantBuy(ctx, uuid.New(), "iron_ingot", 10, 10_000)
	require.NoError(t, err)

	claim, err := client.ClaimOrder(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), claim.ClaimedUnits)
	assert.Equal(t, int64(10*100), claim.ClaimedValue)
	assert.True(t, claim.FullyClaimed)

	_, err = client.OrderByID(ctx, placed.ID)
	assert.ErrorIs(t, err, bazaar.ErrNotFound)
}

func TestClientReceivesFillNotices(t *testing.T) {
	_, client := newTestExchange(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	maker := uuid.New()

	var (
		mu    sync.Mutex
		fills []bazaar.Order
	)
	filled := make(chan struct{}, 1)
	client.OnOrderFilled(func(ev bazaar.OrderFilledEvent) {
		mu.Lock()
		fills = append(fills, ev.Order)
		mu.Unlock()
		filled <- struct{}{}
	})

	placed, err := client.PlaceSellOrder(ctx, maker, "iron_ingot", 5, 100)
	require.NoError(t, err)
	_, err = client.InstantBuy(ctx, uuid.New(), "iron_ingot", 5, 10_000)
	require.NoError(t, err)

	select {
	case <-filled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fill notice")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fills, 1)
	assert.Equal(t, placed.ID, fills[0].ID)
	assert.True(t, fills[0].RemovedFromListing())
	p, ok := fills[0].Product()
	require.True(t, ok)
	assert.Equal(t, "Iron Ingot", p.Name)
}

func TestTwoClientsShareOneMarket(t *testing.T) {
	server, first := newTestExchange(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	second, err := Dial("inet:" + server.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(context.Background()) })

	maker := uuid.New()
	_, err = first.PlaceBuyOrder(ctx, maker, "iron_ingot", 100, 10)
	require.NoError(t, err)

	res, err := second.InstantSell(ctx, uuid.New(), "iron_ingot", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Leftover)
	assert.Equal(t, int64(100*10), res.CollectedBalance)
}
