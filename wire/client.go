package wire

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/hexwell/bazaar"
	"github.com/hexwell/bazaar/catalog"
)

// Client is the remote MarketService: it mirrors the server's catalogue
// locally and turns every facade call into a request/response exchange on
// one framed connection. It satisfies bazaar.MarketService, so front-ends
// cannot tell a remote market from a local one.
type Client struct {
	conn     *Conn
	registry *Registry

	mu      sync.Mutex
	pending map[string]chan Message

	catalogue      *catalog.MemoryProvider
	catalogueReady chan struct{}
	readyOnce      sync.Once

	fillMu        sync.RWMutex
	fillListeners []bazaar.OrderFilledListener
}

// Dial connects to a server at the protocol address notation and requests
// the catalogue immediately; Catalogue blocks until the mirror is
// complete.
func Dial(address string) (*Client, error) {
	network, addr, err := ResolveAddress(address)
	if err != nil {
		return nil, err
	}
	raw, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}

	c := &Client{
		registry:       NewRegistry(),
		pending:        make(map[string]chan Message),
		catalogue:      catalog.NewMemoryProvider(),
		catalogueReady: make(chan struct{}),
	}
	RegisterAll(c.registry)
	c.listen()
	c.conn = newConn(raw, c.registry, nil)

	if err := c.conn.Send(&CatalogueRequest{}); err != nil {
		_ = c.conn.Close()
		return nil, err
	}
	return c, nil
}

// listen wires response routing: correlated responses go to their pending
// channel, catalogue parts accumulate into the mirror, fill notices fan
// out to listeners.
func (c *Client) listen() {
	route := func(requestID string, msg Message) {
		c.mu.Lock()
		ch, ok := c.pending[requestID]
		c.mu.Unlock()
		if !ok {
			logger.Debug("dropping response with no pending request")
			return
		}
		select {
		case ch <- msg:
		default:
			// Requester abandoned the exchange; never stall the read loop.
			logger.Debug("dropping response for abandoned request")
		}
	}

	c.registry.Listen(MsgCategoryPart, func(_ *Conn, msg Message) {
		part := msg.(*CategoryPart)
		category := part.Category
		c.catalogue.PutCategory(&category)
	})
	c.registry.Listen(MsgProductPart, func(_ *Conn, msg Message) {
		part := msg.(*ProductPart)
		if part.Present {
			product := part.Product
			c.catalogue.PutProduct(&product)
		}
		if part.Finished {
			c.readyOnce.Do(func() { close(c.catalogueReady) })
		}
	})

	c.registry.Listen(MsgSummaryResponse, func(_ *Conn, msg Message) {
		route(msg.(*SummaryResponse).RequestID, msg)
	})
	c.registry.Listen(MsgOrderPart, func(_ *Conn, msg Message) {
		route(msg.(*OrderPart).RequestID, msg)
	})
	c.registry.Listen(MsgOrderGetResponse, func(_ *Conn, msg Message) {
		route(msg.(*OrderGetResponse).RequestID, msg)
	})
	c.registry.Listen(MsgPlaceResponse, func(_ *Conn, msg Message) {
		route(msg.(*PlaceOrderResponse).RequestID, msg)
	})
	c.registry.Listen(MsgCancelResponse, func(_ *Conn, msg Message) {
		route(msg.(*CancelOrderResponse).RequestID, msg)
	})
	c.registry.Listen(MsgClaimResponse, func(_ *Conn, msg Message) {
		route(msg.(*ClaimOrderResponse).RequestID, msg)
	})

	c.registry.Listen(MsgInstantResponse, func(_ *Conn, msg Message) {
		route(msg.(*InstantOrderResponse).RequestID, msg)
	})
	c.registry.Listen(MsgOrderFilled, func(_ *Conn, msg Message) {
		notice := msg.(*OrderFilledNotice)
		order := notice.Order
		order.SetResolver(c.catalogue)

		c.fillMu.RLock()
		listeners := c.fillListeners
		c.fillMu.RUnlock()
		for _, l := range listeners {
			l(bazaar.OrderFilledEvent{Order: order})
		}
	})
}

// request sends msg and waits for one correlated response.
func (c *Client) request(ctx context.Context, requestID string, msg Message) (Message, error) {
	ch := c.openPending(requestID)
	defer c.closePending(requestID)

	if err := c.conn.Send(msg); err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-c.conn.Done():
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) openPending(requestID string) chan Message {
	ch := make(chan Message, 256)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) closePending(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// remoteError rehydrates well-known sentinel errors so callers can keep
// using errors.Is across the wire.
func remoteError(s string) error {
	for _, sentinel := range []error{bazaar.ErrNotFound, bazaar.ErrUnknownProduct, bazaar.ErrShutdown} {
		if s == sentinel.Error() {
			return sentinel
		}
	}
	return errors.New(s)
}

func (c *Client) Catalogue(ctx context.Context) (*bazaar.Catalogue, error) {
	select {
	case <-c.catalogueReady:
	case <-c.conn.Done():
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &bazaar.Catalogue{
		Categories: c.catalogue.Categories(),
		Products:   c.catalogue.Products(),
	}, nil
}

func (c *Client) Summary(ctx context.Context, productID string) (*bazaar.ProductSummary, error) {
	requestID := xid.New().String()
	resp, err := c.request(ctx, requestID, &SummaryRequest{RequestID: requestID, ProductID: productID})
	if err != nil {
		return nil, err
	}
	summary := resp.(*SummaryResponse)
	if !summary.Found {
		return nil, bazaar.ErrUnknownProduct
	}
	return &bazaar.ProductSummary{
		ProductID:   summary.ProductID,
		BuyLevels:   summary.BuyLevels,
		SellLevels:  summary.SellLevels,
		GeneratedAt: time.Now(),
	}, nil
}

func (c *Client) OrdersByOwner(ctx context.Context, owner uuid.UUID) ([]bazaar.Order, error) {
	requestID := xid.New().String()
	ch := c.openPending(requestID)
	defer c.closePending(requestID)

	if err := c.conn.Send(&OrdersRequest{RequestID: requestID, Owner: owner}); err != nil {
		return nil, err
	}

	// Accumulate single-item parts until the finished flag.
	var orders []bazaar.Order
	for {
		select {
		case msg := <-ch:
			part := msg.(*OrderPart)
			if part.Error != "" {
				return nil, remoteError(part.Error)
			}
			if part.Present {
				order := part.Order
				order.SetResolver(c.catalogue)
				orders = append(orders, order)
			}
			if part.Finished {
				return orders, nil
			}
		case <-c.conn.Done():
			return nil, net.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) OrderByID(ctx context.Context, id uuid.UUID) (*bazaar.Order, error) {
	requestID := xid.New().String()
	resp, err := c.request(ctx, requestID, &OrderGetRequest{RequestID: requestID, OrderID: id})
	if err != nil {
		return nil, err
	}
	get := resp.(*OrderGetResponse)
	if !get.OK {
		return nil, remoteError(get.Error)
	}
	order := get.Order
	order.SetResolver(c.catalogue)
	return &order, nil
}

func (c *Client) PlaceBuyOrder(ctx context.Context, owner uuid.UUID, productID string, units, pricePerUnit int64) (*bazaar.Order, error) {
	return c.placeOrder(ctx, owner, productID, true, units, pricePerUnit)
}

func (c *Client) PlaceSellOrder(ctx context.Context, owner uuid.UUID, productID string, units, pricePerUnit int64) (*bazaar.Order, error) {
	return c.placeOrder(ctx, owner, productID, false, units, pricePerUnit)
}

func (c *Client) placeOrder(ctx context.Context, owner uuid.UUID, productID string, isBuy bool, units, pricePerUnit int64) (*bazaar.Order, error) {
	requestID := xid.New().String()
	resp, err := c.request(ctx, requestID, &PlaceOrderRequest{
		RequestID:    requestID,
		Owner:        owner,
		ProductID:    productID,
		IsBuy:        isBuy,
		Units:        units,
		PricePerUnit: pricePerUnit,
	})
	if err != nil {
		return nil, err
	}
	place := resp.(*PlaceOrderResponse)
	if !place.OK {
		return nil, remoteError(place.Error)
	}
	order := place.Order
	order.SetResolver(c.catalogue)
	return &order, nil
}

func (c *Client) CancelOrder(ctx context.Context, id uuid.UUID) (*bazaar.Order, error) {
	requestID := xid.New().String()
	resp, err := c.request(ctx, requestID, &CancelOrderRequest{RequestID: requestID, OrderID: id})
	if err != nil {
		return nil, err
	}
	cancel := resp.(*CancelOrderResponse)
	if !cancel.OK {
		return nil, remoteError(cancel.Error)
	}
	order := cancel.Order
	order.SetResolver(c.catalogue)
	return &order, nil
}

func (c *Client) ClaimOrder(ctx context.Context, id uuid.UUID) (*bazaar.ClaimResult, error) {
	requestID := xid.New().String()
	resp, err := c.request(ctx, requestID, &ClaimOrderRequest{RequestID: requestID, OrderID: id})
	if err != nil {
		return nil, err
	}
	claim := resp.(*ClaimOrderResponse)
	if !claim.OK {
		return nil, remoteError(claim.Error)
	}
	return &bazaar.ClaimResult{
		ClaimedUnits: claim.ClaimedUnits,
		ClaimedValue: claim.ClaimedValue,
		FullyClaimed: claim.FullyClaimed,
	}, nil
}

func (c *Client) InstantBuy(ctx context.Context, buyer uuid.UUID, productID string, units, balance int64) (*bazaar.InstantBuyResult, error) {
	requestID := xid.New().String()
	resp, err := c.request(ctx, requestID, &InstantOrderRequest{
		RequestID: requestID,
		User:      buyer,
		ProductID: productID,
		IsBuy:     true,
		Units:     units,
		Balance:   balance,
	})
	if err != nil {
		return nil, err
	}
	instant := resp.(*InstantOrderResponse)
	if !instant.OK {
		return nil, remoteError(instant.Error)
	}
	return &bazaar.InstantBuyResult{
		Requested:      instant.Requested,
		Bought:         instant.Bought,
		InitialBalance: instant.InitialBalance,
		NewBalance:     instant.NewBalance,
	}, nil
}

func (c *Client) InstantSell(ctx context.Context, seller uuid.UUID, productID string, units int64) (*bazaar.InstantSellResult, error) {
	requestID := xid.New().String()
	resp, err := c.request(ctx, requestID, &InstantOrderRequest{
		RequestID: requestID,
		User:      seller,
		ProductID: productID,
		IsBuy:     false,
		Units:     units,
	})
	if err != nil {
		return nil, err
	}
	instant := resp.(*InstantOrderResponse)
	if !instant.OK {
		return nil, remoteError(instant.Error)
	}
	return &bazaar.InstantSellResult{
		Requested:        instant.Requested,
		Leftover:         instant.Leftover,
		CollectedBalance: instant.CollectedBalance,
	}, nil
}

func (c *Client) OnOrderFilled(l bazaar.OrderFilledListener) {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	c.fillListeners = append(c.fillListeners, l)
}

func (c *Client) Close(context.Context) error {
	return c.conn.Close()
}
