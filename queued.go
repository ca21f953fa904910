package bazaar

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// QueuedMarketService forces every call against one wrapped MarketService
// through a single worker goroutine, so two calls never interleave and the
// wrapped service needs no internal locking. Multiple QueuedMarketService
// instances (one per shard) run fully in parallel.
type QueuedMarketService struct {
	inner MarketService

	isShutdown       atomic.Bool
	cmdChan          chan queuedCall
	done             chan struct{}
	shutdownComplete chan struct{}
}

type queuedCall struct {
	run  func()
	done chan struct{}
}

// NewQueuedMarketService wraps inner and starts the worker.
func NewQueuedMarketService(inner MarketService) *QueuedMarketService {
	q := &QueuedMarketService{
		inner:            inner,
		cmdChan:          make(chan queuedCall, 1024),
		done:             make(chan struct{}),
		shutdownComplete: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *QueuedMarketService) run() {
	for {
		select {
		case <-q.done:
			q.drain()
			return
		case call := <-q.cmdChan:
			call.run()
			close(call.done)
		}
	}
}

// drain executes all submitted calls before completing shutdown, so a call
// accepted by submit is never silently dropped.
func (q *QueuedMarketService) drain() {
	defer close(q.shutdownComplete)
	for {
		select {
		case call := <-q.cmdChan:
			call.run()
			close(call.done)
		default:
			return
		}
	}
}

// submit queues fn and waits for the worker to execute it.
func (q *QueuedMarketService) submit(ctx context.Context, fn func()) error {
	if q.isShutdown.Load() {
		return ErrShutdown
	}

	call := queuedCall{run: fn, done: make(chan struct{})}
	// A call racing Close can slip past the isShutdown check and land in
	// the queue after drain returned; watching shutdownComplete keeps such
	// a caller from waiting on a done that will never close.
	select {
	case q.cmdChan <- call:
	case <-q.shutdownComplete:
		return ErrShutdown
	case <-ctx.Done():
		return ErrTimeout
	}

	select {
	case <-call.done:
		return nil
	case <-q.shutdownComplete:
		// drain may have executed the call just before completing.
		select {
		case <-call.done:
			return nil
		default:
			return ErrShutdown
		}
	case <-ctx.Done():
		return ErrTimeout
	}
}

func (q *QueuedMarketService) Catalogue(ctx context.Context) (*Catalogue, error) {
	var (
		out *Catalogue
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.Catalogue(ctx) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) Summary(ctx context.Context, productID string) (*ProductSummary, error) {
	var (
		out *ProductSummary
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.Summary(ctx, productID) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) OrdersByOwner(ctx context.Context, owner uuid.UUID) ([]Order, error) {
	var (
		out []Order
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.OrdersByOwner(ctx, owner) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) OrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var (
		out *Order
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.OrderByID(ctx, id) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) PlaceBuyOrder(ctx context.Context, owner uuid.UUID, productID string, units, pricePerUnit int64) (*Order, error) {
	var (
		out *Order
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.PlaceBuyOrder(ctx, owner, productID, units, pricePerUnit) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) PlaceSellOrder(ctx context.Context, owner uuid.UUID, productID string, units, pricePerUnit int64) (*Order, error) {
	var (
		out *Order
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.PlaceSellOrder(ctx, owner, productID, units, pricePerUnit) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) CancelOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var (
		out *Order
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.CancelOrder(ctx, id) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) ClaimOrder(ctx context.Context, id uuid.UUID) (*ClaimResult, error) {
	var (
		out *ClaimResult
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.ClaimOrder(ctx, id) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) InstantBuy(ctx context.Context, buyer uuid.UUID, productID string, units, balance int64) (*InstantBuyResult, error) {
	var (
		out *InstantBuyResult
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.InstantBuy(ctx, buyer, productID, units, balance) }); serr != nil {
		return nil, serr
	}
	return out, err
}

func (q *QueuedMarketService) InstantSell(ctx context.Context, seller uuid.UUID, productID string, units int64) (*InstantSellResult, error) {
	var (
		out *InstantSellResult
		err error
	)
	if serr := q.submit(ctx, func() { out, err = q.inner.InstantSell(ctx, seller, productID, units) }); serr != nil {
		return nil, serr
	}
	return out, err
}

// OnOrderFilled registers through the queue as well, so registration order
// is the submission order observed by the worker.
func (q *QueuedMarketService) OnOrderFilled(l OrderFilledListener) {
	_ = q.submit(context.Background(), func() { q.inner.OnOrderFilled(l) })
}

// Close stops accepting calls, waits for the queue to drain and then
// closes the wrapped service.
func (q *QueuedMarketService) Close(ctx context.Context) error {
	if q.isShutdown.CompareAndSwap(false, true) {
		close(q.done)
	}

	select {
	case <-q.shutdownComplete:
		return q.inner.Close(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}
