package bazaar

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/huandu/skiplist"
)

// priceUnit holds the FIFO of resting orders at one price.
type priceUnit struct {
	totalUnits int64
	orders     []*Order
}

// sideQueue keeps one (product, side)'s live orders sorted by price in a
// skip list, FIFO within a price.
type sideQueue struct {
	side        Side
	totalOrders int64
	depths      int64
	depthList   *skiplist.SkipList
	priceList   map[int64]*skiplist.Element
}

// newSideQueue creates a queue sorted best price first: descending for
// bids, ascending for asks.
func newSideQueue(side Side) *sideQueue {
	return &sideQueue{
		side: side,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			p1, _ := lhs.(int64)
			p2, _ := rhs.(int64)

			if p1 == p2 {
				return 0
			}
			better := p1 > p2
			if side == Sell {
				better = p1 < p2
			}
			if better {
				return -1
			}
			return 1
		})),
		priceList: make(map[int64]*skiplist.Element),
	}
}

// insertOrder inserts an order into the queue, creating its price level if
// needed.
func (q *sideQueue) insertOrder(order *Order) {
	el, ok := q.priceList[order.PricePerUnit]
	if ok {
		unit, _ := el.Value.(*priceUnit)
		unit.orders = append(unit.orders, order)
		unit.totalUnits += order.UnfilledUnits()
	} else {
		unit := &priceUnit{
			orders:     []*Order{order},
			totalUnits: order.UnfilledUnits(),
		}
		q.priceList[order.PricePerUnit] = q.depthList.Set(order.PricePerUnit, unit)
		q.depths++
	}
	q.totalOrders++
}

// removeOrder removes an order from its price level and cleans up the
// level once empty.
func (q *sideQueue) removeOrder(price int64, id uuid.UUID) {
	el, ok := q.priceList[price]
	if !ok {
		return
	}
	unit, _ := el.Value.(*priceUnit)

	for i, o := range unit.orders {
		if o.ID == id {
			unit.totalUnits -= o.UnfilledUnits()
			unit.orders = append(unit.orders[:i], unit.orders[i+1:]...)
			q.totalOrders--
			break
		}
	}

	if len(unit.orders) == 0 {
		q.depthList.RemoveElement(el)
		delete(q.priceList, price)
		q.depths--
	}
}

func (q *sideQueue) orderCount() int64 {
	return q.totalOrders
}

func (q *sideQueue) depthCount() int64 {
	return q.depths
}

type listingKey struct {
	productID string
	side      Side
}

// MemoryStore is an OrderStore held entirely in memory: an index by order
// ID and owner, plus per-(product, side) price-sorted queues that act as
// suppliers for the top-of-book buffer. It backs the storage-free market
// service and the tests. Safe only under the service's serialization
// discipline, like every store.
type MemoryStore struct {
	orders   map[uuid.UUID]*Order
	byOwner  map[uuid.UUID]map[uuid.UUID]*Order
	listings map[listingKey]*sideQueue
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[uuid.UUID]*Order),
		byOwner:  make(map[uuid.UUID]map[uuid.UUID]*Order),
		listings: make(map[listingKey]*sideQueue),
	}
}

func (s *MemoryStore) queue(productID string, side Side) *sideQueue {
	key := listingKey{productID: productID, side: side}
	q, ok := s.listings[key]
	if !ok {
		q = newSideQueue(side)
		s.listings[key] = q
	}
	return q
}

// Save upserts the order. Fully filled orders leave their listing queue;
// fully claimed orders leave the store entirely.
func (s *MemoryStore) Save(ctx context.Context, o *Order) error {
	if _, known := s.orders[o.ID]; !known {
		s.orders[o.ID] = o
		owned, ok := s.byOwner[o.Owner]
		if !ok {
			owned = make(map[uuid.UUID]*Order)
			s.byOwner[o.Owner] = owned
		}
		owned[o.ID] = o
		if !o.RemovedFromListing() {
			s.queue(o.ProductID, o.Side).insertOrder(o)
		}
		return nil
	}

	if o.RemovedFromListing() {
		s.queue(o.ProductID, o.Side).removeOrder(o.PricePerUnit, o.ID)
	}
	if o.RemovedFromOwner() {
		return s.Delete(ctx, o.ID)
	}
	return nil
}

// Delete removes the order from every index.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	delete(s.orders, id)

	if owned, ok := s.byOwner[o.Owner]; ok {
		delete(owned, id)
		if len(owned) == 0 {
			delete(s.byOwner, o.Owner)
		}
	}
	s.queue(o.ProductID, o.Side).removeOrder(o.PricePerUnit, o.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) ByOwner(_ context.Context, owner uuid.UUID) ([]*Order, error) {
	owned := s.byOwner[owner]
	out := make([]*Order, 0, len(owned))
	for _, o := range owned {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Supplier returns a best-price-first supplier over one (product, side)
// listing, suitable for Book.Fill.
func (s *MemoryStore) Supplier(_ context.Context, productID string, side Side) (OrderSupplier, error) {
	q := s.queue(productID, side)
	return &memSupplier{el: q.depthList.Front()}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type memSupplier struct {
	el  *skiplist.Element
	idx int
}

func (m *memSupplier) Next() (*Order, bool, error) {
	for m.el != nil {
		unit, _ := m.el.Value.(*priceUnit)
		if m.idx < len(unit.orders) {
			o := unit.orders[m.idx]
			m.idx++
			return o, true, nil
		}
		m.el = m.el.Next()
		m.idx = 0
	}
	return nil, false, nil
}
