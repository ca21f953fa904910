package bazaar

import (
	"io"
	"sort"
)

// OrderSupplier feeds Book.Fill with resting orders, best price first.
// Implementations exist for the SQL store, the in-memory store, and tests;
// the buffer never cares which one it is draining.
type OrderSupplier interface {
	// Next returns the next order, or ok == false once the supplier is
	// exhausted.
	Next() (order *Order, ok bool, err error)
}

// PersistFunc durably writes an order mutation. OrdersIterator.Update calls
// it before the in-memory state is adjusted, so an interrupted instant-order
// walk leaves already-visited offers correctly partially filled and
// untouched offers unaffected.
type PersistFunc func(*Order) error

// OrdersIterator is the single iteration contract shared by every backing
// store (top-of-book buffer, plain slice, nothing at all). Mutation
// visibility is push-based: nothing observes a fill until Update is called.
type OrdersIterator interface {
	HasNext() bool
	Next() *Order
	// Update applies the mutation of the most recently returned order:
	// persist first, then adjust tracked volume, then evict if the order
	// became fully filled.
	Update(*Order) error
}

// Book is the bounded top-of-book buffer for one (product, side): the best
// priced resting orders sorted by the side's comparator (Buy descending,
// Sell ascending), FIFO within a price. It is a cache over the real store,
// never the source of truth; Reset and refill is always safe.
type Book struct {
	productID    string
	side         Side
	orders       []*Order
	trackedUnits int64
}

func NewBook(productID string, side Side) *Book {
	return &Book{
		productID: productID,
		side:      side,
	}
}

func (b *Book) ProductID() string {
	return b.productID
}

func (b *Book) Side() Side {
	return b.side
}

func (b *Book) Len() int {
	return len(b.orders)
}

// TrackedUnits is the sum of unfilled units across buffered orders.
func (b *Book) TrackedUnits() int64 {
	return b.trackedUnits
}

// sortsBefore reports whether a belongs strictly ahead of x in this book.
func (b *Book) sortsBefore(a, x *Order) bool {
	if b.side == Buy {
		return a.PricePerUnit > x.PricePerUnit
	}
	return a.PricePerUnit < x.PricePerUnit
}

// Insert places the order at its sorted position. Equal prices keep
// insertion order, so earlier offers trade first.
func (b *Book) Insert(o *Order) {
	i := sort.Search(len(b.orders), func(i int) bool {
		return b.sortsBefore(o, b.orders[i])
	})
	b.orders = append(b.orders, nil)
	copy(b.orders[i+1:], b.orders[i:])
	b.orders[i] = o
	b.trackedUnits += o.UnfilledUnits()
}

// Fill pulls orders from the supplier until trackedUnits reaches limit or
// the supplier runs dry. A limit of -1 drains the supplier fully. A
// supplier abandoned before exhaustion is closed when it implements
// io.Closer, so cursor-backed suppliers release their connection.
func (b *Book) Fill(limit int64, supplier OrderSupplier) error {
	for limit == DrainSupplier || b.trackedUnits < limit {
		o, ok, err := supplier.Next()
		if err != nil {
			releaseSupplier(supplier)
			return err
		}
		if !ok {
			return nil
		}
		b.Insert(o)
	}
	releaseSupplier(supplier)
	return nil
}

func releaseSupplier(s OrderSupplier) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}

// DrainSupplier is the Fill limit that exhausts the supplier completely.
const DrainSupplier int64 = -1

// Reset empties the buffer. A full refill through Fill is the intended way
// to resynchronize with the store, rather than incremental re-sorting.
func (b *Book) Reset() {
	b.orders = b.orders[:0]
	b.trackedUnits = 0
}

// RecommendedCap bounds how many units one instant-order request should
// consume from the current refill window, so a single large order cannot
// starve the other requests expected before the next periodic refill.
func (b *Book) RecommendedCap(limit int64, requestsPerCycle int64) int64 {
	if requestsPerCycle < 1 {
		requestsPerCycle = 1
	}
	fair := b.trackedUnits / requestsPerCycle
	if limit < fair {
		return limit
	}
	return fair
}

// Iterator returns a cursor over the buffer in price order. persist is
// invoked by Update before any in-memory bookkeeping.
func (b *Book) Iterator(persist PersistFunc) OrdersIterator {
	return &bookIterator{book: b, persist: persist}
}

// evict removes the order at index i from the buffer.
func (b *Book) evict(i int) {
	copy(b.orders[i:], b.orders[i+1:])
	b.orders[len(b.orders)-1] = nil
	b.orders = b.orders[:len(b.orders)-1]
}

type bookIterator struct {
	book    *Book
	persist PersistFunc
	pos     int
	// unfilled units of the order most recently returned by Next, used to
	// compute the fill delta applied by Update
	lastUnfilled int64
}

// skipDead evicts fully filled orders sitting at the cursor. They carry no
// unfilled units, so trackedUnits is unaffected.
func (it *bookIterator) skipDead() {
	for it.pos < len(it.book.orders) && it.book.orders[it.pos].RemovedFromListing() {
		it.book.evict(it.pos)
	}
}

func (it *bookIterator) HasNext() bool {
	it.skipDead()
	return it.pos < len(it.book.orders)
}

func (it *bookIterator) Next() *Order {
	if !it.HasNext() {
		return nil
	}
	o := it.book.orders[it.pos]
	it.lastUnfilled = o.UnfilledUnits()
	it.pos++
	return o
}

func (it *bookIterator) Update(o *Order) error {
	if it.persist != nil {
		if err := it.persist(o); err != nil {
			return err
		}
	}
	delta := it.lastUnfilled - o.UnfilledUnits()
	it.book.trackedUnits -= delta
	it.lastUnfilled = o.UnfilledUnits()
	if o.RemovedFromListing() && it.pos > 0 {
		it.book.evict(it.pos - 1)
		it.pos--
	}
	return nil
}

// EmptyIterator is the iterator for the no-liquidity case. An empty book is
// a normal state, never an error; callers see HasNext() == false and move on.
func EmptyIterator() OrdersIterator {
	return emptyIterator{}
}

type emptyIterator struct{}

func (emptyIterator) HasNext() bool       { return false }
func (emptyIterator) Next() *Order        { return nil }
func (emptyIterator) Update(*Order) error { return nil }

// SliceIterator iterates a plain in-memory sequence. Fully filled orders
// are skipped but not evicted: the slice is a view, not a cache.
func SliceIterator(orders []*Order, persist PersistFunc) OrdersIterator {
	return &sliceIterator{orders: orders, persist: persist}
}

type sliceIterator struct {
	orders  []*Order
	persist PersistFunc
	pos     int
}

func (it *sliceIterator) skipDead() {
	for it.pos < len(it.orders) && it.orders[it.pos].RemovedFromListing() {
		it.pos++
	}
}

func (it *sliceIterator) HasNext() bool {
	it.skipDead()
	return it.pos < len(it.orders)
}

func (it *sliceIterator) Next() *Order {
	if !it.HasNext() {
		return nil
	}
	o := it.orders[it.pos]
	it.pos++
	return o
}

func (it *sliceIterator) Update(o *Order) error {
	if it.persist != nil {
		return it.persist(o)
	}
	return nil
}
