package bazaar

import "sync"

// OrderFilledEvent fires exactly when an update causes an order's filled
// units to reach its total.
type OrderFilledEvent struct {
	Order Order
}

// OrderFilledListener receives fill events. Listeners are invoked in
// registration order, synchronously with the mutation that triggered the
// event; the Order value is a private copy.
type OrderFilledListener func(OrderFilledEvent)

// fillBroadcaster fans OrderFilledEvents out to registered listeners.
type fillBroadcaster struct {
	mu        sync.RWMutex
	listeners []OrderFilledListener
}

func (b *fillBroadcaster) subscribe(l OrderFilledListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *fillBroadcaster) publish(ev OrderFilledEvent) {
	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
