package wire

import (
	"sync"

	"go.uber.org/zap"
)

var logger = zap.NewNop()

// SetLogger allows setting a custom logger
func SetLogger(l *zap.Logger) {
	logger = l
}

// Message is one self-describing protocol unit. The string ID travels on
// the wire ahead of the body, so peers can route without a shared schema.
type Message interface {
	ID() string
	Encode(w *Writer)
	Decode(r *Reader) error
}

// Listener receives every decoded message of one ID, in the order the
// connection read them.
type Listener func(c *Conn, msg Message)

// Registry maps message IDs to deserializer factories and fans decoded
// messages out to per-ID listeners in registration order.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Message
	listeners map[string][]Listener
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func() Message),
		listeners: make(map[string][]Listener),
	}
}

// Register makes a message type decodable. The factory must produce a
// fresh message per call.
func (reg *Registry) Register(factory func() Message) {
	id := factory().ID()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.factories[id] = factory
}

// Listen attaches a listener for one message ID.
func (reg *Registry) Listen(id string, l Listener) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.listeners[id] = append(reg.listeners[id], l)
}

// Encode serializes a message into a frame payload: string ID then body.
func Encode(msg Message) ([]byte, error) {
	w := NewWriter()
	w.WriteString(msg.ID())
	msg.Encode(w)
	payload := w.Bytes()
	if len(payload) > MaxPayload {
		return nil, ErrOversized
	}
	return payload, nil
}

// dispatch decodes one frame payload and fans it out. Unknown IDs and
// malformed bodies drop the packet silently: a peer speaking a newer
// protocol revision must not kill the connection.
func (reg *Registry) dispatch(c *Conn, payload []byte) {
	r := NewReader(payload)
	id, err := r.ReadString()
	if err != nil {
		logger.Debug("dropping unreadable packet", zap.Error(err))
		return
	}

	reg.mu.RLock()
	factory, known := reg.factories[id]
	listeners := reg.listeners[id]
	reg.mu.RUnlock()

	if !known {
		logger.Debug("dropping packet with unknown id", zap.String("id", id))
		return
	}

	msg := factory()
	if err := msg.Decode(r); err != nil {
		logger.Debug("dropping malformed packet", zap.String("id", id), zap.Error(err))
		return
	}

	for _, l := range listeners {
		l(c, msg)
	}
}
