package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

// Conn is one framed duplex byte stream. Inbound bytes run through the
// header-pending / body-pending state machine (2-byte big-endian length,
// then that many payload bytes, a zero-length payload being a complete
// packet) and decoded packets fan out through the registry. Outbound
// packets go into a queue flushed by a dedicated writer; producers get no
// flow-control signal back, which is an accepted risk, not a feature.
type Conn struct {
	id       string
	raw      net.Conn
	registry *Registry

	out       chan []byte
	closeOnce sync.Once
	closed    chan struct{}
	onClose   func(*Conn)
}

const outboundQueueSize = 8192

func newConn(raw net.Conn, registry *Registry, onClose func(*Conn)) *Conn {
	c := &Conn{
		id:       xid.New().String(),
		raw:      raw,
		registry: registry,
		out:      make(chan []byte, outboundQueueSize),
		closed:   make(chan struct{}),
		onClose:  onClose,
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// ID is the process-local connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// Done is closed once the connection is torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Send encodes the message and queues it for delivery. Delivery is at
// most once; a connection torn down with packets queued loses them.
func (c *Conn) Send(msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	case c.out <- payload:
	}
	// An enqueue can win the race against a concurrent Close; re-check so
	// a dead connection always reports net.ErrClosed.
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
		return nil
	}
}

// Close tears the connection down. Safe to call repeatedly.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.raw.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return nil
}

func (c *Conn) readLoop() {
	defer c.Close()

	header := make([]byte, 2)
	for {
		if _, err := io.ReadFull(c.raw, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint16(header)
		if length > MaxPayload {
			// Framing violation: the stream cannot be resynchronized.
			logger.Warn("closing connection on oversized frame",
				zap.String("conn", c.id),
				zap.Uint16("length", length))
			return
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(c.raw, payload); err != nil {
			return
		}
		c.registry.dispatch(c, payload)
	}
}

func (c *Conn) writeLoop() {
	header := make([]byte, 2)
	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.out:
			binary.BigEndian.PutUint16(header, uint16(len(payload)))
			if _, err := c.raw.Write(header); err != nil {
				c.Close()
				return
			}
			if _, err := c.raw.Write(payload); err != nil {
				c.Close()
				return
			}
		}
	}
}

// ResolveAddress parses the protocol's address notation into a
// net.Dial/net.Listen network and address pair:
//
//	inet:host:port  -> tcp
//	socket:path     -> unix
func ResolveAddress(address string) (network, addr string, err error) {
	scheme, rest, found := strings.Cut(address, ":")
	if !found {
		return "", "", fmt.Errorf("wire: address %q lacks a scheme", address)
	}
	switch scheme {
	case "inet":
		return "tcp", rest, nil
	case "socket":
		return "unix", rest, nil
	default:
		return "", "", fmt.Errorf("wire: unsupported address scheme %q", scheme)
	}
}
