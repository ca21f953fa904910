package wire

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/hexwell/bazaar"
)

// Server multiplexes many client connections over one MarketService: it
// answers request messages, streams the catalogue on demand and pushes
// order-filled notices to every connection.
type Server struct {
	svc      bazaar.MarketService
	registry *Registry
	ln       net.Listener

	mu    sync.Mutex
	conns map[string]*Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen binds a server to the protocol address notation
// (inet:host:port or socket:path) and starts answering on Serve.
func Listen(address string, svc bazaar.MarketService) (*Server, error) {
	network, addr, err := ResolveAddress(address)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		svc:      svc,
		registry: NewRegistry(),
		ln:       ln,
		conns:    make(map[string]*Conn),
		closed:   make(chan struct{}),
	}
	RegisterAll(s.registry)
	s.listen()

	svc.OnOrderFilled(func(ev bazaar.OrderFilledEvent) {
		s.Broadcast(&OrderFilledNotice{Order: ev.Order})
	})

	return s, nil
}

// Addr is the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until Close. It blocks, in the manner of
// net/http.Server.Serve.
func (s *Server) Serve() error {
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return err
			}
		}

		conn := newConn(raw, s.registry, s.dropConn)
		s.mu.Lock()
		s.conns[conn.ID()] = conn
		s.mu.Unlock()
		logger.Info("client connected", zap.String("conn", conn.ID()))
	}
}

func (s *Server) dropConn(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
	logger.Info("client disconnected", zap.String("conn", c.ID()))
}

// Broadcast queues the message on every live connection.
func (s *Server) Broadcast(msg Message) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			logger.Debug("broadcast skipped closed connection", zap.String("conn", c.ID()))
		}
	}
}

// Close stops accepting and tears down every connection.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.ln.Close()
		s.mu.Lock()
		conns := make([]*Conn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return nil
}

// listen wires the request handlers. Handlers run on the connection's read
// goroutine; the MarketService is expected to be a QueuedMarketService, so
// calls from many connections serialize there.
func (s *Server) listen() {
	s.registry.Listen(MsgCatalogueRequest, func(c *Conn, _ Message) {
		s.streamCatalogue(c)
	})

	s.registry.Listen(MsgSummaryRequest, func(c *Conn, msg Message) {
		req := msg.(*SummaryRequest)
		resp := &SummaryResponse{RequestID: req.RequestID, ProductID: req.ProductID}
		if summary, err := s.svc.Summary(context.Background(), req.ProductID); err == nil {
			resp.Found = true
			resp.BuyLevels = summary.BuyLevels
			resp.SellLevels = summary.SellLevels
		}
		_ = c.Send(resp)
	})

	s.registry.Listen(MsgOrdersRequest, func(c *Conn, msg Message) {
		req := msg.(*OrdersRequest)
		orders, err := s.svc.OrdersByOwner(context.Background(), req.Owner)
		if err != nil {
			_ = c.Send(&OrderPart{RequestID: req.RequestID, Error: err.Error(), Finished: true})
			return
		}
		if len(orders) == 0 {
			_ = c.Send(&OrderPart{RequestID: req.RequestID, Finished: true})
			return
		}
		for i, o := range orders {
			_ = c.Send(&OrderPart{
				RequestID: req.RequestID,
				Present:   true,
				Order:     o,
				Finished:  i == len(orders)-1,
			})
		}
	})

	s.registry.Listen(MsgOrderGetRequest, func(c *Conn, msg Message) {
		req := msg.(*OrderGetRequest)
		resp := &OrderGetResponse{RequestID: req.RequestID}
		if order, err := s.svc.OrderByID(context.Background(), req.OrderID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.OK = true
			resp.Order = *order
		}
		_ = c.Send(resp)
	})

	s.registry.Listen(MsgPlaceRequest, func(c *Conn, msg Message) {
		req := msg.(*PlaceOrderRequest)
		resp := &PlaceOrderResponse{RequestID: req.RequestID}

		place := s.svc.PlaceSellOrder
		if req.IsBuy {
			place = s.svc.PlaceBuyOrder
		}
		order, err := place(context.Background(), req.Owner, req.ProductID, req.Units, req.PricePerUnit)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.OK = true
			resp.Order = *order
		}
		_ = c.Send(resp)
	})

	s.registry.Listen(MsgCancelRequest, func(c *Conn, msg Message) {
		req := msg.(*CancelOrderRequest)
		resp := &CancelOrderResponse{RequestID: req.RequestID}
		if order, err := s.svc.CancelOrder(context.Background(), req.OrderID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.OK = true
			resp.Order = *order
		}
		_ = c.Send(resp)
	})

	s.registry.Listen(MsgClaimRequest, func(c *Conn, msg Message) {
		req := msg.(*ClaimOrderRequest)
		resp := &ClaimOrderResponse{RequestID: req.RequestID}
		if claim, err := s.svc.ClaimOrder(context.Background(), req.OrderID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.OK = true
			resp.ClaimedUnits = claim.ClaimedUnits
			resp.ClaimedValue = claim.ClaimedValue
			resp.FullyClaimed = claim.FullyClaimed
		}
		_ = c.Send(resp)
	})

	s.registry.Listen(MsgInstantRequest, func(c *Conn, msg Message) {
		req := msg.(*InstantOrderRequest)
		resp := &InstantOrderResponse{RequestID: req.RequestID}
		if req.IsBuy {
			res, err := s.svc.InstantBuy(context.Background(), req.User, req.ProductID, req.Units, req.Balance)
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.OK = true
				resp.Requested = res.Requested
				resp.Bought = res.Bought
				resp.InitialBalance = res.InitialBalance
				resp.NewBalance = res.NewBalance
			}
		} else {
			res, err := s.svc.InstantSell(context.Background(), req.User, req.ProductID, req.Units)
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.OK = true
				resp.Requested = res.Requested
				resp.Leftover = res.Leftover
				resp.CollectedBalance = res.CollectedBalance
			}
		}
		_ = c.Send(resp)
	})
}

// streamCatalogue sends the catalogue as a sequence of single-item parts:
// every category, then every product, the last product part flagged
// finished. Catalogues larger than one frame simply become more parts.
func (s *Server) streamCatalogue(c *Conn) {
	cat, err := s.svc.Catalogue(context.Background())
	if err != nil {
		logger.Warn("catalogue stream failed", zap.Error(err))
		_ = c.Send(&ProductPart{Finished: true})
		return
	}

	for _, category := range cat.Categories {
		_ = c.Send(&CategoryPart{Category: *category})
	}
	if len(cat.Products) == 0 {
		_ = c.Send(&ProductPart{Finished: true})
		return
	}
	for i, product := range cat.Products {
		_ = c.Send(&ProductPart{
			Present:  true,
			Product:  *product,
			Finished: i == len(cat.Products)-1,
		})
	}
}
