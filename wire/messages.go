package wire

import (
	"github.com/google/uuid"

	"github.com/hexwell/bazaar"
	"github.com/hexwell/bazaar/catalog"
)

// Message IDs. The string travels on the wire, so renaming one is a
// protocol break.
const (
	MsgCatalogueRequest = "catalogue:request"
	MsgCategoryPart     = "catalogue:category"
	MsgProductPart      = "catalogue:product"
	MsgSummaryRequest   = "summary:request"
	MsgSummaryResponse  = "summary:response"
	MsgOrdersRequest    = "orders:request"
	MsgOrderPart        = "orders:part"
	MsgOrderGetRequest  = "order:get"
	MsgOrderGetResponse = "order:get:result"
	MsgPlaceRequest     = "order:place"
	MsgPlaceResponse    = "order:place:result"
	MsgCancelRequest    = "order:cancel"
	MsgCancelResponse   = "order:cancel:result"
	MsgClaimRequest     = "order:claim"
	MsgClaimResponse    = "order:claim:result"
	MsgInstantRequest   = "order:instant"
	MsgInstantResponse  = "order:instant:result"
	MsgOrderFilled      = "order:filled"
)

// RegisterAll makes every protocol message decodable through reg.
func RegisterAll(reg *Registry) {
	reg.Register(func() Message { return &CatalogueRequest{} })
	reg.Register(func() Message { return &CategoryPart{} })
	reg.Register(func() Message { return &ProductPart{} })
	reg.Register(func() Message { return &SummaryRequest{} })
	reg.Register(func() Message { return &SummaryResponse{} })
	reg.Register(func() Message { return &OrdersRequest{} })
	reg.Register(func() Message { return &OrderPart{} })
	reg.Register(func() Message { return &OrderGetRequest{} })
	reg.Register(func() Message { return &OrderGetResponse{} })
	reg.Register(func() Message { return &PlaceOrderRequest{} })
	reg.Register(func() Message { return &PlaceOrderResponse{} })
	reg.Register(func() Message { return &CancelOrderRequest{} })
	reg.Register(func() Message { return &CancelOrderResponse{} })
	reg.Register(func() Message { return &ClaimOrderRequest{} })
	reg.Register(func() Message { return &ClaimOrderResponse{} })
	reg.Register(func() Message { return &InstantOrderRequest{} })
	reg.Register(func() Message { return &InstantOrderResponse{} })
	reg.Register(func() Message { return &OrderFilledNotice{} })
}

func writeOrder(w *Writer, o bazaar.Order) {
	w.WriteUUID(o.ID)
	w.WriteUUID(o.Owner)
	w.WriteString(o.ProductID)
	w.WriteUint8(uint8(o.Side))
	w.WriteInt64(o.TotalUnits)
	w.WriteInt64(o.FilledUnits)
	w.WriteInt64(o.ClaimedUnits)
	w.WriteInt64(o.PricePerUnit)
}

func readOrder(r *Reader) (bazaar.Order, error) {
	var (
		o   bazaar.Order
		err error
	)
	if o.ID, err = r.ReadUUID(); err != nil {
		return o, err
	}
	if o.Owner, err = r.ReadUUID(); err != nil {
		return o, err
	}
	if o.ProductID, err = r.ReadString(); err != nil {
		return o, err
	}
	side, err := r.ReadUint8()
	if err != nil {
		return o, err
	}
	o.Side = bazaar.Side(side)
	if o.TotalUnits, err = r.ReadInt64(); err != nil {
		return o, err
	}
	if o.FilledUnits, err = r.ReadInt64(); err != nil {
		return o, err
	}
	if o.ClaimedUnits, err = r.ReadInt64(); err != nil {
		return o, err
	}
	if o.PricePerUnit, err = r.ReadInt64(); err != nil {
		return o, err
	}
	return o, nil
}

// CatalogueRequest asks the server to stream its full catalogue.
type CatalogueRequest struct{}

func (*CatalogueRequest) ID() string           { return MsgCatalogueRequest }
func (*CatalogueRequest) Encode(*Writer)       {}
func (*CatalogueRequest) Decode(*Reader) error { return nil }

// CategoryPart carries one category of the catalogue stream.
type CategoryPart struct {
	Category catalog.Category
}

func (*CategoryPart) ID() string { return MsgCategoryPart }

func (m *CategoryPart) Encode(w *Writer) {
	w.WriteString(m.Category.ID)
	w.WriteString(m.Category.Name)
}

func (m *CategoryPart) Decode(r *Reader) (err error) {
	if m.Category.ID, err = r.ReadString(); err != nil {
		return err
	}
	m.Category.Name, err = r.ReadString()
	return err
}

// ProductPart carries one product of the catalogue stream. The last part
// sets Finished; an empty catalogue is a single part with Present false.
type ProductPart struct {
	Present  bool
	Product  catalog.Product
	Finished bool
}

func (*ProductPart) ID() string { return MsgProductPart }

func (m *ProductPart) Encode(w *Writer) {
	w.WriteBool(m.Present)
	if m.Present {
		w.WriteString(m.Product.ID)
		w.WriteString(m.Product.Name)
		w.WriteString(m.Product.CategoryID)
	}
	w.WriteBool(m.Finished)
}

func (m *ProductPart) Decode(r *Reader) (err error) {
	if m.Present, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Present {
		if m.Product.ID, err = r.ReadString(); err != nil {
			return err
		}
		if m.Product.Name, err = r.ReadString(); err != nil {
			return err
		}
		if m.Product.CategoryID, err = r.ReadString(); err != nil {
			return err
		}
	}
	m.Finished, err = r.ReadBool()
	return err
}

// SummaryRequest asks for the quote snapshot of one product.
type SummaryRequest struct {
	RequestID string
	ProductID string
}

func (*SummaryRequest) ID() string { return MsgSummaryRequest }

func (m *SummaryRequest) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteString(m.ProductID)
}

func (m *SummaryRequest) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	m.ProductID, err = r.ReadString()
	return err
}

// SummaryResponse carries the coalesced price levels of both sides.
type SummaryResponse struct {
	RequestID  string
	Found      bool
	ProductID  string
	BuyLevels  []bazaar.PriceLevel
	SellLevels []bazaar.PriceLevel
}

func (*SummaryResponse) ID() string { return MsgSummaryResponse }

func writeLevels(w *Writer, levels []bazaar.PriceLevel) {
	w.WriteUint16(uint16(len(levels)))
	for _, l := range levels {
		w.WriteInt64(l.TotalUnits)
		w.WriteInt64(l.OfferCount)
		w.WriteInt64(l.Price)
	}
}

func readLevels(r *Reader) ([]bazaar.PriceLevel, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	levels := make([]bazaar.PriceLevel, n)
	for i := range levels {
		if levels[i].TotalUnits, err = r.ReadInt64(); err != nil {
			return nil, err
		}
		if levels[i].OfferCount, err = r.ReadInt64(); err != nil {
			return nil, err
		}
		if levels[i].Price, err = r.ReadInt64(); err != nil {
			return nil, err
		}
	}
	return levels, nil
}

func (m *SummaryResponse) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteBool(m.Found)
	w.WriteString(m.ProductID)
	writeLevels(w, m.BuyLevels)
	writeLevels(w, m.SellLevels)
}

func (m *SummaryResponse) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.Found, err = r.ReadBool(); err != nil {
		return err
	}
	if m.ProductID, err = r.ReadString(); err != nil {
		return err
	}
	if m.BuyLevels, err = readLevels(r); err != nil {
		return err
	}
	m.SellLevels, err = readLevels(r)
	return err
}

// OrdersRequest asks for one owner's active orders.
type OrdersRequest struct {
	RequestID string
	Owner     uuid.UUID
}

func (*OrdersRequest) ID() string { return MsgOrdersRequest }

func (m *OrdersRequest) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteUUID(m.Owner)
}

func (m *OrdersRequest) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	m.Owner, err = r.ReadUUID()
	return err
}

// OrderPart carries one order of a streamed order list; the last part sets
// Finished, an empty list is one part with Present false. A failed listing
// is one finished part with Error set, so the receiver can tell a broken
// store from an owner with no orders.
type OrderPart struct {
	RequestID string
	Error     string
	Present   bool
	Order     bazaar.Order
	Finished  bool
}

func (*OrderPart) ID() string { return MsgOrderPart }

func (m *OrderPart) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteString(m.Error)
	w.WriteBool(m.Present)
	if m.Present {
		writeOrder(w, m.Order)
	}
	w.WriteBool(m.Finished)
}

func (m *OrderPart) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.Error, err = r.ReadString(); err != nil {
		return err
	}
	if m.Present, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Present {
		if m.Order, err = readOrder(r); err != nil {
			return err
		}
	}
	m.Finished, err = r.ReadBool()
	return err
}

// OrderGetRequest fetches one order by ID.
type OrderGetRequest struct {
	RequestID string
	OrderID   uuid.UUID
}

func (*OrderGetRequest) ID() string { return MsgOrderGetRequest }

func (m *OrderGetRequest) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteUUID(m.OrderID)
}

func (m *OrderGetRequest) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	m.OrderID, err = r.ReadUUID()
	return err
}

// OrderGetResponse answers an OrderGetRequest.
type OrderGetResponse struct {
	RequestID string
	OK        bool
	Error     string
	Order     bazaar.Order
}

func (*OrderGetResponse) ID() string { return MsgOrderGetResponse }

func (m *OrderGetResponse) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteBool(m.OK)
	w.WriteString(m.Error)
	writeOrder(w, m.Order)
}

func (m *OrderGetResponse) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.OK, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Error, err = r.ReadString(); err != nil {
		return err
	}
	m.Order, err = readOrder(r)
	return err
}

// PlaceOrderRequest places a standing offer.
type PlaceOrderRequest struct {
	RequestID    string
	Owner        uuid.UUID
	ProductID    string
	IsBuy        bool
	Units        int64
	PricePerUnit int64
}

func (*PlaceOrderRequest) ID() string { return MsgPlaceRequest }

func (m *PlaceOrderRequest) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteUUID(m.Owner)
	w.WriteString(m.ProductID)
	w.WriteBool(m.IsBuy)
	w.WriteInt64(m.Units)
	w.WriteInt64(m.PricePerUnit)
}

func (m *PlaceOrderRequest) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.Owner, err = r.ReadUUID(); err != nil {
		return err
	}
	if m.ProductID, err = r.ReadString(); err != nil {
		return err
	}
	if m.IsBuy, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Units, err = r.ReadInt64(); err != nil {
		return err
	}
	m.PricePerUnit, err = r.ReadInt64()
	return err
}

// PlaceOrderResponse acknowledges a placement.
type PlaceOrderResponse struct {
	RequestID string
	OK        bool
	Error     string
	Order     bazaar.Order
}

func (*PlaceOrderResponse) ID() string { return MsgPlaceResponse }

func (m *PlaceOrderResponse) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteBool(m.OK)
	w.WriteString(m.Error)
	writeOrder(w, m.Order)
}

func (m *PlaceOrderResponse) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.OK, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Error, err = r.ReadString(); err != nil {
		return err
	}
	m.Order, err = readOrder(r)
	return err
}

// CancelOrderRequest withdraws a standing offer.
type CancelOrderRequest struct {
	RequestID string
	OrderID   uuid.UUID
}

func (*CancelOrderRequest) ID() string { return MsgCancelRequest }

func (m *CancelOrderRequest) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteUUID(m.OrderID)
}

func (m *CancelOrderRequest) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	m.OrderID, err = r.ReadUUID()
	return err
}

// CancelOrderResponse acknowledges a cancellation, carrying the final
// order state for refunds.
type CancelOrderResponse struct {
	RequestID string
	OK        bool
	Error     string
	Order     bazaar.Order
}

func (*CancelOrderResponse) ID() string { return MsgCancelResponse }

func (m *CancelOrderResponse) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteBool(m.OK)
	w.WriteString(m.Error)
	writeOrder(w, m.Order)
}

func (m *CancelOrderResponse) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.OK, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Error, err = r.ReadString(); err != nil {
		return err
	}
	m.Order, err = readOrder(r)
	return err
}

// ClaimOrderRequest collects an order's filled-but-unclaimed proceeds.
type ClaimOrderRequest struct {
	RequestID string
	OrderID   uuid.UUID
}

func (*ClaimOrderRequest) ID() string { return MsgClaimRequest }

func (m *ClaimOrderRequest) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteUUID(m.OrderID)
}

func (m *ClaimOrderRequest) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	m.OrderID, err = r.ReadUUID()
	return err
}

// ClaimOrderResponse reports the claim-all outcome.
type ClaimOrderResponse struct {
	RequestID    string
	OK           bool
	Error        string
	ClaimedUnits int64
	ClaimedValue int64
	FullyClaimed bool
}

func (*ClaimOrderResponse) ID() string { return MsgClaimResponse }

func (m *ClaimOrderResponse) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteBool(m.OK)
	w.WriteString(m.Error)
	w.WriteInt64(m.ClaimedUnits)
	w.WriteInt64(m.ClaimedValue)
	w.WriteBool(m.FullyClaimed)
}

func (m *ClaimOrderResponse) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.OK, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Error, err = r.ReadString(); err != nil {
		return err
	}
	if m.ClaimedUnits, err = r.ReadInt64(); err != nil {
		return err
	}
	if m.ClaimedValue, err = r.ReadInt64(); err != nil {
		return err
	}
	m.FullyClaimed, err = r.ReadBool()
	return err
}

// InstantOrderRequest executes a market order against the resting book.
type InstantOrderRequest struct {
	RequestID string
	User      uuid.UUID
	ProductID string
	IsBuy     bool
	Units     int64
	Balance   int64
}

func (*InstantOrderRequest) ID() string { return MsgInstantRequest }

func (m *InstantOrderRequest) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteUUID(m.User)
	w.WriteString(m.ProductID)
	w.WriteBool(m.IsBuy)
	w.WriteInt64(m.Units)
	w.WriteInt64(m.Balance)
}

func (m *InstantOrderRequest) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.User, err = r.ReadUUID(); err != nil {
		return err
	}
	if m.ProductID, err = r.ReadString(); err != nil {
		return err
	}
	if m.IsBuy, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Units, err = r.ReadInt64(); err != nil {
		return err
	}
	m.Balance, err = r.ReadInt64()
	return err
}

// InstantOrderResponse carries the residual fields of both instant-order
// shapes; which ones are meaningful follows from IsBuy on the request.
type InstantOrderResponse struct {
	RequestID        string
	OK               bool
	Error            string
	Requested        int64
	Bought           int64
	Leftover         int64
	InitialBalance   int64
	NewBalance       int64
	CollectedBalance int64
}

func (*InstantOrderResponse) ID() string { return MsgInstantResponse }

func (m *InstantOrderResponse) Encode(w *Writer) {
	w.WriteString(m.RequestID)
	w.WriteBool(m.OK)
	w.WriteString(m.Error)
	w.WriteInt64(m.Requested)
	w.WriteInt64(m.Bought)
	w.WriteInt64(m.Leftover)
	w.WriteInt64(m.InitialBalance)
	w.WriteInt64(m.NewBalance)
	w.WriteInt64(m.CollectedBalance)
}

func (m *InstantOrderResponse) Decode(r *Reader) (err error) {
	if m.RequestID, err = r.ReadString(); err != nil {
		return err
	}
	if m.OK, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Error, err = r.ReadString(); err != nil {
		return err
	}
	if m.Requested, err = r.ReadInt64(); err != nil {
		return err
	}
	if m.Bought, err = r.ReadInt64(); err != nil {
		return err
	}
	if m.Leftover, err = r.ReadInt64(); err != nil {
		return err
	}
	if m.InitialBalance, err = r.ReadInt64(); err != nil {
		return err
	}
	if m.NewBalance, err = r.ReadInt64(); err != nil {
		return err
	}
	m.CollectedBalance, err = r.ReadInt64()
	return err
}

// OrderFilledNotice pushes a fully filled order to every connected client.
type OrderFilledNotice struct {
	Order bazaar.Order
}

func (*OrderFilledNotice) ID() string { return MsgOrderFilled }

func (m *OrderFilledNotice) Encode(w *Writer) {
	writeOrder(w, m.Order)
}

func (m *OrderFilledNotice) Decode(r *Reader) (err error) {
	m.Order, err = readOrder(r)
	return err
}
