package bazaar

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/hexwell/bazaar/catalog"
	"github.com/hexwell/bazaar/sqlmap"
)

// SQLStore persists orders through the sqlmap record mapper. One `orders`
// table, schema created on first use:
//
//	id (uuid, primary key), owner (uuid), product (varchar), isBuy (bool),
//	units, pricePerUnit, filled, claimed (bigint)
type SQLStore struct {
	db       *sql.DB
	table    *sqlmap.Table[*Order]
	resolver catalog.Resolver
}

// NewSQLStore wires the orders table onto db. The resolver is attached to
// every record loaded, so rehydrated orders can lazily reach their product.
func NewSQLStore(db *sql.DB, resolver catalog.Resolver) *SQLStore {
	s := &SQLStore{db: db, resolver: resolver}
	s.table = sqlmap.NewTable(db, "orders",
		func() *Order { return &Order{resolver: resolver} },
		sqlmap.Column[*Order]{
			Name: "id", Type: sqlmap.TypeUUID, PrimaryKey: true,
			Get: func(o *Order) any { return sqlmap.EncodeUUID(o.ID) },
			Set: func(o *Order, v any) (err error) {
				o.ID, err = sqlmap.DecodeUUID(v)
				return err
			},
		},
		sqlmap.Column[*Order]{
			Name: "owner", Type: sqlmap.TypeUUID,
			Get: func(o *Order) any { return sqlmap.EncodeUUID(o.Owner) },
			Set: func(o *Order, v any) (err error) {
				o.Owner, err = sqlmap.DecodeUUID(v)
				return err
			},
		},
		sqlmap.Column[*Order]{
			Name: "product", Type: sqlmap.TypeVarchar,
			Get: func(o *Order) any { return o.ProductID },
			Set: func(o *Order, v any) (err error) {
				o.ProductID, err = sqlmap.DecodeString(v)
				return err
			},
		},
		sqlmap.Column[*Order]{
			Name: "isBuy", Type: sqlmap.TypeBool,
			Get: func(o *Order) any { return sqlmap.EncodeBool(o.Side == Buy) },
			Set: func(o *Order, v any) error {
				isBuy, err := sqlmap.DecodeBool(v)
				if err != nil {
					return err
				}
				if isBuy {
					o.Side = Buy
				} else {
					o.Side = Sell
				}
				return nil
			},
		},
		sqlmap.Column[*Order]{
			Name: "units", Type: sqlmap.TypeBigInt,
			Get: func(o *Order) any { return o.TotalUnits },
			Set: func(o *Order, v any) (err error) {
				o.TotalUnits, err = sqlmap.DecodeInt64(v)
				return err
			},
		},
		sqlmap.Column[*Order]{
			Name: "pricePerUnit", Type: sqlmap.TypeBigInt,
			Get: func(o *Order) any { return o.PricePerUnit },
			Set: func(o *Order, v any) (err error) {
				o.PricePerUnit, err = sqlmap.DecodeInt64(v)
				return err
			},
		},
		sqlmap.Column[*Order]{
			Name: "filled", Type: sqlmap.TypeBigInt,
			Get: func(o *Order) any { return o.FilledUnits },
			Set: func(o *Order, v any) (err error) {
				o.FilledUnits, err = sqlmap.DecodeInt64(v)
				return err
			},
		},
		sqlmap.Column[*Order]{
			Name: "claimed", Type: sqlmap.TypeBigInt,
			Get: func(o *Order) any { return o.ClaimedUnits },
			Set: func(o *Order, v any) (err error) {
				o.ClaimedUnits, err = sqlmap.DecodeInt64(v)
				return err
			},
		},
	)
	return s
}

// Save upserts the order, or deletes it once fully claimed.
func (s *SQLStore) Save(ctx context.Context, o *Order) error {
	if o.RemovedFromOwner() {
		return s.Delete(ctx, o.ID)
	}
	return s.table.Upsert(ctx, o)
}

func (s *SQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.table.Delete(ctx, sqlmap.EncodeUUID(id))
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, ok, err := s.table.Get(ctx, sqlmap.EncodeUUID(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *SQLStore) ByOwner(ctx context.Context, owner uuid.UUID) ([]*Order, error) {
	return s.table.QueryAll(ctx, "owner = ? ORDER BY id", sqlmap.EncodeUUID(owner))
}

// Supplier streams the live listing best price first: descending for bids,
// ascending for asks. Ties within a price keep insertion order via the
// implicit rowid.
func (s *SQLStore) Supplier(ctx context.Context, productID string, side Side) (OrderSupplier, error) {
	direction := "ASC"
	if side == Buy {
		direction = "DESC"
	}
	rows, err := s.table.Query(ctx,
		"product = ? AND isBuy = ? AND filled < units ORDER BY pricePerUnit "+direction,
		productID, sqlmap.EncodeBool(side == Buy))
	if err != nil {
		return nil, err
	}
	return &sqlSupplier{rows: rows}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// sqlSupplier adapts the mapper's forward-only cursor to OrderSupplier,
// closing it at exhaustion or on error. Close releases the cursor when a
// bounded refill stops before exhaustion; the row it holds would otherwise
// pin a pooled connection.
type sqlSupplier struct {
	rows *sqlmap.Rows[*Order]
}

func (s *sqlSupplier) Next() (*Order, bool, error) {
	o, ok, err := s.rows.Next()
	if err != nil || !ok {
		_ = s.rows.Close()
		return nil, false, err
	}
	return o, true, nil
}

func (s *sqlSupplier) Close() error {
	return s.rows.Close()
}
