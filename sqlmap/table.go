// Package sqlmap is a minimal typed record mapper over database/sql: a
// named, ordered set of column descriptors mapped onto one table. It is
// deliberately not an ORM: no relations, no migrations, no dialects
// beyond what CREATE TABLE IF NOT EXISTS and ? placeholders cover.
package sqlmap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// ColumnType is the SQL type a column is declared with.
type ColumnType string

const (
	TypeUUID    ColumnType = "VARCHAR(36)"
	TypeVarchar ColumnType = "VARCHAR(255)"
	TypeBool    ColumnType = "BOOLEAN"
	TypeBigInt  ColumnType = "BIGINT"
)

// Column describes one field of record R: its SQL name and type plus the
// typed mapper pair moving values between the record and the driver.
type Column[R any] struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool

	// Get extracts the column's driver value from a record.
	Get func(R) any
	// Set writes a scanned driver value back into a record.
	Set func(R, any) error
}

// Table maps records of type R onto one SQL table. The backing table is
// created on first use if absent; schema drift across versions is
// unsupported.
type Table[R any] struct {
	db      *sql.DB
	name    string
	newRec  func() R
	columns []Column[R]
	pk      *Column[R]

	createOnce sync.Once
	createErr  error
}

// NewTable builds a Table. Misconfiguration (no columns, several primary
// keys, nil factory) is a programmer error and panics immediately.
func NewTable[R any](db *sql.DB, name string, newRec func() R, columns ...Column[R]) *Table[R] {
	if db == nil || name == "" || newRec == nil || len(columns) == 0 {
		panic("sqlmap: table requires a db, a name, a record factory and columns")
	}
	t := &Table[R]{
		db:      db,
		name:    name,
		newRec:  newRec,
		columns: columns,
	}
	for i := range columns {
		if !columns[i].PrimaryKey {
			continue
		}
		if t.pk != nil {
			panic("sqlmap: table " + name + " declares more than one primary key")
		}
		t.pk = &t.columns[i]
	}
	return t
}

// Name returns the table name.
func (t *Table[R]) Name() string {
	return t.name
}

// ensureCreated creates the backing table exactly once per Table instance.
func (t *Table[R]) ensureCreated(ctx context.Context) error {
	t.createOnce.Do(func() {
		defs := make([]string, 0, len(t.columns))
		for _, col := range t.columns {
			def := col.Name + " " + string(col.Type)
			if col.PrimaryKey {
				def += " PRIMARY KEY"
			}
			defs = append(defs, def)
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, strings.Join(defs, ", "))
		_, t.createErr = t.db.ExecContext(ctx, stmt)
	})
	return t.createErr
}

func (t *Table[R]) columnNames() []string {
	names := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		names = append(names, col.Name)
	}
	return names
}

// Upsert writes the record, replacing the whole row when the primary key
// already exists. Order rows are small and updates rare next to in-memory
// buffer traffic, so replace-by-key is good enough.
func (t *Table[R]) Upsert(ctx context.Context, rec R) error {
	if err := t.ensureCreated(ctx); err != nil {
		return err
	}

	args := make([]any, 0, len(t.columns))
	marks := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		args = append(args, col.Get(rec))
		marks = append(marks, "?")
	}
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(t.columnNames(), ", "), strings.Join(marks, ", "))
	_, err := t.db.ExecContext(ctx, stmt, args...)
	return err
}

// Delete removes the row with the given primary key value.
func (t *Table[R]) Delete(ctx context.Context, key any) error {
	if t.pk == nil {
		panic("sqlmap: table " + t.name + " has no primary key")
	}
	if err := t.ensureCreated(ctx); err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, t.pk.Name)
	_, err := t.db.ExecContext(ctx, stmt, key)
	return err
}

// Get fetches the record with the given primary key value; ok is false
// when no row matches.
func (t *Table[R]) Get(ctx context.Context, key any) (rec R, ok bool, err error) {
	if t.pk == nil {
		panic("sqlmap: table " + t.name + " has no primary key")
	}
	rows, err := t.Query(ctx, t.pk.Name+" = ?", key)
	if err != nil {
		return rec, false, err
	}
	defer rows.Close()
	return rows.Next()
}

// Query runs a SELECT with an optional WHERE clause (may include ORDER BY
// etc.) and returns a forward-only cursor of freshly constructed records.
func (t *Table[R]) Query(ctx context.Context, where string, args ...any) (*Rows[R], error) {
	if err := t.ensureCreated(ctx); err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.columnNames(), ", "), t.name)
	if where != "" {
		stmt += " WHERE " + where
	}
	rows, err := t.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return &Rows[R]{table: t, rows: rows}, nil
}

// QueryAll collects the whole result set at once.
func (t *Table[R]) QueryAll(ctx context.Context, where string, args ...any) ([]R, error) {
	rows, err := t.Query(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []R
	for {
		rec, ok, err := rows.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, rec)
	}
}

// Rows is a forward-only cursor producing one record per row.
type Rows[R any] struct {
	table *Table[R]
	rows  *sql.Rows
}

// Next constructs and fills the next record; ok is false at the end of the
// result set.
func (r *Rows[R]) Next() (rec R, ok bool, err error) {
	if !r.rows.Next() {
		return rec, false, r.rows.Err()
	}

	dests := make([]any, len(r.table.columns))
	for i := range dests {
		dests[i] = new(any)
	}
	if err := r.rows.Scan(dests...); err != nil {
		return rec, false, err
	}

	rec = r.table.newRec()
	for i, col := range r.table.columns {
		if err := col.Set(rec, *dests[i].(*any)); err != nil {
			return rec, false, fmt.Errorf("column %s: %w", col.Name, err)
		}
	}
	return rec, true, nil
}

// Close releases the underlying cursor.
func (r *Rows[R]) Close() error {
	return r.rows.Close()
}
