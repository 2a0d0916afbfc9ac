package core

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/model"

	_ "github.com/mattn/go-sqlite3"
)

// SQLDriver is the database/sql driver name registered by the SQLite import.
const SQLDriver = "sqlite3"

// SQLSource is a DataSource backed by a SQL database, used to keep an
// offline copy of catalog data. Rows are stored as JSON objects keyed by
// field name, so column order is not preserved and not needed.
type SQLSource struct {
	db *sql.DB
}

// OpenSQLSource opens (creating if needed) a SQLite catalog store at dsn and
// ensures its schema.
func OpenSQLSource(ctx context.Context, dsn string) (*SQLSource, error) {
	db, err := sql.Open(SQLDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	// One connection: an in-memory SQLite database is private to its connection.
	db.SetMaxOpenConns(1)
	s := NewSQLSource(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSource wraps an open database.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Close closes the underlying database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the catalog tables if they do not exist.
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tables (
			table_id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS table_rows (
			table_id TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (table_id, row_index)
		)`,
		`CREATE TABLE IF NOT EXISTS curve_points (
			curve_id TEXT NOT NULL,
			point_index INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			PRIMARY KEY (curve_id, point_index)
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create catalog schema: %w", err)
		}
	}
	return nil
}

// PutTable replaces the rows stored under id. A table with no rows is kept
// and reads back empty.
func (s *SQLSource) PutTable(ctx context.Context, id string, t Table) error {
	rows, err := namedRows(t)
	if err != nil {
		return fmt.Errorf("table %q: %w", id, err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tables (table_id) VALUES (?)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM table_rows WHERE table_id = ?`, id); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO table_rows (table_id, row_index, data) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, row := range rows {
			data, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("table %q row %d: %w", id, i, err)
			}
			if _, err := stmt.ExecContext(ctx, id, i, string(data)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutCurve replaces the samples stored under id.
func (s *SQLSource) PutCurve(ctx context.Context, id string, pts []curve.Point) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM curve_points WHERE curve_id = ?`, id); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO curve_points (curve_id, point_index, x, y) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, p := range pts {
			if _, err := stmt.ExecContext(ctx, id, i, p.X, p.Y); err != nil {
				return err
			}
		}
		return nil
	})
}

// Import copies every table and curve of b into the store.
func (s *SQLSource) Import(ctx context.Context, b *Bundle) error {
	b.mu.RLock()
	tables := make(map[string]Table, len(b.tables))
	for id, t := range b.tables {
		tables[id] = t
	}
	curves := make(map[string][]curve.Point, len(b.curves))
	for id, pts := range b.curves {
		curves[id] = pts
	}
	b.mu.RUnlock()

	for id, t := range tables {
		if err := s.PutTable(ctx, id, t); err != nil {
			return err
		}
	}
	for id, pts := range curves {
		if err := s.PutCurve(ctx, id, pts); err != nil {
			return err
		}
	}
	return nil
}

// Table implements DataSource. Rows come back as a named table in their
// stored order.
func (s *SQLSource) Table(ctx context.Context, id string) (Table, error) {
	var known int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tables WHERE table_id = ?`, id).Scan(&known)
	if err != nil {
		return Table{}, fmt.Errorf("query table %q: %w", id, err)
	}
	if known == 0 {
		return Table{}, fmt.Errorf("%w: table %q", ErrSourceNotFound, id)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM table_rows WHERE table_id = ? ORDER BY row_index`, id)
	if err != nil {
		return Table{}, fmt.Errorf("query table %q: %w", id, err)
	}
	defer rows.Close()

	var named NamedTable
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return Table{}, fmt.Errorf("scan table %q: %w", id, err)
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(data)))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return Table{}, fmt.Errorf("decode table %q row: %w", id, err)
		}
		named = append(named, row)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("read table %q: %w", id, err)
	}
	return Table{Named: named}, nil
}

// Curve implements DataSource.
func (s *SQLSource) Curve(ctx context.Context, id string) ([]curve.Point, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x, y FROM curve_points WHERE curve_id = ? ORDER BY point_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query curve %q: %w", id, err)
	}
	defer rows.Close()

	var pts []curve.Point
	for rows.Next() {
		var p curve.Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scan curve %q: %w", id, err)
		}
		pts = append(pts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read curve %q: %w", id, err)
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("%w: curve %q", ErrSourceNotFound, id)
	}
	return pts, nil
}

func (s *SQLSource) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// namedRows flattens any table form into field maps.
func namedRows(t Table) ([]map[string]any, error) {
	switch {
	case len(t.Structs) > 0:
		out := make([]map[string]any, len(t.Structs))
		for i, s := range t.Structs {
			out[i] = s.AsMap()
		}
		return out, nil
	case len(t.Named) > 0:
		return t.Named, nil
	}
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("%w: row %d: %d columns, %d values", model.ErrFieldCount, i, len(t.Columns), len(row))
		}
		m := make(map[string]any, len(row))
		for j, col := range t.Columns {
			m[col] = row[j]
		}
		out[i] = m
	}
	return out, nil
}
