package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/model"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrSourceNotFound is returned by a DataSource for an unknown table or curve ID.
var ErrSourceNotFound = errors.New("source object not found")

// DataSource retrieves tabular data and sampled curves by opaque ID.
type DataSource interface {
	Table(ctx context.Context, id string) (Table, error)
	Curve(ctx context.Context, id string) ([]curve.Point, error)
}

// Table is one tabular dataset. Rows are either positional, aligned with
// Columns, named (Records) or protobuf Structs; exactly one form is used.
type Table struct {
	Columns []string           `json:"columns,omitempty"`
	Rows    [][]any            `json:"rows,omitempty"`
	Named   NamedTable         `json:"records,omitempty"`
	Structs []*structpb.Struct `json:"-"`
}

// NamedTable is a table whose rows are field maps.
type NamedTable []map[string]any

// Records converts every row of t into a record tagged with component.
func (t Table) Records(component string) ([]model.Record, error) {
	switch {
	case len(t.Structs) > 0:
		return StructRows(component, t.Structs), nil
	case len(t.Named) > 0:
		out := make([]model.Record, len(t.Named))
		for i, row := range t.Named {
			out[i] = model.NewNamedRecord(component, row)
		}
		return out, nil
	}

	out := make([]model.Record, 0, len(t.Rows))
	var errs []error
	for i, row := range t.Rows {
		rec, err := model.NewPositionalRecord(component, t.Columns, row)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		out = append(out, rec)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Len reports the number of rows.
func (t Table) Len() int {
	return len(t.Rows) + len(t.Named) + len(t.Structs)
}

// StructRows converts protobuf Struct rows, as returned by a remote
// retrieval service, into records.
func StructRows(component string, rows []*structpb.Struct) []model.Record {
	out := make([]model.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.RecordFromStruct(component, r))
	}
	return out
}

// curveJSON accepts either parallel "x"/"y" arrays or a "points" list.
type curveJSON struct {
	X      []float64     `json:"x"`
	Y      []float64     `json:"y"`
	Points []curve.Point `json:"points"`
}

func (c curveJSON) points(id string) ([]curve.Point, error) {
	if len(c.Points) > 0 {
		return c.Points, nil
	}
	if len(c.X) != len(c.Y) {
		return nil, fmt.Errorf("%w: curve %q: %d x values, %d y values",
			curve.ErrMalformedCurveData, id, len(c.X), len(c.Y))
	}
	pts := make([]curve.Point, len(c.X))
	for i := range c.X {
		pts[i] = curve.Point{X: c.X[i], Y: c.Y[i]}
	}
	return pts, nil
}

// Bundle is an in-memory DataSource. It is safe for concurrent use.
type Bundle struct {
	mu     sync.RWMutex
	tables map[string]Table
	curves map[string][]curve.Point
}

// NewBundle returns an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{
		tables: make(map[string]Table),
		curves: make(map[string][]curve.Point),
	}
}

type bundleJSON struct {
	Tables map[string]Table     `json:"tables"`
	Curves map[string]curveJSON `json:"curves"`
}

// NewBundleSource decodes a JSON data bundle of the form
// {"tables": {id: table}, "curves": {id: {"x": [...], "y": [...]}}}.
// Numbers in table rows are kept as json.Number until a record reads them.
func NewBundleSource(r io.Reader) (*Bundle, error) {
	var payload bundleJSON
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("NewBundleSource: decode failed: %w", err)
	}

	b := NewBundle()
	for id, t := range payload.Tables {
		b.AddTable(id, t)
	}
	var errs []error
	for id, c := range payload.Curves {
		pts, err := c.points(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.AddCurve(id, pts)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return b, nil
}

// AddTable stores t under id, replacing any previous table.
func (b *Bundle) AddTable(id string, t Table) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[id] = t
}

// AddStructTable stores protobuf rows under id.
func (b *Bundle) AddStructTable(id string, rows []*structpb.Struct) {
	b.AddTable(id, Table{Structs: rows})
}

// AddCurve stores a copy of pts under id.
func (b *Bundle) AddCurve(id string, pts []curve.Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.curves[id] = append([]curve.Point(nil), pts...)
}

// Table implements DataSource.
func (b *Bundle) Table(ctx context.Context, id string) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tables[id]
	if !ok {
		return Table{}, fmt.Errorf("%w: table %q", ErrSourceNotFound, id)
	}
	return t, nil
}

// Curve implements DataSource. The returned slice is a copy.
func (b *Bundle) Curve(ctx context.Context, id string) ([]curve.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	pts, ok := b.curves[id]
	if !ok {
		return nil, fmt.Errorf("%w: curve %q", ErrSourceNotFound, id)
	}
	return append([]curve.Point(nil), pts...), nil
}
