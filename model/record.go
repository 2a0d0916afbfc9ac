package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// Record is a flat set of named scalar fields describing one component, as
// delivered by the data source. Positional rows are converted to names once,
// at construction, so nothing downstream depends on column order.
type Record struct {
	component string
	fields    map[string]any
}

// NewNamedRecord builds a record from a field map. Field names are
// normalised with NormalizeField.
func NewNamedRecord(component string, fields map[string]any) Record {
	r := Record{component: component, fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		r.fields[NormalizeField(k)] = v
	}
	return r
}

// NewPositionalRecord zips a positional row with its column header. The row
// must carry exactly one value per column.
func NewPositionalRecord(component string, columns []string, row []any) (Record, error) {
	if len(columns) != len(row) {
		return Record{}, &FieldError{
			Component: component,
			Field:     "*",
			Err:       ErrFieldCount,
			Detail:    fmt.Sprintf("%d columns, %d values", len(columns), len(row)),
		}
	}
	r := Record{component: component, fields: make(map[string]any, len(columns))}
	for i, col := range columns {
		r.fields[NormalizeField(col)] = row[i]
	}
	return r, nil
}

// RecordFromStruct builds a record from a protobuf Struct row.
func RecordFromStruct(component string, s *structpb.Struct) Record {
	r := Record{component: component, fields: make(map[string]any)}
	if s == nil {
		return r
	}
	for k, v := range s.GetFields() {
		r.fields[NormalizeField(k)] = v
	}
	return r
}

// NormalizeField lower-cases a column name and maps spaces and dashes to
// underscores.
func NormalizeField(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

// Component returns the component label used in errors.
func (r Record) Component() string { return r.component }

// WithComponent returns a copy labelled with a different component name,
// typically once the record's own name field is known.
func (r Record) WithComponent(component string) Record {
	r.component = component
	return r
}

// Fields returns the normalised field names in sorted order.
func (r Record) Fields() []string {
	out := make([]string, 0, len(r.fields))
	for k := range r.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Has reports whether the field is present and non-nil.
func (r Record) Has(field string) bool {
	_, ok := r.lookup(field)
	return ok
}

func (r Record) lookup(field string) (any, bool) {
	v, ok := r.fields[NormalizeField(field)]
	if !ok || v == nil {
		return nil, false
	}
	if pv, ok := v.(*structpb.Value); ok {
		if pv == nil {
			return nil, false
		}
		if _, isNull := pv.GetKind().(*structpb.Value_NullValue); isNull {
			return nil, false
		}
		return pv.AsInterface(), true
	}
	return v, true
}

// String returns a text field. Numbers are formatted in their shortest form.
func (r Record) String(field string) (string, error) {
	v, ok := r.lookup(field)
	if !ok {
		return "", missingField(r.component, field)
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", missingField(r.component, field)
		}
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		if f, err := toFloat(v); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return "", r.typeError(field, v, "string")
	}
}

// Float returns a numeric field as float64.
func (r Record) Float(field string) (float64, error) {
	v, ok := r.lookup(field)
	if !ok {
		return 0, missingField(r.component, field)
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, r.typeError(field, v, "number")
	}
	return f, nil
}

// Int returns an integral numeric field. Non-integral values are rejected.
func (r Record) Int(field string) (int, error) {
	f, err := r.Float(field)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, r.typeError(field, f, "integer")
	}
	return int(f), nil
}

func (r Record) typeError(field string, v any, want string) error {
	return &FieldError{
		Component: r.component,
		Field:     NormalizeField(field),
		Err:       ErrFieldType,
		Detail:    fmt.Sprintf("want %s, got %T(%v)", want, v, v),
	}
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}
