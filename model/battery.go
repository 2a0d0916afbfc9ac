package model

import (
	"fmt"
	"strconv"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
)

// Battery record columns, in addition to FieldName, FieldVoltage, FieldWidth
// and FieldWeight.
const (
	FieldSValue   = "s_value"
	FieldCapacity = "capacity"
	FieldLength   = "length"
	FieldHeight   = "height"
)

// Battery is a battery SKU repeated Number times in a pack.
type Battery struct {
	Name     string
	SValue   int // series cell count
	Voltage  float64
	Capacity float64 // mAh per unit
	Length   float64
	Width    float64
	Height   float64
	Weight   float64 // grams per unit
	Number   int
}

// NewBattery converts a battery table row into a Battery used number times.
func NewBattery(rec Record, number int) (*Battery, error) {
	name, err := rec.String(FieldName)
	if err != nil {
		return nil, err
	}
	rec = rec.WithComponent("battery " + name)

	b := &Battery{Name: name, Number: number}
	if b.SValue, err = rec.Int(FieldSValue); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		field string
		dst   *float64
	}{
		{FieldVoltage, &b.Voltage},
		{FieldCapacity, &b.Capacity},
		{FieldLength, &b.Length},
		{FieldWidth, &b.Width},
		{FieldHeight, &b.Height},
		{FieldWeight, &b.Weight},
	} {
		if *f.dst, err = rec.Float(f.field); err != nil {
			return nil, err
		}
	}
	if number < 1 {
		return nil, invalidField("battery "+name, "number", "must be >= 1, got %d", number)
	}
	return b, nil
}

// TotalWeight is the pack weight.
func (b *Battery) TotalWeight() float64 {
	return b.Weight * float64(b.Number)
}

// TotalCapacity is the pack capacity.
func (b *Battery) TotalCapacity() float64 {
	return b.Capacity * float64(b.Number)
}

// WithNumber returns a copy of the battery repeated n times.
func (b *Battery) WithNumber(n int) (*Battery, error) {
	if n < 1 {
		return nil, invalidField("battery "+b.Name, "number", "must be >= 1, got %d", n)
	}
	c := *b
	c.Number = n
	return &c, nil
}

func (b *Battery) String() string {
	return fmt.Sprintf("Battery(name=%s, capacity=%g, s=%d, number=%d, total_weight=%g, total_capacity=%g)",
		b.Name, b.Capacity, b.SValue, b.Number, b.TotalWeight(), b.TotalCapacity())
}

// BatteryGroup is a set of batteries sharing a discharge rating and cell
// count, with a fitted weight-vs-capacity curve for sizing before a SKU is
// chosen.
type BatteryGroup struct {
	CRate            float64
	NCells           int
	Batteries        []*Battery
	WeightVsCapacity curve.Curve
}

// NewBatteryGroup validates a group. Batteries keep their table order.
func NewBatteryGroup(cRate float64, nCells int, batteries []*Battery, weightVsCapacity curve.Curve) (*BatteryGroup, error) {
	component := fmt.Sprintf("battery group %dS c%g", nCells, cRate)
	if weightVsCapacity == nil {
		return nil, missingField(component, "weight_vs_capacity")
	}
	if nCells < 1 {
		return nil, invalidField(component, "n_cells", "must be >= 1, got %d", nCells)
	}
	if cRate <= 0 {
		return nil, invalidField(component, "c_rate", "must be > 0, got %g", cRate)
	}
	return &BatteryGroup{
		CRate:            cRate,
		NCells:           nCells,
		Batteries:        append([]*Battery(nil), batteries...),
		WeightVsCapacity: weightVsCapacity,
	}, nil
}

// Label returns the cell-count label, e.g. "3S".
func (g *BatteryGroup) Label() string {
	return CellLabel(g.NCells)
}

// CellLabel formats a series cell count as "{n}S".
func CellLabel(nCells int) string {
	return strconv.Itoa(nCells) + "S"
}

// ExpectedWeight estimates pack weight for a capacity from the group curve.
func (g *BatteryGroup) ExpectedWeight(capacity float64) (float64, error) {
	w, err := g.WeightVsCapacity.Evaluate(capacity)
	if err != nil {
		return 0, fmt.Errorf("battery group %s weight: %w", g.Label(), err)
	}
	return w, nil
}

// Battery returns the named SKU from the group's table.
func (g *BatteryGroup) Battery(name string) (*Battery, bool) {
	for _, b := range g.Batteries {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

func (g *BatteryGroup) String() string {
	return fmt.Sprintf("BatteryGroup(c_rate=%g, n_cells=%d, batteries=%d)", g.CRate, g.NCells, len(g.Batteries))
}
