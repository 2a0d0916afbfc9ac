package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Propeller record columns.
const (
	FieldName        = "name"
	FieldDiameter    = "diameter"
	FieldWidth       = "width"
	FieldBladesNum   = "blades_num"
	FieldBladeWeight = "blade_weight"
	FieldThrustLimit = "thrust_limit"
)

// Propeller is a fixed propeller specification, keyed by diameter and pitch
// width (inches).
type Propeller struct {
	Name        string
	Diameter    float64
	Width       float64
	BladesNum   int
	BladeWeight float64 // grams per blade
	ThrustLimit float64
}

// NewPropeller converts a record into a Propeller.
func NewPropeller(rec Record) (*Propeller, error) {
	name, err := rec.String(FieldName)
	if err != nil {
		return nil, err
	}
	rec = rec.WithComponent("propeller " + name)

	p := &Propeller{Name: name}
	if p.Diameter, err = rec.Float(FieldDiameter); err != nil {
		return nil, err
	}
	if p.Width, err = rec.Float(FieldWidth); err != nil {
		return nil, err
	}
	if p.BladesNum, err = rec.Int(FieldBladesNum); err != nil {
		return nil, err
	}
	if p.BladeWeight, err = rec.Float(FieldBladeWeight); err != nil {
		return nil, err
	}
	if p.ThrustLimit, err = rec.Float(FieldThrustLimit); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the record invariants. A zero blade count is accepted and
// yields a zero weight.
func (p *Propeller) Validate() error {
	component := "propeller " + p.Name
	if p.BladesNum < 0 {
		return invalidField(component, FieldBladesNum, "must be >= 0, got %d", p.BladesNum)
	}
	if p.BladeWeight < 0 {
		return invalidField(component, FieldBladeWeight, "must be >= 0, got %g", p.BladeWeight)
	}
	if p.Diameter <= 0 {
		return invalidField(component, FieldDiameter, "must be > 0, got %g", p.Diameter)
	}
	return nil
}

// Weight is the total blade weight. It is never stored.
func (p *Propeller) Weight() float64 {
	return p.BladeWeight * float64(p.BladesNum)
}

// Key returns the catalog key "{diameter}x{width}".
func (p *Propeller) Key() string {
	return PropellerKey(p.Diameter, p.Width)
}

// PropellerKey formats a size key using the shortest decimal form of each
// dimension, e.g. "10x5" or "26x8.5".
func PropellerKey(diameter, width float64) string {
	return strconv.FormatFloat(diameter, 'f', -1, 64) + "x" + strconv.FormatFloat(width, 'f', -1, 64)
}

func (p *Propeller) String() string {
	return fmt.Sprintf("Propeller(name=%s, diameter=%g, width=%g)", p.Name, p.Diameter, p.Width)
}

// NormalizePropellerKey parses a "{diameter}x{width}" key and renders it the
// way PropellerKey does, so "15x5.0" and "15x5" name the same propeller.
func NormalizePropellerKey(key string) (string, error) {
	d, w, ok := strings.Cut(strings.ToLower(strings.TrimSpace(key)), "x")
	if !ok {
		return "", fmt.Errorf("propeller key %q is not of the form {diameter}x{width}", key)
	}
	diameter, err := strconv.ParseFloat(d, 64)
	if err != nil {
		return "", fmt.Errorf("propeller key %q: bad diameter: %w", key, err)
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return "", fmt.Errorf("propeller key %q: bad width: %w", key, err)
	}
	return PropellerKey(diameter, width), nil
}

// CanonicalPropellerKey is NormalizePropellerKey for lookups: a key that does
// not parse is returned unchanged and matches nothing.
func CanonicalPropellerKey(key string) string {
	if k, err := NormalizePropellerKey(key); err == nil {
		return k
	}
	return key
}
