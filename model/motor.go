package model

import (
	"fmt"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
)

// Motor record columns, in addition to FieldName.
const (
	FieldVoltage = "voltage"
	FieldKV      = "kv"
	FieldWeight  = "weight"
)

// Motor is a motor tested with one specific propeller. The two throttle
// curves come from the same bench test and share the normalised throttle
// domain [0, 1].
type Motor struct {
	Name    string
	Voltage float64
	KV      float64
	Weight  float64 // bare motor weight, grams

	Propeller         *Propeller
	ThrustVsThrottle  curve.Curve
	CurrentVsThrottle curve.Curve

	cache *hoverCache
}

// NewMotor converts a record plus its already-built propeller and curves
// into a Motor.
func NewMotor(rec Record, propeller *Propeller, thrust, current curve.Curve) (*Motor, error) {
	name, err := rec.String(FieldName)
	if err != nil {
		return nil, err
	}
	component := "motor " + name
	rec = rec.WithComponent(component)

	m := &Motor{
		Name:              name,
		Propeller:         propeller,
		ThrustVsThrottle:  thrust,
		CurrentVsThrottle: current,
		cache:             newHoverCache(HoverCacheSize),
	}
	if m.Voltage, err = rec.Float(FieldVoltage); err != nil {
		return nil, err
	}
	if m.KV, err = rec.Float(FieldKV); err != nil {
		return nil, err
	}
	if m.Weight, err = rec.Float(FieldWeight); err != nil {
		return nil, err
	}
	if propeller == nil {
		return nil, missingField(component, "propeller")
	}
	if thrust == nil {
		return nil, missingField(component, "thrust_vs_throttle")
	}
	if current == nil {
		return nil, missingField(component, "current_vs_throttle")
	}
	if m.Weight < 0 {
		return nil, invalidField(component, FieldWeight, "must be >= 0, got %g", m.Weight)
	}
	return m, nil
}

// WeightTotal is the motor weight plus its propeller's weight.
func (m *Motor) WeightTotal() float64 {
	return m.Weight + m.Propeller.Weight()
}

// HoverThrust evaluates the thrust curve at the supplied hover throttle.
func (m *Motor) HoverThrust(hoverThrottle float64) (float64, error) {
	op, err := m.Hover(hoverThrottle)
	if err != nil {
		return 0, err
	}
	return op.Thrust, nil
}

// HoverCurrent evaluates the current curve at the supplied hover throttle.
func (m *Motor) HoverCurrent(hoverThrottle float64) (float64, error) {
	op, err := m.Hover(hoverThrottle)
	if err != nil {
		return 0, err
	}
	return op.Current, nil
}

// Hover evaluates both throttle curves at one operating point. Results are
// cached per throttle; failures are not cached.
func (m *Motor) Hover(throttle float64) (OperatingPoint, error) {
	if op, ok := m.cache.get(throttle); ok {
		return op, nil
	}
	thrust, err := m.ThrustVsThrottle.Evaluate(throttle)
	if err != nil {
		return OperatingPoint{}, fmt.Errorf("motor %s thrust: %w", m.Name, err)
	}
	current, err := m.CurrentVsThrottle.Evaluate(throttle)
	if err != nil {
		return OperatingPoint{}, fmt.Errorf("motor %s current: %w", m.Name, err)
	}
	op := OperatingPoint{Throttle: throttle, Thrust: thrust, Current: current}
	m.cache.put(op)
	return op, nil
}

// CacheStats reports the motor's hover cache usage.
func (m *Motor) CacheStats() CacheStats {
	return m.cache.stats()
}

func (m *Motor) String() string {
	return fmt.Sprintf("Motor(name=%s, voltage=%g, kv=%g, weight=%g, propeller=%v)",
		m.Name, m.Voltage, m.KV, m.Weight, m.Propeller)
}
