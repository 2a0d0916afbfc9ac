package model

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
)

// MassToWeight converts the frame mass curve output (kg) to grams.
const MassToWeight = 1000.0

// FrameCurves holds one curve per frame dimension, each a function of
// propeller diameter.
type FrameCurves struct {
	Mass                    curve.Curve
	Base                    curve.Curve
	ArmWidth                curve.Curve
	PayloadHeight           curve.Curve
	BottomCompartmentHeight curve.Curve
	TopCompartmentHeight    curve.Curve
	PlateThickness          curve.Curve
}

func (fc FrameCurves) named() []struct {
	name string
	c    curve.Curve
} {
	return []struct {
		name string
		c    curve.Curve
	}{
		{"mass_vs_propd", fc.Mass},
		{"base_vs_propd", fc.Base},
		{"arm_width_vs_propd", fc.ArmWidth},
		{"payload_height_vs_propd", fc.PayloadHeight},
		{"bottom_compartment_height_vs_propd", fc.BottomCompartmentHeight},
		{"top_compartment_height_vs_propd", fc.TopCompartmentHeight},
		{"plate_thickness_vs_propd", fc.PlateThickness},
	}
}

// QuadFrame is a parametric airframe whose dimensions scale with propeller
// diameter. It holds only curves and is safe for concurrent use.
type QuadFrame struct {
	Name   string
	curves FrameCurves
}

// NewQuadFrame requires all seven curves.
func NewQuadFrame(name string, curves FrameCurves) (*QuadFrame, error) {
	for _, nc := range curves.named() {
		if nc.c == nil {
			return nil, missingField("quad frame "+name, nc.name)
		}
	}
	return &QuadFrame{Name: name, curves: curves}, nil
}

// Curves returns the frame's dimension curves.
func (f *QuadFrame) Curves() FrameCurves { return f.curves }

// Select resolves every dimension for one propeller diameter. It does not
// modify the frame.
func (f *QuadFrame) Select(propellerDiameter float64) (ResolvedFrame, error) {
	if propellerDiameter <= 0 || math.IsNaN(propellerDiameter) || math.IsInf(propellerDiameter, 0) {
		return ResolvedFrame{}, fmt.Errorf("%w: frame %s propeller diameter must be positive, got %g",
			curve.ErrOutOfDomain, f.Name, propellerDiameter)
	}

	var vals [7]float64
	for i, nc := range f.curves.named() {
		v, err := nc.c.Evaluate(propellerDiameter)
		if err != nil {
			return ResolvedFrame{}, fmt.Errorf("frame %s %s: %w", f.Name, nc.name, err)
		}
		vals[i] = v
	}

	return ResolvedFrame{
		Frame:                   f.Name,
		PropellerDiameter:       propellerDiameter,
		Weight:                  vals[0] * MassToWeight,
		Base:                    vals[1],
		ArmWidth:                vals[2],
		PayloadHeight:           vals[3],
		BottomCompartmentHeight: vals[4],
		TopCompartmentHeight:    vals[5],
		PlateThickness:          vals[6],
	}, nil
}

// ResolvedFrame is a frame snapshot for one propeller diameter.
type ResolvedFrame struct {
	Frame                   string
	PropellerDiameter       float64
	Base                    float64
	Weight                  float64 // grams
	ArmWidth                float64
	PayloadHeight           float64
	BottomCompartmentHeight float64
	TopCompartmentHeight    float64
	PlateThickness          float64
}

func (r ResolvedFrame) String() string {
	return fmt.Sprintf("QuadFrame(base=%g, weight=%g, arm_width=%g, payload_height=%g, "+
		"bottom_compartment_height=%g, top_compartment_height=%g, plate_thickness=%g)",
		r.Base, r.Weight, r.ArmWidth, r.PayloadHeight,
		r.BottomCompartmentHeight, r.TopCompartmentHeight, r.PlateThickness)
}

// FrameSelection tracks the selected snapshot of one frame for a single
// caller. It starts unresolved; Select replaces the snapshot.
// FrameSelection is not safe for concurrent use; share the QuadFrame and give
// each caller its own selection.
type FrameSelection struct {
	frame    *QuadFrame
	resolved *ResolvedFrame
}

// NewFrameSelection returns an unresolved selection over frame.
func NewFrameSelection(frame *QuadFrame) *FrameSelection {
	return &FrameSelection{frame: frame}
}

// Select resolves the frame for diameter and returns the selection. On error
// the previous snapshot, if any, is kept.
func (s *FrameSelection) Select(propellerDiameter float64) (*FrameSelection, error) {
	r, err := s.frame.Select(propellerDiameter)
	if err != nil {
		return s, err
	}
	s.resolved = &r
	return s, nil
}

// IsResolved reports whether Select has succeeded at least once.
func (s *FrameSelection) IsResolved() bool { return s.resolved != nil }

// Resolved returns the current snapshot or ErrInvalidState.
func (s *FrameSelection) Resolved() (ResolvedFrame, error) {
	if s.resolved == nil {
		return ResolvedFrame{}, fmt.Errorf("%w: frame %s has not been selected", ErrInvalidState, s.frame.Name)
	}
	return *s.resolved, nil
}

func (s *FrameSelection) field(get func(ResolvedFrame) float64) (float64, error) {
	r, err := s.Resolved()
	if err != nil {
		return 0, err
	}
	return get(r), nil
}

// Base returns the selected base size or ErrInvalidState.
func (s *FrameSelection) Base() (float64, error) {
	return s.field(func(r ResolvedFrame) float64 { return r.Base })
}

// Weight returns the selected frame mass or ErrInvalidState.
func (s *FrameSelection) Weight() (float64, error) {
	return s.field(func(r ResolvedFrame) float64 { return r.Weight })
}

// ArmWidth returns the selected arm width or ErrInvalidState.
func (s *FrameSelection) ArmWidth() (float64, error) {
	return s.field(func(r ResolvedFrame) float64 { return r.ArmWidth })
}

// PayloadHeight returns the selected payload bay height or ErrInvalidState.
func (s *FrameSelection) PayloadHeight() (float64, error) {
	return s.field(func(r ResolvedFrame) float64 { return r.PayloadHeight })
}

// BottomCompartmentHeight returns the selected bottom compartment height or ErrInvalidState.
func (s *FrameSelection) BottomCompartmentHeight() (float64, error) {
	return s.field(func(r ResolvedFrame) float64 { return r.BottomCompartmentHeight })
}

// TopCompartmentHeight returns the selected top compartment height or ErrInvalidState.
func (s *FrameSelection) TopCompartmentHeight() (float64, error) {
	return s.field(func(r ResolvedFrame) float64 { return r.TopCompartmentHeight })
}

// PlateThickness returns the selected plate thickness or ErrInvalidState.
func (s *FrameSelection) PlateThickness() (float64, error) {
	return s.field(func(r ResolvedFrame) float64 { return r.PlateThickness })
}
