package core

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/model"
	"gopkg.in/yaml.v3"
)

// ErrInvalidManifest is returned when a manifest is structurally wrong.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest names the data that make up a catalog: which tables hold the
// propeller subsets and battery SKUs, and which curves belong to each motor,
// battery group and frame. JSON manifests decode too.
type Manifest struct {
	PropellerSubsets []SubsetRef                           `yaml:"propeller_subsets"`
	Motors           []MotorRef                            `yaml:"motors"`
	BatteryFamilies  map[string]map[string]BatteryGroupRef `yaml:"battery_families"`
	Frames           []FrameRef                            `yaml:"frames"`
}

// SubsetRef points at a propeller table. Subsets merge in manifest order.
type SubsetRef struct {
	Name  string `yaml:"name"`
	Table string `yaml:"table"`
}

// UnmarshalYAML accepts either a bare table ID or a mapping.
func (s *SubsetRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.Table = value.Value
		s.Name = value.Value
		return nil
	}
	type plain SubsetRef
	return value.Decode((*plain)(s))
}

// CurveRef points at a curve and optionally overrides how it is evaluated.
type CurveRef struct {
	ID            string `yaml:"id"`
	Policy        string `yaml:"policy,omitempty"`
	Interpolation string `yaml:"interpolation,omitempty"`
}

// UnmarshalYAML accepts either a bare curve ID or a mapping.
func (c *CurveRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.ID = value.Value
		return nil
	}
	type plain CurveRef
	return value.Decode((*plain)(c))
}

func (c CurveRef) validate(owner string) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: %s: curve id is empty", ErrInvalidManifest, owner)
	}
	if _, err := curve.ParsePolicy(c.Policy); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidManifest, owner, err)
	}
	if _, err := curve.ParseInterpolation(c.Interpolation); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidManifest, owner, err)
	}
	return nil
}

// MotorRef describes one motor/propeller test combination.
type MotorRef struct {
	Name      string   `yaml:"name"`
	Voltage   float64  `yaml:"voltage"`
	KV        float64  `yaml:"kv"`
	Weight    float64  `yaml:"weight"`
	Propeller string   `yaml:"propeller"`
	Thrust    CurveRef `yaml:"thrust_vs_throttle"`
	Current   CurveRef `yaml:"current_vs_throttle"`
}

// Record returns the motor's scalar fields as a record.
func (m MotorRef) Record() model.Record {
	return model.NewNamedRecord("motor", map[string]any{
		model.FieldName:    m.Name,
		model.FieldVoltage: m.Voltage,
		model.FieldKV:      m.KV,
		model.FieldWeight:  m.Weight,
	})
}

// BatteryGroupRef describes one battery group of a pack family. The map key
// it is filed under must match its cell label.
type BatteryGroupRef struct {
	CRate            float64  `yaml:"c_rate"`
	NCells           int      `yaml:"n_cells"`
	Table            string   `yaml:"table"`
	WeightVsCapacity CurveRef `yaml:"weight_vs_capacity"`
}

// FrameRef names the seven curves of a parametric quad frame.
type FrameRef struct {
	Name                    string   `yaml:"name"`
	Mass                    CurveRef `yaml:"mass_vs_propd"`
	Base                    CurveRef `yaml:"base_vs_propd"`
	ArmWidth                CurveRef `yaml:"arm_width_vs_propd"`
	PayloadHeight           CurveRef `yaml:"payload_height_vs_propd"`
	BottomCompartmentHeight CurveRef `yaml:"bottom_compartment_height_vs_propd"`
	TopCompartmentHeight    CurveRef `yaml:"top_compartment_height_vs_propd"`
	PlateThickness          CurveRef `yaml:"plate_thickness_vs_propd"`
}

func (f FrameRef) curves() []struct {
	name string
	ref  CurveRef
} {
	return []struct {
		name string
		ref  CurveRef
	}{
		{"mass_vs_propd", f.Mass},
		{"base_vs_propd", f.Base},
		{"arm_width_vs_propd", f.ArmWidth},
		{"payload_height_vs_propd", f.PayloadHeight},
		{"bottom_compartment_height_vs_propd", f.BottomCompartmentHeight},
		{"top_compartment_height_vs_propd", f.TopCompartmentHeight},
		{"plate_thickness_vs_propd", f.PlateThickness},
	}
}

// DecodeManifest reads a YAML or JSON manifest and validates it.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
		}
		return nil, fmt.Errorf("%w: decode failed: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every reference carries an ID and that propeller
// keys and cell labels are well formed. Propeller keys are normalised in
// place, so "15x5.0" and "15x5" refer to the same propeller.
func (m *Manifest) Validate() error {
	var errs []error

	for i, s := range m.PropellerSubsets {
		if strings.TrimSpace(s.Table) == "" {
			errs = append(errs, fmt.Errorf("%w: propeller subset %d: table is empty", ErrInvalidManifest, i))
		}
		if s.Name == "" {
			m.PropellerSubsets[i].Name = s.Table
		}
	}

	for i := range m.Motors {
		mr := &m.Motors[i]
		owner := fmt.Sprintf("motor %d (%s)", i, mr.Name)
		if mr.Name == "" {
			errs = append(errs, fmt.Errorf("%w: motor %d: name is empty", ErrInvalidManifest, i))
		}
		key, err := model.NormalizePropellerKey(mr.Propeller)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, owner, err))
		} else {
			mr.Propeller = key
		}
		for _, ref := range []CurveRef{mr.Thrust, mr.Current} {
			if err := ref.validate(owner); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for family, groups := range m.BatteryFamilies {
		for label, g := range groups {
			owner := fmt.Sprintf("battery group %s/%s", family, label)
			if g.NCells < 1 {
				errs = append(errs, fmt.Errorf("%w: %s: n_cells must be >= 1", ErrInvalidManifest, owner))
			} else if want := model.CellLabel(g.NCells); label != want {
				errs = append(errs, fmt.Errorf("%w: %s: label does not match n_cells (%s)", ErrInvalidManifest, owner, want))
			}
			if strings.TrimSpace(g.Table) == "" {
				errs = append(errs, fmt.Errorf("%w: %s: table is empty", ErrInvalidManifest, owner))
			}
			if err := g.WeightVsCapacity.validate(owner); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for i, f := range m.Frames {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("%w: frame %d: name is empty", ErrInvalidManifest, i))
		}
		for _, c := range f.curves() {
			if err := c.ref.validate(fmt.Sprintf("frame %s %s", f.Name, c.name)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
