// Package catalog aggregates component records into the lookup structures
// used by vehicle design code.
//
// A Catalog is assembled with a Builder, validated eagerly in Build, and is
// read-only afterwards, so it can be shared between goroutines without
// locking.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/internal/logging"
	"github.com/signalsfoundry/rotorcraft-catalog/model"
)

// DefaultFrame is the name used for a catalog's single quad frame.
const DefaultFrame = "quad"

// MotorSpec describes a motor before its propeller reference is resolved.
type MotorSpec struct {
	Record            model.Record
	PropellerKey      string
	ThrustVsThrottle  curve.Curve
	CurrentVsThrottle curve.Curve
}

// Builder collects catalog inputs. It is not safe for concurrent use.
type Builder struct {
	log logging.Logger

	subsets []PropellerSubset
	motors  []MotorSpec
	groups  []familyGroup
	frames  []*model.QuadFrame
}

type familyGroup struct {
	family string
	group  *model.BatteryGroup
}

// NewBuilder returns an empty builder. A nil logger discards output.
func NewBuilder(log logging.Logger) *Builder {
	if log == nil {
		log = logging.Noop()
	}
	return &Builder{log: log}
}

// AddPropellerSubset appends a subset. Merge order is call order.
func (b *Builder) AddPropellerSubset(name string, propellers ...*model.Propeller) *Builder {
	b.subsets = append(b.subsets, PropellerSubset{Name: name, Propellers: propellers})
	return b
}

// AddMotor appends a motor. Catalog motor order is call order.
func (b *Builder) AddMotor(spec MotorSpec) *Builder {
	b.motors = append(b.motors, spec)
	return b
}

// AddBatteryGroup files group under family and the group's cell label.
func (b *Builder) AddBatteryGroup(family string, group *model.BatteryGroup) *Builder {
	b.groups = append(b.groups, familyGroup{family: family, group: group})
	return b
}

// AddFrame registers a quad frame by its name.
func (b *Builder) AddFrame(frame *model.QuadFrame) *Builder {
	b.frames = append(b.frames, frame)
	return b
}

// Build merges the propeller subsets, resolves every motor's propeller key
// and indexes battery groups and frames. All integrity failures found are
// returned together.
func (b *Builder) Build(ctx context.Context) (*Catalog, error) {
	propellers, collisions := MergePropellers(b.subsets...)
	for _, c := range collisions {
		b.log.Warn(ctx, "propeller key collision; later subset shadows earlier",
			logging.String("key", c.Key),
			logging.String("shadowed_subset", c.Shadowed),
			logging.String("winning_subset", c.Winner),
		)
	}

	var errs []error
	cat := &Catalog{
		propellers:    propellers,
		motorsByName:  make(map[string]*model.Motor, len(b.motors)),
		batteryGroups: make(map[string]map[string]*model.BatteryGroup),
		frames:        make(map[string]*model.QuadFrame, len(b.frames)),
		collisions:    collisions,
	}

	for i, spec := range b.motors {
		prop, ok := propellers[model.CanonicalPropellerKey(spec.PropellerKey)]
		if !ok {
			name, _ := spec.Record.String(model.FieldName)
			errs = append(errs, fmt.Errorf("%w: motor %d (%s) references propeller %q not present in any subset",
				ErrLookup, i, name, spec.PropellerKey))
			continue
		}
		m, err := model.NewMotor(spec.Record, prop, spec.ThrustVsThrottle, spec.CurrentVsThrottle)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := cat.motorsByName[m.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: motor %q", ErrDuplicate, m.Name))
			continue
		}
		cat.motors = append(cat.motors, m)
		cat.motorsByName[m.Name] = m
	}

	for _, fg := range b.groups {
		if fg.group == nil {
			errs = append(errs, fmt.Errorf("%w: family %q battery group", model.ErrMissingField, fg.family))
			continue
		}
		labels, ok := cat.batteryGroups[fg.family]
		if !ok {
			labels = make(map[string]*model.BatteryGroup)
			cat.batteryGroups[fg.family] = labels
		}
		label := fg.group.Label()
		if _, dup := labels[label]; dup {
			errs = append(errs, fmt.Errorf("%w: battery group %s/%s", ErrDuplicate, fg.family, label))
			continue
		}
		labels[label] = fg.group
	}

	for _, f := range b.frames {
		if f == nil {
			continue
		}
		if _, dup := cat.frames[f.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: frame %q", ErrDuplicate, f.Name))
			continue
		}
		cat.frames[f.Name] = f
	}

	if err := errors.Join(errs...); err != nil {
		b.log.Error(ctx, "catalog build failed", logging.Int("errors", len(errs)), logging.Err(err))
		return nil, err
	}

	s := cat.Stats()
	b.log.Info(ctx, "catalog built",
		logging.Int("propellers", s.Propellers),
		logging.Int("motors", s.Motors),
		logging.Int("battery_groups", s.BatteryGroups),
		logging.Int("frames", s.Frames),
		logging.Int("collisions", s.Collisions),
	)
	return cat, nil
}

// Catalog is the validated, read-only component catalog.
type Catalog struct {
	propellers    map[string]*model.Propeller
	motors        []*model.Motor
	motorsByName  map[string]*model.Motor
	batteryGroups map[string]map[string]*model.BatteryGroup
	frames        map[string]*model.QuadFrame
	collisions    []Collision
}

// Stats summarises catalog contents.
type Stats struct {
	Propellers    int
	Motors        int
	BatteryGroups int
	Frames        int
	Collisions    int
}

// Stats returns catalog counts.
func (c *Catalog) Stats() Stats {
	groups := 0
	for _, labels := range c.batteryGroups {
		groups += len(labels)
	}
	return Stats{
		Propellers:    len(c.propellers),
		Motors:        len(c.motors),
		BatteryGroups: groups,
		Frames:        len(c.frames),
		Collisions:    len(c.collisions),
	}
}

// Propeller returns the propeller for a "{diameter}x{width}" key. "15x5.0"
// and "15x5" are the same key.
func (c *Catalog) Propeller(key string) (*model.Propeller, error) {
	p, ok := c.propellers[model.CanonicalPropellerKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: propeller %q", ErrNotFound, key)
	}
	return p, nil
}

// PropellerKeys returns all propeller keys, sorted.
func (c *Catalog) PropellerKeys() []string {
	keys := make([]string, 0, len(c.propellers))
	for k := range c.propellers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Motors returns the motors in the order they were added.
func (c *Catalog) Motors() []*model.Motor {
	return append([]*model.Motor(nil), c.motors...)
}

// Motor returns a motor by name.
func (c *Catalog) Motor(name string) (*model.Motor, error) {
	m, ok := c.motorsByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: motor %q", ErrNotFound, name)
	}
	return m, nil
}

// MotorsForPropeller returns the motors tested with the keyed propeller,
// keeping catalog order.
func (c *Catalog) MotorsForPropeller(key string) []*model.Motor {
	key = model.CanonicalPropellerKey(key)
	var out []*model.Motor
	for _, m := range c.motors {
		if m.Propeller.Key() == key {
			out = append(out, m)
		}
	}
	return out
}

// BatteryGroup returns the group for a pack family and cell label ("3S").
func (c *Catalog) BatteryGroup(family, label string) (*model.BatteryGroup, error) {
	labels, ok := c.batteryGroups[family]
	if !ok {
		return nil, fmt.Errorf("%w: battery family %q", ErrNotFound, family)
	}
	g, ok := labels[label]
	if !ok {
		return nil, fmt.Errorf("%w: battery group %s/%s", ErrNotFound, family, label)
	}
	return g, nil
}

// BatteryFamilies returns the pack family names, sorted.
func (c *Catalog) BatteryFamilies() []string {
	out := make([]string, 0, len(c.batteryGroups))
	for f := range c.batteryGroups {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// BatteryLabels returns a family's cell labels ordered by cell count.
func (c *Catalog) BatteryLabels(family string) []string {
	labels := c.batteryGroups[family]
	groups := make([]*model.BatteryGroup, 0, len(labels))
	for _, g := range labels {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].NCells < groups[j].NCells })
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Label()
	}
	return out
}

// Frame returns a quad frame by name.
func (c *Catalog) Frame(name string) (*model.QuadFrame, error) {
	f, ok := c.frames[name]
	if !ok {
		return nil, fmt.Errorf("%w: frame %q", ErrNotFound, name)
	}
	return f, nil
}

// Frames returns frame names, sorted.
func (c *Catalog) Frames() []string {
	out := make([]string, 0, len(c.frames))
	for n := range c.frames {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Collisions returns the propeller keys shadowed during the merge.
func (c *Catalog) Collisions() []Collision {
	return append([]Collision(nil), c.collisions...)
}

// HoverCacheStats sums the hover operating-point caches of every motor.
func (c *Catalog) HoverCacheStats() model.CacheStats {
	var total model.CacheStats
	for _, m := range c.motors {
		s := m.CacheStats()
		total.Entries += s.Entries
		total.Hits += s.Hits
		total.Misses += s.Misses
	}
	return total
}
