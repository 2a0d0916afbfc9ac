package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/rotorcraft-catalog/catalog"
	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/internal/logging"
	"github.com/signalsfoundry/rotorcraft-catalog/internal/observability"
	"github.com/signalsfoundry/rotorcraft-catalog/model"
	"go.opentelemetry.io/otel/attribute"
)

// Recorder receives build measurements. observability.CatalogCollector
// implements it.
type Recorder interface {
	ObserveBuild(d time.Duration, collisions int, err error)
	SetCatalogCounts(propellers, motors, batteryGroups, frames int)
}

// LoadSummary describes what LoadCatalog fetched and built.
type LoadSummary struct {
	Subsets       []string
	Propellers    int
	Motors        int
	BatteryGroups int
	Frames        int
	Collisions    []catalog.Collision
	TablesFetched int
	CurvesFetched int
	Duration      time.Duration
}

// Option configures LoadCatalog.
type Option func(*loadOptions)

type loadOptions struct {
	log           logging.Logger
	metrics       Recorder
	policy        curve.Policy
	interpolation curve.Interpolation
}

// WithLogger sets the logger. The context logger is used otherwise.
func WithLogger(l logging.Logger) Option {
	return func(o *loadOptions) { o.log = l }
}

// WithMetrics reports build measurements to r.
func WithMetrics(r Recorder) Option {
	return func(o *loadOptions) { o.metrics = r }
}

// WithDefaultPolicy sets the out-of-domain policy for curve references that
// do not name one.
func WithDefaultPolicy(p curve.Policy) Option {
	return func(o *loadOptions) { o.policy = p }
}

// WithDefaultInterpolation sets the interpolant for curve references that
// do not name one.
func WithDefaultInterpolation(i curve.Interpolation) Option {
	return func(o *loadOptions) { o.interpolation = i }
}

// loader holds the state of one LoadCatalog call.
type loader struct {
	src  DataSource
	opts loadOptions
	log  logging.Logger

	curves  map[CurveRef]curve.Curve
	summary *LoadSummary
}

// LoadCatalog fetches every table and curve the manifest references from
// src, builds the component records and returns the validated catalog.
//
// Data errors from all phases are collected and returned joined, so one run
// reports every dangling ID and malformed row. Context cancellation aborts
// immediately.
func LoadCatalog(ctx context.Context, src DataSource, m *Manifest, opts ...Option) (*catalog.Catalog, *LoadSummary, error) {
	if src == nil {
		return nil, nil, fmt.Errorf("LoadCatalog: data source is nil")
	}
	if m == nil {
		return nil, nil, fmt.Errorf("%w: manifest is nil", ErrInvalidManifest)
	}

	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.FromContext(ctx)
	}

	ctx, span := observability.StartSpan(ctx, "catalog.load", "manifest", "",
		attribute.Int("propeller_subsets", len(m.PropellerSubsets)),
		attribute.Int("motors", len(m.Motors)),
		attribute.Int("frames", len(m.Frames)),
	)

	start := time.Now()
	l := &loader{
		src:     src,
		opts:    o,
		log:     o.log.With(logging.String("component", "catalog-loader")),
		curves:  make(map[CurveRef]curve.Curve),
		summary: &LoadSummary{},
	}

	cat, err := l.load(ctx, m)
	l.summary.Duration = time.Since(start)
	if o.metrics != nil {
		o.metrics.ObserveBuild(l.summary.Duration, len(l.summary.Collisions), err)
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, l.summary, err
	}

	s := cat.Stats()
	l.summary.Propellers = s.Propellers
	l.summary.Motors = s.Motors
	l.summary.BatteryGroups = s.BatteryGroups
	l.summary.Frames = s.Frames
	if o.metrics != nil {
		o.metrics.SetCatalogCounts(s.Propellers, s.Motors, s.BatteryGroups, s.Frames)
	}
	return cat, l.summary, nil
}

func (l *loader) load(ctx context.Context, m *Manifest) (*catalog.Catalog, error) {
	b := catalog.NewBuilder(l.log)
	var errs []error

	phases := []struct {
		name string
		run  func(context.Context, *Manifest, *catalog.Builder) []error
	}{
		{"catalog.load.propellers", l.loadPropellers},
		{"catalog.load.motors", l.loadMotors},
		{"catalog.load.batteries", l.loadBatteries},
		{"catalog.load.frames", l.loadFrames},
	}
	for _, p := range phases {
		pctx, span := observability.StartSpan(ctx, p.name, "", "")
		phaseErrs := p.run(pctx, m, b)
		observability.EndSpan(span, errors.Join(phaseErrs...))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		errs = append(errs, phaseErrs...)
	}

	if err := errors.Join(errs...); err != nil {
		l.log.Error(ctx, "catalog data rejected", logging.Int("errors", len(errs)), logging.Err(err))
		return nil, err
	}

	bctx, span := observability.StartSpan(ctx, "catalog.build", "", "")
	cat, err := b.Build(bctx)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	l.summary.Collisions = cat.Collisions()
	return cat, nil
}

func (l *loader) loadPropellers(ctx context.Context, m *Manifest, b *catalog.Builder) []error {
	var errs []error
	for _, ref := range m.PropellerSubsets {
		recs, err := l.records(ctx, ref.Table, "propeller")
		if err != nil {
			errs = append(errs, fmt.Errorf("propeller subset %q: %w", ref.Name, err))
			continue
		}
		props := make([]*model.Propeller, 0, len(recs))
		for _, rec := range recs {
			p, err := model.NewPropeller(rec)
			if err != nil {
				errs = append(errs, fmt.Errorf("propeller subset %q: %w", ref.Name, err))
				continue
			}
			props = append(props, p)
		}
		b.AddPropellerSubset(ref.Name, props...)
		l.summary.Subsets = append(l.summary.Subsets, ref.Name)
		l.log.Debug(ctx, "propeller subset loaded",
			logging.String("subset", ref.Name),
			logging.String("table", ref.Table),
			logging.Int("propellers", len(props)),
		)
	}
	return errs
}

func (l *loader) loadMotors(ctx context.Context, m *Manifest, b *catalog.Builder) []error {
	var errs []error
	for _, ref := range m.Motors {
		thrust, err := l.curve(ctx, ref.Thrust)
		if err != nil {
			errs = append(errs, fmt.Errorf("motor %q thrust_vs_throttle: %w", ref.Name, err))
		}
		current, cerr := l.curve(ctx, ref.Current)
		if cerr != nil {
			errs = append(errs, fmt.Errorf("motor %q current_vs_throttle: %w", ref.Name, cerr))
		}
		if err != nil || cerr != nil {
			continue
		}
		b.AddMotor(catalog.MotorSpec{
			Record:            ref.Record(),
			PropellerKey:      ref.Propeller,
			ThrustVsThrottle:  thrust,
			CurrentVsThrottle: current,
		})
	}
	return errs
}

func (l *loader) loadBatteries(ctx context.Context, m *Manifest, b *catalog.Builder) []error {
	var errs []error
	families := make([]string, 0, len(m.BatteryFamilies))
	for f := range m.BatteryFamilies {
		families = append(families, f)
	}
	sort.Strings(families)

	for _, family := range families {
		groups := m.BatteryFamilies[family]
		labels := make([]string, 0, len(groups))
		for label := range groups {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		for _, label := range labels {
			ref := groups[label]
			owner := fmt.Sprintf("battery group %s/%s", family, label)

			recs, err := l.records(ctx, ref.Table, "battery")
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", owner, err))
				continue
			}
			batteries := make([]*model.Battery, 0, len(recs))
			for _, rec := range recs {
				bat, err := model.NewBattery(rec, 1)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", owner, err))
					continue
				}
				batteries = append(batteries, bat)
			}
			weight, err := l.curve(ctx, ref.WeightVsCapacity)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s weight_vs_capacity: %w", owner, err))
				continue
			}
			g, err := model.NewBatteryGroup(ref.CRate, ref.NCells, batteries, weight)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", owner, err))
				continue
			}
			b.AddBatteryGroup(family, g)
		}
	}
	return errs
}

func (l *loader) loadFrames(ctx context.Context, m *Manifest, b *catalog.Builder) []error {
	var errs []error
	for _, ref := range m.Frames {
		var fc model.FrameCurves
		dst := []*curve.Curve{
			&fc.Mass, &fc.Base, &fc.ArmWidth, &fc.PayloadHeight,
			&fc.BottomCompartmentHeight, &fc.TopCompartmentHeight, &fc.PlateThickness,
		}
		failed := false
		for i, c := range ref.curves() {
			got, err := l.curve(ctx, c.ref)
			if err != nil {
				errs = append(errs, fmt.Errorf("frame %q %s: %w", ref.Name, c.name, err))
				failed = true
				continue
			}
			*dst[i] = got
		}
		if failed {
			continue
		}
		f, err := model.NewQuadFrame(ref.Name, fc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.AddFrame(f)
	}
	return errs
}

// records fetches a table and converts its rows.
func (l *loader) records(ctx context.Context, id, component string) ([]model.Record, error) {
	t, err := l.src.Table(ctx, id)
	if err != nil {
		return nil, sourceError(err)
	}
	l.summary.TablesFetched++
	return t.Records(component)
}

// curve fetches and builds a curve. Each distinct reference is fetched once
// per load.
func (l *loader) curve(ctx context.Context, ref CurveRef) (curve.Curve, error) {
	if c, ok := l.curves[ref]; ok {
		return c, nil
	}

	policy := l.opts.policy
	if ref.Policy != "" {
		p, err := curve.ParsePolicy(ref.Policy)
		if err != nil {
			return nil, fmt.Errorf("%w: curve %q: %v", ErrInvalidManifest, ref.ID, err)
		}
		policy = p
	}
	interp := l.opts.interpolation
	if ref.Interpolation != "" {
		i, err := curve.ParseInterpolation(ref.Interpolation)
		if err != nil {
			return nil, fmt.Errorf("%w: curve %q: %v", ErrInvalidManifest, ref.ID, err)
		}
		interp = i
	}

	pts, err := l.src.Curve(ctx, ref.ID)
	if err != nil {
		return nil, sourceError(err)
	}
	l.summary.CurvesFetched++

	c, err := curve.New(pts, curve.WithID(ref.ID), curve.WithPolicy(policy), curve.WithInterpolation(interp))
	if err != nil {
		return nil, err
	}
	l.curves[ref] = c
	return c, nil
}

// sourceError marks missing source objects as catalog lookup failures so
// they classify as integrity faults.
func sourceError(err error) error {
	if errors.Is(err, ErrSourceNotFound) && !errors.Is(err, catalog.ErrLookup) {
		return fmt.Errorf("%w: %w", catalog.ErrLookup, err)
	}
	return err
}
