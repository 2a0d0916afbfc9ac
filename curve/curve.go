// Package curve turns sampled measurements y = f(x) into evaluable functions.
//
// A curve is built once from an ordered set of samples and is immutable
// afterwards. Interpolation between samples is delegated to gonum's interp
// package; behaviour outside the sampled domain is governed by a Policy that
// is fixed at construction time.
package curve

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/interp"
)

var (
	// ErrMalformedCurveData is returned when samples cannot form a curve.
	ErrMalformedCurveData = errors.New("malformed curve data")
	// ErrOutOfDomain is returned when x falls outside the sampled domain and
	// the curve policy forbids extrapolation.
	ErrOutOfDomain = errors.New("out of domain")
)

// Curve is the capability components depend on: a deterministic, side-effect
// free function of one variable.
type Curve interface {
	Evaluate(x float64) (float64, error)
	Domain() (lo, hi float64)
}

// Point is a single (x, y) sample.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Policy controls evaluation outside [lo, hi].
type Policy int

const (
	// FailOutsideDomain rejects x outside the sampled range with ErrOutOfDomain.
	FailOutsideDomain Policy = iota
	// Extrapolate extends the boundary segment linearly.
	Extrapolate
	// Clamp returns the y of the nearest boundary sample.
	Clamp
)

func (p Policy) String() string {
	switch p {
	case FailOutsideDomain:
		return "fail"
	case Extrapolate:
		return "extrapolate"
	case Clamp:
		return "clamp"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a manifest string onto a Policy. The empty string selects
// FailOutsideDomain.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "fail-outside-domain", "strict":
		return FailOutsideDomain, nil
	case "extrapolate", "linear-extrapolate":
		return Extrapolate, nil
	case "clamp":
		return Clamp, nil
	default:
		return FailOutsideDomain, fmt.Errorf("unknown curve policy %q", s)
	}
}

// Interpolation selects the interpolant used between samples.
type Interpolation int

const (
	// MonotoneCubic is a Fritsch-Butland piecewise cubic. It never overshoots,
	// so monotonic samples give a monotonic curve.
	MonotoneCubic Interpolation = iota
	// Linear is piecewise linear.
	Linear
)

func (i Interpolation) String() string {
	switch i {
	case MonotoneCubic:
		return "monotone-cubic"
	case Linear:
		return "linear"
	default:
		return fmt.Sprintf("Interpolation(%d)", int(i))
	}
}

// ParseInterpolation maps a manifest string onto an Interpolation. The empty
// string selects MonotoneCubic.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monotone-cubic", "monotone", "fritsch-butland":
		return MonotoneCubic, nil
	case "linear", "piecewise-linear":
		return Linear, nil
	default:
		return MonotoneCubic, fmt.Errorf("unknown curve interpolation %q", s)
	}
}

// Option configures a curve at construction.
type Option func(*options)

type options struct {
	id     string
	policy Policy
	interp Interpolation
}

// WithID labels the curve in error messages.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithPolicy sets the out-of-domain policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithInterpolation sets the interpolant.
func WithInterpolation(i Interpolation) Option {
	return func(o *options) { o.interp = i }
}

// Sampled is a Curve reconstructed from discrete samples.
type Sampled struct {
	id     string
	xs     []float64
	ys     []float64
	policy Policy
	interp Interpolation

	predictor interp.Predictor
}

var _ Curve = (*Sampled)(nil)

// New validates points and fits the configured interpolant. Points must be
// finite, at least two, and strictly increasing in x.
func New(points []Point, opts ...Option) (*Sampled, error) {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}
	return fromOwnedXY(xs, ys, opts)
}

// FromXY is New for parallel slices. The slices are copied.
func FromXY(xs, ys []float64, opts ...Option) (*Sampled, error) {
	if len(xs) != len(ys) {
		o := buildOptions(opts)
		return nil, fmt.Errorf("%w: curve %q has %d x values and %d y values", ErrMalformedCurveData, o.id, len(xs), len(ys))
	}
	return fromOwnedXY(append([]float64(nil), xs...), append([]float64(nil), ys...), opts)
}

func buildOptions(opts []Option) options {
	o := options{policy: FailOutsideDomain, interp: MonotoneCubic}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func fromOwnedXY(xs, ys []float64, opts []Option) (*Sampled, error) {
	o := buildOptions(opts)
	if err := validate(o.id, xs, ys); err != nil {
		return nil, err
	}

	s := &Sampled{
		id:     o.id,
		xs:     xs,
		ys:     ys,
		policy: o.policy,
		interp: o.interp,
	}

	// Fritsch-Butland needs a third point to estimate slopes.
	if o.interp == MonotoneCubic && len(xs) >= 3 {
		fb := &interp.FritschButland{}
		if err := fb.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("%w: curve %q: %v", ErrMalformedCurveData, o.id, err)
		}
		s.predictor = fb
	} else {
		pl := &interp.PiecewiseLinear{}
		if err := pl.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("%w: curve %q: %v", ErrMalformedCurveData, o.id, err)
		}
		s.predictor = pl
	}
	return s, nil
}

func validate(id string, xs, ys []float64) error {
	if len(xs) < 2 {
		return fmt.Errorf("%w: curve %q needs at least 2 samples, got %d", ErrMalformedCurveData, id, len(xs))
	}
	for i := range xs {
		if !finite(xs[i]) || !finite(ys[i]) {
			return fmt.Errorf("%w: curve %q sample %d is not finite", ErrMalformedCurveData, id, i)
		}
		if i > 0 && xs[i] <= xs[i-1] {
			return fmt.Errorf("%w: curve %q x values not strictly increasing at sample %d (%g after %g)",
				ErrMalformedCurveData, id, i, xs[i], xs[i-1])
		}
		if i > 0 && !finite((ys[i]-ys[i-1])/(xs[i]-xs[i-1])) {
			return fmt.Errorf("%w: curve %q slope between samples %d and %d is not finite",
				ErrMalformedCurveData, id, i-1, i)
		}
	}
	if span := xs[len(xs)-1] - xs[0]; !finite(span) {
		return fmt.Errorf("%w: curve %q x span [%g, %g] overflows", ErrMalformedCurveData, id, xs[0], xs[len(xs)-1])
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ID returns the label given with WithID.
func (s *Sampled) ID() string { return s.id }

// Policy returns the out-of-domain policy.
func (s *Sampled) Policy() Policy { return s.policy }

// Interpolation returns the interpolant kind.
func (s *Sampled) Interpolation() Interpolation { return s.interp }

// Domain returns the sampled x range.
func (s *Sampled) Domain() (lo, hi float64) {
	return s.xs[0], s.xs[len(s.xs)-1]
}

// Samples returns a copy of the samples.
func (s *Sampled) Samples() []Point {
	out := make([]Point, len(s.xs))
	for i := range s.xs {
		out[i] = Point{X: s.xs[i], Y: s.ys[i]}
	}
	return out
}

// Evaluate returns f(x). Inside the domain it uses the fitted interpolant;
// outside it applies the curve policy.
func (s *Sampled) Evaluate(x float64) (float64, error) {
	if !finite(x) {
		return 0, fmt.Errorf("%w: curve %q evaluated at %g", ErrOutOfDomain, s.id, x)
	}

	lo, hi := s.Domain()
	if x >= lo && x <= hi {
		return s.predictor.Predict(x), nil
	}

	switch s.policy {
	case Extrapolate:
		n := len(s.xs)
		if x < lo {
			return lerp(s.xs[0], s.ys[0], s.xs[1], s.ys[1], x), nil
		}
		return lerp(s.xs[n-2], s.ys[n-2], s.xs[n-1], s.ys[n-1], x), nil
	case Clamp:
		if x < lo {
			return s.ys[0], nil
		}
		return s.ys[len(s.ys)-1], nil
	default:
		return 0, fmt.Errorf("%w: curve %q evaluated at %g, domain is [%g, %g]", ErrOutOfDomain, s.id, x, lo, hi)
	}
}

func lerp(x0, y0, x1, y1, x float64) float64 {
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

func (s *Sampled) String() string {
	lo, hi := s.Domain()
	return fmt.Sprintf("Curve(id=%s, samples=%d, domain=[%g, %g], interp=%s, policy=%s)",
		s.id, len(s.xs), lo, hi, s.interp, s.policy)
}
