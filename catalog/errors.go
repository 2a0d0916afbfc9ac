package catalog

import (
	"errors"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/model"
)

var (
	// ErrLookup is returned by Build when a component references another
	// component that is not in the catalog.
	ErrLookup = errors.New("lookup error")
	// ErrNotFound is returned by catalog queries for an unknown name or key.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when two components claim the same identity.
	ErrDuplicate = errors.New("duplicate component")
)

// Fault separates data-integrity failures, which mean the catalog input is
// wrong, from usage failures that callers are expected to handle during
// normal design evaluation.
type Fault int

const (
	FaultNone Fault = iota
	// FaultIntegrity covers construction-time failures: malformed curves,
	// missing or invalid fields, dangling references, duplicates.
	FaultIntegrity
	// FaultUsage covers accessor-time failures: out-of-domain evaluation,
	// reading an unresolved frame and querying an unknown component.
	FaultUsage
	// FaultUnknown is any other error.
	FaultUnknown
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultIntegrity:
		return "integrity"
	case FaultUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Classify reports which class err belongs to. A joined error containing any
// integrity failure is an integrity fault.
func Classify(err error) Fault {
	switch {
	case err == nil:
		return FaultNone
	case errors.Is(err, curve.ErrMalformedCurveData),
		errors.Is(err, model.ErrMissingField),
		errors.Is(err, model.ErrFieldType),
		errors.Is(err, model.ErrFieldCount),
		errors.Is(err, model.ErrInvalidField),
		errors.Is(err, ErrLookup),
		errors.Is(err, ErrDuplicate):
		return FaultIntegrity
	case errors.Is(err, curve.ErrOutOfDomain),
		errors.Is(err, model.ErrInvalidState),
		errors.Is(err, ErrNotFound):
		return FaultUsage
	default:
		return FaultUnknown
	}
}

// IsIntegrity reports whether err is a data-integrity failure.
func IsIntegrity(err error) bool { return Classify(err) == FaultIntegrity }

// IsUsage reports whether err is an expected accessor-time failure.
func IsUsage(err error) bool { return Classify(err) == FaultUsage }
