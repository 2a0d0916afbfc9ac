package nbi

import (
	"context"
	"errors"

	"github.com/signalsfoundry/rotorcraft-catalog/catalog"
	"github.com/signalsfoundry/rotorcraft-catalog/core"
	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code returns the gRPC code for err, for reporting catalog failures in the
// vocabulary downstream services use. Lookup failures are checked before the
// broader integrity class so a missing name reads as NotFound. An error that
// already carries a status keeps its code.
func Code(err error) codes.Code {
	if s, ok := status.FromError(err); ok && err != nil {
		return s.Code()
	}
	switch {
	case err == nil:
		return codes.OK

	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded

	case errors.Is(err, catalog.ErrLookup),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, core.ErrSourceNotFound):
		return codes.NotFound

	case errors.Is(err, catalog.ErrDuplicate):
		return codes.AlreadyExists

	case errors.Is(err, curve.ErrOutOfDomain):
		return codes.OutOfRange

	case errors.Is(err, model.ErrInvalidState):
		return codes.FailedPrecondition

	case errors.Is(err, core.ErrInvalidManifest),
		catalog.IsIntegrity(err):
		return codes.InvalidArgument

	default:
		return codes.Internal
	}
}
