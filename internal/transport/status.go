package transport

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordring/pkg"
)

const (
	errorDomain = "chord"

	// ReasonRoutingExhausted marks a ResourceExhausted status raised by the hop cap.
	ReasonRoutingExhausted = "ROUTING_EXHAUSTED"
)

// toStatus converts a local error into the status sent back to the caller.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, pkg.ErrRoutingExhausted):
		st := status.New(codes.ResourceExhausted, err.Error())
		if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
			Reason: ReasonRoutingExhausted,
			Domain: errorDomain,
		}); derr == nil {
			st = detailed
		}
		return st.Err()
	case errors.Is(err, pkg.ErrNodeShutdown):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, pkg.ErrDuplicateID):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus classifies a failed call into the peer error kinds.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", pkg.ErrUnreachable, err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", pkg.ErrUnreachable, st.Message())
	case codes.ResourceExhausted:
		for _, d := range st.Details() {
			if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetReason() == ReasonRoutingExhausted {
				return fmt.Errorf("%w: %s", pkg.ErrRoutingExhausted, st.Message())
			}
		}
	}
	return fmt.Errorf("%w: %s: %s", pkg.ErrProtocol, st.Code(), st.Message())
}
