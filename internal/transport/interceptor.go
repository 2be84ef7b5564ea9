package transport

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/pkg"
)

const (
	// HopsHeader is the metadata key carrying how often a lookup was forwarded
	HopsHeader = "x-chord-hops"
)

// HopsClientInterceptor copies the forward count of the context into the
// outgoing metadata.
func HopsClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if hops := chord.HopsFromContext(ctx); hops > 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, HopsHeader, strconv.Itoa(hops))
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// HopsServerInterceptor restores the forward count sent by the caller and
// logs every call with its duration.
func HopsServerInterceptor(logger *pkg.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(HopsHeader); len(values) > 0 {
				hops, err := strconv.Atoi(values[0])
				if err != nil || hops < 0 {
					return nil, status.Errorf(codes.InvalidArgument, "invalid %s: %q", HopsHeader, values[0])
				}
				ctx = chord.WithHops(ctx, hops)
			}
		}

		start := time.Now()
		resp, err := handler(ctx, req)

		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Int("hops", chord.HopsFromContext(ctx)).
			Dur("duration", time.Since(start)).
			Msg("Handled peer call")

		return resp, err
	}
}
