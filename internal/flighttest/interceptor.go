package flighttest

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// unaryInterceptor counts and authorizes planning calls.
func (b *Backend) unaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if strings.HasSuffix(info.FullMethod, "/GetFlightInfo") {
			b.plans.Add(1)
		}
		if err := b.authorize(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// streamInterceptor counts and authorizes fetch calls. Handshake passes
// through unauthenticated.
func (b *Backend) streamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if strings.HasSuffix(info.FullMethod, "/Handshake") {
			return handler(srv, ss)
		}
		if strings.HasSuffix(info.FullMethod, "/DoGet") {
			b.fetches.Add(1)
		}
		if err := b.authorize(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (b *Backend) authorize(ctx context.Context, method string) error {
	md, _ := metadata.FromIncomingContext(ctx)
	b.mu.Lock()
	b.lastMD = md.Copy()
	b.mu.Unlock()

	for {
		n := b.rejectNext.Load()
		if n <= 0 {
			break
		}
		if b.rejectNext.CompareAndSwap(n, n-1) {
			b.logger.Debug("Rejecting call", "method", method, "remaining", n-1)
			return status.Error(codes.Unauthenticated, "token expired")
		}
	}

	header := firstValue(ctx, "authorization")
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return status.Error(codes.Unauthenticated, "authorization header must use Bearer scheme")
	}
	if !b.validToken(strings.TrimSpace(header[len(prefix):])) {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}
