package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const authorizationKey = "authorization"

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(authorizationKey) {
		if len(v) >= len(common.BearerPrefix) && strings.EqualFold(v[:len(common.BearerPrefix)], common.BearerPrefix) {
			return strings.TrimSpace(v[len(common.BearerPrefix):])
		}
	}
	return ""
}

// authorize returns ctx carrying the caller's identity, or a status error.
func (s *GRPCServer) authorize(ctx context.Context, fullMethod string) (context.Context, error) {
	if s.publicMethods[fullMethod] {
		return ctx, nil
	}

	id, err := s.validator.Validate(bearerFromMetadata(ctx))
	if err != nil {
		s.logger.Debug(ctx, "rejected call", "method", fullMethod, "reason", auth.Reason(err))
		return nil, unauthenticated(err)
	}

	if roles, ok := s.methodRoles[fullMethod]; ok && !id.HasRole(roles...) {
		return nil, StatusError(common.ErrForbidden)
	}

	return auth.WithIdentity(ctx, id), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := s.authorize(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

func (s *GRPCServer) streamAccessTokenInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authorize(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
}
