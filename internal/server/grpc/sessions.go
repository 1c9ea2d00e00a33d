package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	SessionsServiceName      = "storefront.auth.v1.Sessions"
	MethodLogoutAll          = "/" + SessionsServiceName + "/LogoutAll"
	MethodRevokeUserSessions = "/" + SessionsServiceName + "/RevokeUserSessions"
)

// SessionRevoker revokes refresh tokens. *services.UserService satisfies it.
type SessionRevoker interface {
	LogoutAll(ctx context.Context, userID, ip string) (int64, error)
	AdminRevokeSessions(ctx context.Context, adminID, targetID, ip string) (int64, error)
}

// SessionsService exposes session revocation over gRPC. LogoutAll acts on
// the caller; RevokeUserSessions is restricted to admins.
type SessionsService struct {
	revoker SessionRevoker
}

// MountSessions registers the Sessions service on s and gates
// RevokeUserSessions to models.RoleAdmin.
func (s *GRPCServer) MountSessions(r SessionRevoker) {
	svc := &SessionsService{revoker: r}
	s.Register(func(srv *grpc.Server) { srv.RegisterService(&sessionsServiceDesc, svc) })
	s.RequireRoles(MethodRevokeUserSessions, models.RoleAdmin)
}

func (s *SessionsService) LogoutAll(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, StatusError(common.ErrorUnauthorized)
	}
	n, err := s.revoker.LogoutAll(ctx, id.UserID, peerIP(ctx))
	if err != nil {
		return nil, StatusError(err)
	}
	return wrapperspb.Int64(n), nil
}

func (s *SessionsService) RevokeUserSessions(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, StatusError(common.ErrorUnauthorized)
	}
	n, err := s.revoker.AdminRevokeSessions(ctx, id.UserID, in.GetValue(), peerIP(ctx))
	if err != nil {
		return nil, StatusError(err)
	}
	return wrapperspb.Int64(n), nil
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

type sessionsServer interface {
	LogoutAll(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	RevokeUserSessions(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
}

func logoutAllHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(sessionsServer).LogoutAll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodLogoutAll}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(sessionsServer).LogoutAll(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func revokeUserSessionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(sessionsServer).RevokeUserSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRevokeUserSessions}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(sessionsServer).RevokeUserSessions(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var sessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionsServiceName,
	HandlerType: (*sessionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LogoutAll", Handler: logoutAllHandler},
		{MethodName: "RevokeUserSessions", Handler: revokeUserSessionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/auth/v1/sessions.proto",
}
