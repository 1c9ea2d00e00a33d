package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	ordersMethod = "/storefront.orders.v1.Orders/List"
	refundMethod = "/storefront.backoffice.v1.Refunds/Approve"
)

func newTestServer(now func() time.Time) (*GRPCServer, *auth.TokenManager) {
	tm := auth.NewTokenManager("secret", "storefront", "storefront-api", time.Minute)
	if now != nil {
		tm = tm.WithClock(now)
	}
	s := NewGRPCServer("127.0.0.1:0", logging.Nop{}, tm)
	s.RequireRoles(refundMethod, models.RoleAdmin, models.RoleStaff)
	return s, tm
}

func mustToken(t *testing.T, tm *auth.TokenManager, role models.Role) string {
	t.Helper()
	token, _, err := tm.Issue(&models.User{ID: "u-1", Role: role})
	require.NoError(t, err)
	return token
}

func withBearer(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func call(s *GRPCServer, ctx context.Context, method string) (*auth.Identity, error) {
	var got *auth.Identity
	_, err := s.accessTokenInterceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req any) (any, error) {
			got, _ = auth.IdentityFrom(ctx)
			return "ok", nil
		})
	return got, err
}

func TestInterceptor_HealthIsPublic(t *testing.T) {
	s, _ := newTestServer(nil)
	_, err := call(s, context.Background(), healthpb.Health_Check_FullMethodName)
	assert.NoError(t, err)
}

func TestInterceptor_MissingToken(t *testing.T) {
	s, _ := newTestServer(nil)
	_, err := call(s, context.Background(), ordersMethod)
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, auth.ReasonMissing, Reason(err))
}

func TestInterceptor_ValidTokenPassesIdentity(t *testing.T) {
	s, tm := newTestServer(nil)
	id, err := call(s, withBearer(mustToken(t, tm, models.RoleCustomer)), ordersMethod)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u-1", id.UserID)
}

func TestInterceptor_ExpiredToken(t *testing.T) {
	now := time.Now()
	s, tm := newTestServer(func() time.Time { return now })
	token := mustToken(t, tm, models.RoleCustomer)

	now = now.Add(time.Minute)
	_, err := call(s, withBearer(token), ordersMethod)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, auth.ReasonExpired, Reason(err))
}

func TestInterceptor_RoleGate(t *testing.T) {
	s, tm := newTestServer(nil)

	_, err := call(s, withBearer(mustToken(t, tm, models.RoleCustomer)), refundMethod)
	assert.Equal(t, codes.PermissionDenied, status.Code(err), "valid credential with wrong role is not 401")

	_, err = call(s, withBearer(mustToken(t, tm, models.RoleStaff)), refundMethod)
	assert.NoError(t, err)
}

func TestStatusError(t *testing.T) {
	v := common.NewValidationError()
	v.Add("email", "invalid")

	tests := []struct {
		err    error
		code   codes.Code
		reason string
	}{
		{common.ErrTokenReused, codes.Unauthenticated, common.KindTokenReused},
		{common.ErrTokenExpired, codes.Unauthenticated, common.KindTokenExpired},
		{v, codes.InvalidArgument, "ValidationError"},
		{common.ErrForbidden, codes.PermissionDenied, "Forbidden"},
		{common.ErrorNotFound, codes.NotFound, ""},
		{common.ErrRateLimited, codes.ResourceExhausted, ""},
		{assert.AnError, codes.Internal, ""},
	}
	for _, tt := range tests {
		err := StatusError(tt.err)
		assert.Equal(t, tt.code, status.Code(err), tt.err.Error())
		assert.Equal(t, tt.reason, Reason(err), tt.err.Error())
	}
	assert.NoError(t, StatusError(nil))
}
