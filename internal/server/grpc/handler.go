package grpc

import (
	"errors"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is the ErrorInfo domain attached to auth failures.
const ErrorDomain = "storefront.auth"

func withReason(c codes.Code, msg, reason string) error {
	st := status.New(c, msg)
	if detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain}); err == nil {
		st = detailed
	}
	return st.Err()
}

func unauthenticated(err error) error {
	return withReason(codes.Unauthenticated, "authentication required", auth.Reason(err))
}

// StatusError converts a service error to a gRPC status error for
// collaborator handlers.
func StatusError(err error) error {
	var ve *common.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ve):
		return withReason(codes.InvalidArgument, ve.Error(), "ValidationError")
	case common.TokenKind(err) != "":
		return withReason(codes.Unauthenticated, common.ReauthenticateMessage, common.TokenKind(err))
	case errors.Is(err, common.ErrorUnauthorized):
		return withReason(codes.Unauthenticated, "authentication required", auth.Reason(err))
	case errors.Is(err, common.ErrForbidden):
		return withReason(codes.PermissionDenied, "insufficient role", "Forbidden")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// Reason extracts the ErrorInfo reason from a status error, or "".
func Reason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}
