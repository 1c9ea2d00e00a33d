package session

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/storefront/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func withBearer(ctx context.Context, access string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", common.BearerPrefix+access)
}

// UnaryClientInterceptor gives gRPC calls the same treatment as Do: bearer
// metadata, one shared refresh on codes.Unauthenticated and a single replay.
// Without a session calls go out bare, so public methods such as health
// checks still work.
func (c *Client) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		access := c.accessToken()
		if access == "" {
			err := invoker(ctx, method, req, reply, cc, opts...)
			if status.Code(err) == codes.Unauthenticated {
				return fmt.Errorf("%w: %w", ErrReauthenticate, err)
			}
			return err
		}

		err := invoker(withBearer(ctx, access), method, req, reply, cc, opts...)
		if status.Code(err) != codes.Unauthenticated {
			return err
		}

		fresh, rerr := c.refresh(ctx, access)
		if rerr != nil {
			return rerr
		}

		err = invoker(withBearer(ctx, fresh), method, req, reply, cc, opts...)
		if status.Code(err) == codes.Unauthenticated {
			c.clear(ctx)
			return fmt.Errorf("%w: %w", ErrReauthenticate, err)
		}
		return err
	}
}
