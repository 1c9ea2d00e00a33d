// Package grpc is the gRPC edge. It carries the standard health service and
// the Sessions revocation service, and collaborator services can be mounted
// with Register. Every method except health requires a bearer access token
// in the "authorization" metadata.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Registrar mounts a collaborator service on the gRPC server.
type Registrar func(*grpc.Server)

type GRPCServer struct {
	address       string
	logger        logging.Logger
	validator     *auth.TokenManager
	health        *health.Server
	registrars    []Registrar
	publicMethods map[string]bool
	methodRoles   map[string][]models.Role
}

func NewGRPCServer(a string, l logging.Logger, v *auth.TokenManager) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		validator: v,
		health:    health.NewServer(),
		publicMethods: map[string]bool{
			healthpb.Health_Check_FullMethodName: true,
			healthpb.Health_Watch_FullMethodName: true,
		},
		methodRoles: map[string][]models.Role{},
	}
}

// Register adds a collaborator service. Call before Run.
func (s *GRPCServer) Register(r Registrar) {
	s.registrars = append(s.registrars, r)
}

// RequireRoles restricts fullMethod to callers holding one of roles.
func (s *GRPCServer) RequireRoles(fullMethod string, roles ...models.Role) {
	s.methodRoles[fullMethod] = roles
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	healthpb.RegisterHealthServer(srv, s.health)
	for _, r := range s.registrars {
		r(srv)
	}
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on l until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, l net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if err := srv.Serve(l); err != nil {
		return err
	}
	return nil
}
