// Package http is the JSON/HTTP edge of the auth core: the storefront and
// backoffice frontends talk to it through the chi router built here.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/metrics"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	addr        string
	tokens      *services.TokenService
	users       *services.UserService
	validator   *auth.TokenManager
	metrics     *metrics.Metrics
	corsOrigins []string
	logger      logging.Logger
}

// Options configures NewServer. Metrics may be nil.
type Options struct {
	Addr        string
	Tokens      *services.TokenService
	Users       *services.UserService
	Validator   *auth.TokenManager
	Metrics     *metrics.Metrics
	CORSOrigins []string
	Logger      logging.Logger
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = logging.Nop{}
	}
	return &Server{
		addr:        o.Addr,
		tokens:      o.Tokens,
		users:       o.Users,
		validator:   o.Validator,
		metrics:     o.Metrics,
		corsOrigins: o.CORSOrigins,
		logger:      o.Logger.With("module", "http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Post(common.PathLogin, s.handleLogin)
	r.Post(common.PathRegister, s.handleRegister)
	r.Post(common.PathRefreshToken, s.handleRefresh)
	r.Post(common.PathRevokeToken, s.handleRevoke)

	r.Group(func(r chi.Router) {
		r.Use(s.Authenticate)
		r.Get(common.PathMe, s.handleMe)
		r.Post(common.PathLogoutAll, s.handleLogoutAll)
		r.Post(common.PathChangePassword, s.handleChangePassword)

		r.Route("/admin/users/{userID}", func(r chi.Router) {
			r.With(RequireRole(models.RoleAdmin, models.RoleStaff)).Get("/", s.handleGetUser)
			r.With(RequireRole(models.RoleAdmin)).Post("/revoke-sessions", s.handleAdminRevoke)
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{common.AuthorizationHeader, "Content-Type"},
		AllowCredentials: true,
	}).Handler(r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.logger.Info(ctx, "shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}
