// Package server wires the auth core together: storage, token services,
// the audit trail and the HTTP and gRPC edges, and runs them until a
// shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/audit"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/metrics"
	"github.com/dmitrijs2005/storefront/internal/server/ratelimit"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/storefront/internal/server/grpc"
	hs "github.com/dmitrijs2005/storefront/internal/server/http"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	http    *hs.Server
	grpc    *gs.GRPCServer
	closers []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	db, repos, err := app.initStorage(ctx)
	if err != nil {
		app.close()
		return nil, err
	}

	m := metrics.New()
	sink, err := app.initAudit(ctx, m)
	if err != nil {
		app.close()
		return nil, err
	}

	jwt := auth.NewTokenManager(c.SecretKey, c.Issuer, c.Audience, c.AccessTokenValidityDuration)

	deps := services.Deps{
		Repos:                repos,
		Tokens:               jwt,
		RefreshTokenValidity: c.RefreshTokenValidityDuration,
		Audit:                sink,
		Metrics:              m,
		Logger:               logger,
	}
	if db != nil {
		deps.DB = db
	}
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		app.closers = append(app.closers, rdb.Close)
		deps.Limiter = ratelimit.New(rdb, ratelimit.Config{MaxAttempts: c.LoginMaxAttempts, Window: c.LoginWindow})
	}

	tokens := services.NewTokenService(deps)
	users := services.NewUserService(deps, tokens)

	app.http = hs.NewServer(hs.Options{
		Addr:        c.HTTPAddr,
		Tokens:      tokens,
		Users:       users,
		Validator:   jwt,
		Metrics:     m,
		CORSOrigins: c.CORSOrigins,
		Logger:      logger,
	})
	app.grpc = gs.NewGRPCServer(c.GRPCAddr, logger, jwt)
	app.grpc.MountSessions(users)

	return app, nil
}

func (app *App) initStorage(ctx context.Context) (*sql.DB, repomanager.RepositoryManager, error) {
	if app.config.StorageDriver == config.DriverMemory {
		app.logger.Warn(ctx, "using in-memory storage, data is lost on restart")
		return nil, repomanager.NewMemoryRepositoryManager(), nil
	}

	db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, db.Close)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("migrations error: %w", err)
	}
	return db, rm, nil
}

// initAudit builds the sink chain: log, then the optional S3 archive and
// e-mail alerts, all behind one buffered dispatcher.
func (app *App) initAudit(ctx context.Context, m *metrics.Metrics) (audit.Sink, error) {
	c := app.config
	sinks := audit.MultiSink{audit.NewLogSink(app.logger)}

	if c.AuditBucket != "" {
		client, err := audit.NewS3Client(ctx, audit.S3Config{
			Bucket:       c.AuditBucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewS3Sink(client, c.AuditBucket, app.logger))
	}

	if c.ResendAPIKey != "" && c.AlertTo != "" {
		sinks = append(sinks, audit.NewEmailAlertSink(audit.NewResendSender(c.ResendAPIKey), c.AlertFrom, splitList(c.AlertTo), app.logger))
	}

	d := audit.NewDispatcher(audit.Config{BufferSize: c.AuditBufferSize, DropIfFull: true}, sinks)
	m.RegisterAuditDropped(d.Dropped)
	app.closers = append(app.closers, func() error { d.Close(); return nil })
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// close releases resources in reverse order of acquisition.
func (app *App) close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	return errors.Join(errs...)
}

// Run serves HTTP and gRPC until ctx is cancelled, a termination signal
// arrives or either server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.http.Run(ctx) })
	g.Go(func() error { return app.grpc.Run(ctx) })

	err := g.Wait()
	if cerr := app.close(); cerr != nil {
		app.logger.Error(ctx, "shutdown", "error", cerr)
	}
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return err
}
