package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/storefront/internal/client/config"
	"github.com/dmitrijs2005/storefront/internal/client/migrations"
	"github.com/dmitrijs2005/storefront/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/storefront/internal/client/session"
	"github.com/dmitrijs2005/storefront/internal/filex"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	_ "modernc.org/sqlite"
)

type App struct {
	config  *config.Config
	session *session.Client
	health  healthpb.HealthClient
	reader  *bufio.Reader
	out     io.Writer
	closers []func() error
}

// NewApp opens the local store, restores any saved session and dials the
// gRPC endpoint. Dialing is lazy, so an unreachable server is reported by
// the first ping rather than here.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := filex.EnsureParentDir(c.DBPath); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	sess, err := session.New(ctx, session.Options{
		BaseURL:        c.ServerURL,
		HTTPClient:     &http.Client{Timeout: c.RequestTimeout},
		Store:          session.NewMetadataStore(metadata.NewSQLiteRepository(db)),
		RefreshTimeout: c.RefreshTimeout,
		Logger:         logging.New(os.Stderr, "warn"),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	conn, err := grpc.NewClient(c.GRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(sess.UnaryClientInterceptor()),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("grpc client: %w", err)
	}

	a := newApp(sess, healthpb.NewHealthClient(conn), os.Stdin, os.Stdout)
	a.config = c
	a.closers = []func() error{conn.Close, db.Close}
	return a, nil
}

func newApp(sess *session.Client, health healthpb.HealthClient, in io.Reader, out io.Writer) *App {
	return &App{
		session: sess,
		health:  health,
		reader:  bufio.NewReader(in),
		out:     out,
	}
}

// Run starts the REPL and releases local resources when it returns.
func (a *App) Run(ctx context.Context) {
	defer a.close()
	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func (a *App) status() string {
	return a.session.State().String()
}

func (a *App) isLoggedIn() bool {
	return a.session.State() != session.Unauthenticated
}
