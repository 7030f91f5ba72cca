// Package server builds the application's dependencies and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mapslink/internal/api"
	"github.com/JakeFAU/mapslink/internal/config"
	"github.com/JakeFAU/mapslink/internal/logging"
	"github.com/JakeFAU/mapslink/internal/mapslink"
	"github.com/JakeFAU/mapslink/internal/places"
	memorypublisher "github.com/JakeFAU/mapslink/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/mapslink/internal/publisher/pubsub"
	"github.com/JakeFAU/mapslink/internal/restaurant"
	memorystore "github.com/JakeFAU/mapslink/internal/restaurant/memory"
	pgstore "github.com/JakeFAU/mapslink/internal/restaurant/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	resolver  *mapslink.Resolver
	importer  *restaurant.Importer
	store     restaurant.Store
	pgStore   *pgstore.Store
	gcpPub    *gcppublisher.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger wires the application around an existing logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
		zap.Bool("postgres", cfg.Database.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)

	placesClient, err := places.New(cfg.PlacesClient(), logger.Named("places"))
	if err != nil {
		return nil, fmt.Errorf("places client init failed: %w", err)
	}

	pipeline := cfg.Pipeline()
	expander := mapslink.NewExpander(pipeline.ExpandTimeout, pipeline.MaxRedirects, pipeline.AllowedHosts, logger.Named("expander"))
	app.resolver = mapslink.NewResolver(pipeline, placesClient, expander, logger.Named("resolver"))

	checks := map[string]api.ReadinessCheck{}
	if err := setupStore(ctx, app, checks); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.importer = restaurant.NewImporter(
		app.resolver,
		app.store,
		publisher,
		restaurant.UUIDGenerator{},
		restaurant.SystemClock{},
		cfg.Importer(),
		logger.Named("importer"),
	)

	app.apiServer = api.NewServer(api.Dependencies{
		Resolver: app.resolver,
		Importer: app.importer,
		Store:    app.store,
		Photos:   placesClient,
		Checks:   checks,
	}, *cfg, logger)

	return app, nil
}

func setupStore(ctx context.Context, app *App, checks map[string]api.ReadinessCheck) error {
	if app.cfg.Database.DSN == "" {
		app.logger.Warn("database.dsn not set; restaurants are kept in memory")
		app.store = memorystore.NewStore()
		return nil
	}
	store, err := pgstore.New(ctx, app.cfg.Postgres())
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	app.pgStore = store
	app.store = store
	checks["database"] = store.Ping
	if app.cfg.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema init failed: %w", err)
		}
		app.logger.Info("restaurant schema ensured", zap.String("table", app.cfg.Database.Table))
	}
	return nil
}

func setupPublisher(ctx context.Context, app *App) (restaurant.Publisher, error) {
	if app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("pubsub.project_id not set; import events are kept in memory")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.New(ctx, app.cfg.PubSub.ProjectID, app.logger.Named("pubsub"))
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.gcpPub = pub
	if app.cfg.PubSub.VerifyTopic {
		if err := pub.EnsureTopic(ctx, app.cfg.PubSub.TopicName); err != nil {
			return nil, fmt.Errorf("pubsub topic check failed: %w", err)
		}
	}
	return pub, nil
}

// Handler exposes the HTTP handler (primarily for testing).
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- fmt.Errorf("serve http: %w", err)
			cancel()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	var err error
	select {
	case err = <-serveErr:
	default:
	}
	return errors.Join(err, a.Close())
}

// Close releases infrastructure clients.
func (a *App) Close() error {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.gcpPub != nil {
		if err := a.gcpPub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.gcpPub = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
}
