package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/good12834/shoestore/internal/auth"
	"github.com/good12834/shoestore/internal/cart"
	"github.com/good12834/shoestore/internal/config"
	"github.com/good12834/shoestore/internal/domain"
	"github.com/good12834/shoestore/internal/event"
	handler "github.com/good12834/shoestore/internal/handler/http"
	"github.com/good12834/shoestore/internal/remote"
	"github.com/good12834/shoestore/internal/storage"
	"github.com/good12834/shoestore/internal/syncer"
	"github.com/good12834/shoestore/internal/wishlist"
	"github.com/good12834/shoestore/pkg/health"
	pkgkafka "github.com/good12834/shoestore/pkg/kafka"
	"github.com/good12834/shoestore/pkg/middleware"
	"github.com/good12834/shoestore/pkg/tracing"
)

const (
	serviceName = "storefront"

	// flushTimeout bounds how long shutdown waits for queued sync work.
	flushTimeout = 5 * time.Second
)

// App wires together all dependencies and runs the storefront client.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	storage        *openedStorage
	session        *auth.Session
	cart           *cart.Store
	wishlist       *wishlist.Store
	producer       *pkgkafka.Producer
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
	stopWork       context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
// A persisted session is restored last so its login pull is queued on both
// stores.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize tracing.
	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.Environment = cfg.Environment
	traceCfg.Enabled = cfg.OTELEnabled
	traceCfg.OTLPEndpoint = cfg.OTELEndpoint
	traceCfg.SampleRate = cfg.OTELSampleRate
	tracerShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		_ = tracerShutdown(ctx)
		return nil, err
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		storage:        store,
		tracerShutdown: tracerShutdown,
	}
	if err := a.build(ctx); err != nil {
		a.release(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	a.session = auth.NewSession(a.storage.driver, logger)
	client := remote.NewClient(remote.Config{
		BaseURL:    cfg.RemoteBaseURL,
		Timeout:    cfg.RemoteTimeout,
		MaxRetries: cfg.RemoteMaxRetries,
	}, a.session, logger)

	var (
		cartOpts     []cart.Option
		wishlistOpts []wishlist.Option
	)
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events := event.NewProducer(a.producer, cfg.Profile, event.DefaultBreakerConfig(), logger)
		cartOpts = append(cartOpts, cart.WithPublisher(events))
		wishlistOpts = append(wishlistOpts, wishlist.WithPublisher(events))
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	cartSync := syncer.New("cart", syncer.Policy{
		FailureThreshold: cfg.CartFailureThreshold,
		RatePerSecond:    cfg.SyncRatePerSecond,
		Burst:            cfg.SyncBurst,
	}, logger)
	wishlistSync := syncer.New("wishlist", syncer.Policy{
		FailureThreshold: cfg.WishlistFailureThreshold,
		RatePerSecond:    cfg.SyncRatePerSecond,
		Burst:            cfg.SyncBurst,
	}, logger)

	var err error
	a.cart, err = cart.NewStore(ctx, a.storage.driver, a.session, client, cartSync, logger, cartOpts...)
	if err != nil {
		return fmt.Errorf("create cart store: %w", err)
	}
	a.wishlist, err = wishlist.NewStore(ctx, a.storage.driver, a.session, client, wishlistSync, logger, wishlistOpts...)
	if err != nil {
		return fmt.Errorf("create wishlist store: %w", err)
	}

	if err := a.session.Restore(ctx); err != nil {
		return err
	}
	logger.Info("session restored", slog.Bool("authenticated", a.session.IsAuthenticated()))

	router := handler.NewRouter(handler.RouterConfig{
		Cart:     a.cart,
		Wishlist: a.wishlist,
		Session:  a.session,
		Health:   a.healthChecks(),
		CORS:     a.corsConfig(),
		Profile:  cfg.Profile,
		Logger:   logger,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// healthChecks registers storage as critical; sync circuits and the broker
// only degrade readiness since the stores keep working offline.
func (a *App) healthChecks() *health.Handler {
	h := health.NewHandler()
	if p, ok := a.storage.driver.(storage.Pinger); ok {
		h.RegisterCritical("storage_"+a.storage.name, p.Ping)
	}
	h.RegisterNonCritical("cart_sync", syncCheck(a.cart.SyncState))
	h.RegisterNonCritical("wishlist_sync", syncCheck(a.wishlist.SyncState))
	if a.producer != nil {
		h.RegisterNonCritical("kafka", a.producer.Ping)
	}
	return h
}

func (a *App) corsConfig() middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(a.cfg.CORSAllowedOrigins) > 0 {
		c.AllowedOrigins = a.cfg.CORSAllowedOrigins
	}
	return c
}

// Run starts the sync workers and the HTTP server and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	// Sync workers outlive ctx so Shutdown can drain them.
	workCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	a.stopWork = stop

	if err := a.cart.Start(workCtx); err != nil {
		return fmt.Errorf("start cart store: %w", err)
	}
	if err := a.wishlist.Start(workCtx); err != nil {
		return fmt.Errorf("start wishlist store: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("profile", a.cfg.Profile),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Give queued pushes a moment to finish; whatever remains is dropped and
	// the local snapshots stay authoritative.
	flushCtx, cancelFlush := context.WithTimeout(shutdownCtx, flushTimeout)
	defer cancelFlush()
	if err := a.cart.Flush(flushCtx); err != nil {
		a.logger.Warn("cart sync queue not drained", slog.String("error", err.Error()))
	}
	if err := a.wishlist.Flush(flushCtx); err != nil {
		a.logger.Warn("wishlist sync queue not drained", slog.String("error", err.Error()))
	}

	a.release(shutdownCtx)

	a.logger.Info("application shutdown complete")
	return nil
}

// release closes everything NewApp opened, in reverse order.
func (a *App) release(ctx context.Context) {
	if a.stopWork != nil {
		a.stopWork()
	}
	if a.wishlist != nil {
		a.wishlist.Close()
	}
	if a.cart != nil {
		a.cart.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	a.storage.close()
	if err := a.tracerShutdown(ctx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}
}

// syncCheck fails while a store's circuit is open.
func syncCheck(state func() domain.SyncState) health.Checker {
	return func(context.Context) error {
		st := state()
		if st.CircuitOpen {
			return fmt.Errorf("sync suspended after %d consecutive failures: %s", st.ConsecutiveFailures, st.LastError)
		}
		return nil
	}
}
