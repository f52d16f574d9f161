// Command candled serves the candle personalization wizard.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gabrielmiguelok/candlekit/internal/config"
	"github.com/gabrielmiguelok/candlekit/internal/metrics"
	"github.com/gabrielmiguelok/candlekit/internal/storefront"
	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
	"github.com/gabrielmiguelok/candlekit/pkg/health"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/preview"
	"github.com/gabrielmiguelok/candlekit/pkg/pubsub"
	"github.com/gabrielmiguelok/candlekit/pkg/resilience"
	"github.com/gabrielmiguelok/candlekit/pkg/shutdown"
	"github.com/gabrielmiguelok/candlekit/pkg/snapshot"
	"github.com/gabrielmiguelok/candlekit/pkg/wizard"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "candled: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sd := shutdown.NewHandler(cfg.ShutdownTimeout, logger)

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	sd.RegisterCloser("snapshots", shutdown.PriorityStorage, store)

	cat, err := newCatalog(cfg, logger)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	loaderOpts := []preview.LoaderOption{
		preview.WithMaxBytes(cfg.AssetMaxBytes),
		preview.WithLoaderBreaker(newBreaker("assets", logger)),
	}
	if cfg.AssetBaseURL != "" {
		loaderOpts = append(loaderOpts, preview.WithBaseURL(cfg.AssetBaseURL))
	}
	loader, err := preview.NewHTTPLoader(cfg.ModelCache, loaderOpts...)
	if err != nil {
		return fmt.Errorf("asset loader: %w", err)
	}

	var ps pubsub.PubSub = pubsub.NewMemoryPubSub()
	if cfg.UseRedis() {
		rps, err := pubsub.NewRedisPubSub(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
		ps = rps
	}
	sd.RegisterCloser("pubsub", shutdown.PriorityBroker, ps)

	m := metrics.New()
	srv, err := storefront.NewServer(storefront.Options{
		Store:        store,
		Codec:        snapshot.NewMsgPackCodec(),
		SnapshotTTL:  cfg.SnapshotTTL,
		Limits:       wizard.Limits{LabelPreview: cfg.LabelPreviewMaxBytes, AudioBlob: cfg.AudioBlobMaxBytes},
		Loader:       loader,
		DefaultModel: cfg.ModelURL,
		Catalog:      cat,
		Broadcaster:  pubsub.NewBroadcaster(ps),
		Metrics:      m,
		Logger:       logger,
		Health:       health.NewChecker(version),
		IdleTimeout:  cfg.SessionIdleTimeout,
		RateLimit:    cfg.RateLimitRPS,
		RateBurst:    cfg.RateLimitBurst,
	})
	if err != nil {
		return err
	}
	go srv.Run(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("candled listening",
			logging.String("addr", cfg.Addr),
			logging.String("snapshots", cfg.SnapshotBackend),
			logging.String("version", version))
		errCh <- httpServer.ListenAndServe()
	}()

	// Live connections are hijacked, so HTTP draining does not wait for
	// them; close them first.
	sd.Register("storefront", shutdown.PriorityLive, srv.Shutdown)
	sd.Register("http", shutdown.PriorityHTTP, httpServer.Shutdown)

	select {
	case err := <-errCh:
		_ = sd.Shutdown()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return sd.Shutdown()
}

func newLogger(cfg *config.Config) logging.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	switch cfg.LogFormat {
	case "zerolog":
		return logging.NewZerologLogger(os.Stdout, level)
	case "json":
		return logging.NewSlogLogger(logging.WithLevel(level), logging.WithJSON())
	default:
		return logging.NewSlogLogger(logging.WithLevel(level))
	}
}

func newStore(ctx context.Context, cfg *config.Config) (snapshot.Store, error) {
	switch cfg.SnapshotBackend {
	case "redis":
		return snapshot.NewRedisStore(ctx, cfg.RedisURL)
	case "file":
		return snapshot.NewFileStore(cfg.SnapshotDir)
	default:
		return snapshot.NewMemoryStore(snapshot.WithQuota(cfg.SnapshotQuotaBytes)), nil
	}
}

func newCatalog(cfg *config.Config, logger logging.Logger) (catalog.Reader, error) {
	if cfg.CatalogURL != "" {
		return catalog.NewHTTPClient(cfg.CatalogURL,
			catalog.WithBreaker(newBreaker("catalog", logger))), nil
	}
	return catalog.LoadStatic(cfg.CatalogFile)
}

func newBreaker(name string, logger logging.Logger) *resilience.Breaker {
	bc := resilience.DefaultBreakerConfig()
	bc.OnStateChange = func(from, to resilience.CircuitState) {
		logger.Warn("circuit breaker state changed",
			logging.String("breaker", name),
			logging.String("from", from.String()),
			logging.String("to", to.String()))
	}
	return resilience.NewBreaker(bc)
}
