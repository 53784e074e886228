package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	pb "stock-price-alerts/api/stockalerts"
	"stock-price-alerts/internal/alerts"
	"stock-price-alerts/internal/cache"
	"stock-price-alerts/internal/config"
	"stock-price-alerts/internal/datafeed"
	grpchandlers "stock-price-alerts/internal/grpc"
	"stock-price-alerts/internal/httpapi"
	"stock-price-alerts/internal/logging"
	"stock-price-alerts/internal/notify"
	"stock-price-alerts/internal/pubsub"
	"stock-price-alerts/internal/storage"
	"stock-price-alerts/internal/tracker"
)

const (
	pruneInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting stock price alert service",
		zap.String("provider", cfg.Feed.Provider),
		zap.String("mode", cfg.Feed.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := alerts.NewRegistry(alerts.WithStore(store), alerts.WithLogger(logger))
	loaded, err := registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore alert rules: %w", err)
	}
	logger.Info("Restored alert rules", zap.Int("count", loaded))

	broker := pubsub.NewBroker(logger)
	triggerBus := alerts.NewTriggerBus(logger)
	engine := alerts.NewEngine(alerts.NewEvaluator(registry, logger), triggerBus, logger,
		cfg.Engine.Workers, cfg.Engine.QueueSize)

	sinks, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(triggerBus, logger, cfg.Notify.Timeout, sinks...)

	feed, err := buildFeed(cfg, logger)
	if err != nil {
		return err
	}

	recorders := []tracker.QuoteRecorder{store}
	var latest httpapi.LatestQuotes
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		quoteCache := cache.NewRedisQuoteCache(client, cfg.Redis.QuoteTTL)
		defer quoteCache.Close()
		if err := quoteCache.Ping(ctx); err != nil {
			logger.Warn("Redis is unreachable, latest-quote cache disabled", zap.Error(err))
		} else {
			recorders = append(recorders, quoteCache)
			latest = quoteCache
			logger.Info("Latest-quote cache enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	quoteTracker := tracker.New(feed, engine,
		tracker.WithBroker(broker),
		tracker.WithRecorders(recorders...),
		tracker.WithWatchlist(store),
		tracker.WithLogger(logger))

	for _, starter := range []interface{ Start(context.Context) error }{broker, triggerBus, engine, dispatcher, feed} {
		if err := starter.Start(ctx); err != nil {
			return err
		}
	}

	if err := quoteTracker.TrackAll(ctx, cfg.Feed.Symbols); err != nil {
		logger.Warn("Failed to track every configured symbol", zap.Error(err))
	}
	restored, err := quoteTracker.Restore(ctx)
	if err != nil {
		return err
	}
	if err := quoteTracker.TrackAll(ctx, registry.Symbols()); err != nil {
		logger.Warn("Failed to track every alert symbol", zap.Error(err))
	}
	logger.Info("Tracking symbols", zap.Int("restored", restored), zap.Strings("symbols", quoteTracker.Tracked()))

	grpcServer := grpc.NewServer(pb.ServerOption())
	pb.RegisterMarketDataServer(grpcServer, grpchandlers.NewMarketDataServer(broker, quoteTracker, logger))
	pb.RegisterAlertServiceServer(grpcServer, grpchandlers.NewAlertServiceServer(registry, triggerBus, quoteTracker, logger))

	httpServer := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: httpapi.New(httpapi.Deps{
			Registry:   registry,
			Tracker:    quoteTracker,
			Engine:     engine,
			TriggerBus: triggerBus,
			Broker:     broker,
			Dispatcher: dispatcher,
			History:    store,
			Latest:     latest,
			Logger:     logger,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc on %s: %w", cfg.Server.GRPCAddr, err)
		}
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		pruneHistory(gctx, store, cfg.Storage.HistoryRetention, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		// Streaming RPCs and websocket clients end when their source closes,
		// so the pipeline stops before the servers drain.
		quoteTracker.Close()
		feed.Stop()
		engine.Stop()
		dispatcher.Stop()
		triggerBus.Stop()
		broker.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", zap.Error(err))
		}
		if !grpchandlers.Shutdown(shutdownCtx, grpcServer) {
			logger.Warn("gRPC clients did not disconnect in time, connections were closed")
		}
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func buildFeed(cfg *config.Config, logger *zap.Logger) (datafeed.Feed, error) {
	backoff := datafeed.Backoff{Initial: cfg.Feed.BackoffInitial, Max: cfg.Feed.BackoffMax}

	switch cfg.Feed.Provider {
	case config.ProviderMock:
		return datafeed.NewPollingFeed(datafeed.NewMockSource(cfg.Feed.MockSeed), cfg.Feed.PollInterval, backoff, logger), nil
	case config.ProviderFinnhub:
		key := cfg.APIKey(config.ProviderFinnhub)
		if cfg.Feed.Mode == config.ModeStream {
			return datafeed.NewStreamingFeed(cfg.Feed.FinnhubWSURL, key, backoff, logger)
		}
		source := datafeed.NewFinnhubSource(cfg.Feed.FinnhubRESTURL, key, cfg.Feed.RequestTimeout)
		return datafeed.NewPollingFeed(source, cfg.Feed.PollInterval, backoff, logger), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Feed.Provider)
	}
}

func buildSinks(cfg *config.Config, logger *zap.Logger) ([]notify.Sink, error) {
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	if cfg.Notify.EmailEnabled {
		email, err := notify.NewEmailSink(notify.EmailConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
			From:     cfg.Notify.EmailFrom,
			To:       cfg.Notify.EmailTo,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, email)
	}

	if cfg.Notify.TelegramEnabled {
		telegram, err := notify.NewTelegramSink(cfg.Notify.TelegramURL, cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID, cfg.Notify.Timeout)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, telegram)
	}

	return sinks, nil
}

// pruneHistory drops quote history older than the retention window.
func pruneHistory(ctx context.Context, store *storage.SQLiteStore, retention time.Duration, logger *zap.Logger) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.PruneHistory(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn("Failed to prune quote history", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("Pruned quote history", zap.Int64("rows", removed))
			}
		}
	}
}
