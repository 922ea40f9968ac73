package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rewired-gh/evgraph/internal/api"
	"github.com/rewired-gh/evgraph/internal/cache"
	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/config"
	"github.com/rewired-gh/evgraph/internal/logger"
	"github.com/rewired-gh/evgraph/internal/monitor"
	"github.com/rewired-gh/evgraph/internal/segment"
	"github.com/rewired-gh/evgraph/internal/storage"
	"github.com/rewired-gh/evgraph/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)
	gin.SetMode(cfg.Server.Mode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	segOpts := segment.Options{Threshold: cfg.Chart.EVThreshold, MaxGap: cfg.Chart.MaxGap}

	var chartCache cache.ChartCache = cache.Nop{}
	if cfg.Cache.Enabled {
		rc := cache.NewRedis(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.TTL)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			logger.Warn("Redis at %s unreachable, charts will not be cached: %v", cfg.Cache.Addr, err)
			_ = rc.Close()
		} else {
			logger.Info("Chart cache enabled (redis %s, ttl %v)", cfg.Cache.Addr, cfg.Cache.TTL)
			chartCache = rc
			defer rc.Close()
		}
		pingCancel()
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramClient.SetChartLookup(chartLookup(store, segOpts))
		telegramClient.ListenForCommands(ctx)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Monitor.Enabled {
		mon := monitor.New(store, monitor.Config{
			Lookback:           cfg.Monitor.Lookback,
			TopK:               cfg.Monitor.TopK,
			CooldownMultiplier: cfg.Monitor.CooldownMultiplier,
			BetLimit:           cfg.Database.QueryLimit,
			Segment:            segOpts,
		})
		var notifier monitor.Notifier
		if telegramClient != nil {
			notifier = telegramClient
		}
		logger.Info("Starting segment monitor (interval: %v, lookback: %v, threshold: %.1f, top_k: %d)",
			cfg.Monitor.PollInterval, cfg.Monitor.Lookback, segOpts.Threshold, cfg.Monitor.TopK)
		go mon.Run(ctx, cfg.Monitor.PollInterval, notifier)
	}

	server := api.New(store, chartCache, api.Options{QueryLimit: cfg.Database.QueryLimit, Segment: segOpts})
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("API listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, cleaning up...")
	case err := <-serveErr:
		if err != nil {
			logger.Error("API server failed: %v", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown failed: %v", err)
	}
	logger.Info("Service stopped")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := storage.NewPostgres(ctx, cfg.URL, storage.PostgresOptions{
			MinConns:       cfg.MinConns,
			MaxConns:       cfg.MaxConns,
			ConnectTimeout: cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case "sqlite":
		s, err := storage.NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// chartLookup builds a bet chart straight from storage for the /ev command.
func chartLookup(store storage.Store, opts segment.Options) telegram.ChartLookup {
	return func(ctx context.Context, betID string) (*chart.Chart, error) {
		bet, err := store.GetBet(ctx, betID)
		if err != nil {
			return nil, err
		}
		records, err := store.EVRecordsForBet(ctx, bet)
		if err != nil {
			return nil, err
		}
		return chart.Build(bet, nil, records, opts), nil
	}
}
