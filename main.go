package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shortradar/config"
	"shortradar/internal/api"
	"shortradar/internal/collector"
	"shortradar/internal/exchange"
	"shortradar/internal/factcache"
	"shortradar/internal/store"
	"shortradar/internal/telemetry"
	"shortradar/logger"
)

// runner is the lifecycle shared by the polling and push collectors.
type runner interface {
	Start(ctx context.Context) error
	Stop()
}

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Shortradar.Name,
		"version": cfg.Shortradar.Version,
		"mode":    cfg.Collector.Mode,
	}).Info("starting shortradar")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to open store")
		os.Exit(1)
	}

	if err := st.EnsureDefaultWatchlist(ctx, cfg.Watchlist.Defaults); err != nil {
		log.WithError(err).Error("failed to seed watchlist")
		os.Exit(1)
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New()
		go func() {
			if err := metrics.Serve(ctx, cfg.Telemetry.Address, log); err != nil {
				log.WithError(err).Warn("telemetry server failed")
			}
		}()
	}

	var coll runner
	switch cfg.Collector.Mode {
	case "push":
		coll = collector.NewPushCollector(cfg, st)
	default:
		source := exchange.NewClient(&cfg.Binance, metrics)
		coll = collector.NewCollector(cfg, source, st, factcache.New(), metrics)
	}

	if err := coll.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start collector")
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Address, st)
		go func() {
			if err := apiServer.Serve(ctx); err != nil {
				log.WithError(err).Warn("api server failed")
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		coll.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(cfg.Collector.ShutdownGrace):
		log.Warn("graceful shutdown timeout exceeded")
	}

	if err := st.Close(); err != nil {
		log.WithError(err).Warn("failed to close store")
	}

	log.Info("shortradar stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Storage.Backend == "memory" {
		return store.NewMemory(cfg.Storage.Retention), nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return store.NewRedis(connectCtx, cfg.Storage.RedisURL, cfg.Storage.Retention)
}
