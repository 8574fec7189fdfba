package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/rayfire/sniper/internal/config"
	"github.com/rayfire/sniper/internal/engine"
	"github.com/rayfire/sniper/internal/logging"
	"github.com/rayfire/sniper/internal/store"
	"github.com/rayfire/sniper/internal/webhook"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadSniperConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("sniper", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	var journal engine.Journal
	if cfg.DBDSN != "" {
		st, storeErr := store.NewStore(cfg.DBDSN)
		if storeErr != nil {
			logger.Error("failed to initialize trade journal", "err", storeErr)
			os.Exit(1)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("failed to close trade journal", "err", closeErr)
			}
		}()
		journal = st
	}

	trader := engine.NewTrader(cfg, logger)
	eng := engine.New(engine.Config{
		SellDelay:         cfg.SellDelay,
		SellRetryInterval: cfg.SellRetryInterval,
		MaxSellAttempts:   cfg.MaxSellAttempts,
	}, trader, journal, logger)
	server := webhook.New(cfg, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return eng.Run(ctx) })
	group.Go(func() error { return server.Run(ctx) })

	if err := group.Wait(); err != nil {
		logger.Error("sniper exited with error", "err", err)
		os.Exit(1)
	}
}
