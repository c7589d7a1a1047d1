package main

import (
	"context"
	"os/signal"
	"syscall"

	appinstruments "orderbookcollection/internal/application/service/instruments"
	"orderbookcollection/internal/config"
	infrainstruments "orderbookcollection/internal/infrastructure/instruments"

	"github.com/sirupsen/logrus"
)

// bounds loads the instruments file and upserts it into instrument_bounds.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if cfg.Postgres.DSN == "" {
		logger.Fatal("DATABASE_DSN is required")
	}

	file, err := config.LoadInstruments(cfg.Instruments.File)
	if err != nil {
		logger.Fatalf("load instruments: %v", err)
	}

	repo, err := infrainstruments.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("init instruments repo: %v", err)
	}
	svc := appinstruments.NewService(repo)
	defer svc.Close()

	configs := file.List()
	if err := svc.Sync(ctx, configs); err != nil {
		logger.Fatalf("sync bounds: %v", err)
	}

	stored, err := svc.LoadBounds(ctx)
	if err != nil {
		logger.Fatalf("reload bounds: %v", err)
	}
	for _, c := range configs {
		logger.WithFields(logrus.Fields{
			"instrument_id": c.ID,
			"min_price":     c.MinPrice,
			"max_price":     c.MaxPrice,
			"tick_size":     c.TickSize,
			"slots":         c.Slots(),
		}).Debug("bounds synced")
	}
	logger.WithFields(logrus.Fields{
		"file":   cfg.Instruments.File,
		"synced": len(configs),
		"stored": len(stored),
	}).Info("instrument bounds synced")
}
