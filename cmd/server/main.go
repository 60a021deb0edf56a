package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/klirineu/offertrack-web/internal/app"
	"github.com/klirineu/offertrack-web/internal/config"
	"github.com/klirineu/offertrack-web/internal/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("ANTICLONE_CONFIG"))
	if err != nil {
		logger.Fatal("config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Path); err != nil {
		logger.Fatal("logger: %v", err)
	}
	if err := run(cfg); err != nil {
		logger.Fatal("%v", err)
	}
	logger.Close()
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return app.Serve(ctx, cfg, store)
}
