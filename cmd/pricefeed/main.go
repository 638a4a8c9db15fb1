package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pricefeed/config"
	"pricefeed/internal/binance/collector"
	"pricefeed/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run collector
	c, err := collector.StartCollector(ctx, cfg, log)
	if err != nil {
		log.Fatal("collector failed", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("shutting down")
	c.Stop()
}
