package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/app"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/logging"

	_ "github.com/Sakeswap/sakeperp-arbitrageur/internal/cex/binance"
	_ "github.com/Sakeswap/sakeperp-arbitrageur/internal/cex/ftx"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	// Secrets come from the environment; a .env file is optional.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.String("path", *configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", zap.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	run := application.Run
	if *once {
		run = application.RunOnce
	}
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("arbitrageur terminated", zap.Error(err))
		os.Exit(1)
	}
}
