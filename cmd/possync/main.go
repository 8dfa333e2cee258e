package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/possync/client"
	"github.com/example/possync/pkg/config"
	"github.com/example/possync/pkg/gateway"
	"github.com/example/possync/pkg/push"
	"github.com/example/possync/pkg/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting POS sync client",
		zap.String("api", cfg.API.BaseURL),
		zap.String("push", cfg.Push.URL))

	gw := gateway.NewClient(&cfg.API, logger)
	st := store.New()
	session := client.NewSession(gw, st, logger)

	listener := push.NewListener(&cfg.Push, logger)
	listener.OnStateChange = func(connected bool) {
		logger.Info("Push channel state", zap.Bool("connected", connected))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := session.Bootstrap(ctx); err != nil {
		logger.Fatal("Initial load failed", zap.Error(err))
	}

	go listener.Run(ctx)
	go session.Run(ctx, listener.Notifications())

	// Surface background refresh failures; they are transient.
	go func() {
		for err := range session.Errors() {
			logger.Warn("Sync error", zap.Error(err))
		}
	}()

	logger.Info("Sync client started")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal")
	cancel()
	logger.Info("Sync client stopped",
		zap.Int("tables", len(st.Tables())),
		zap.Int("products", len(st.Products())))
}
