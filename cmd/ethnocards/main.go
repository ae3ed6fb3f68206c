package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"EthnoCards/internal/config"
	"EthnoCards/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := newRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
