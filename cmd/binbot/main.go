// BinBot decision server. Bots connect over TCP for movement commands and
// the companion app watches and powers the bot over HTTP and WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-binbot/internal/config"
	"github.com/teslashibe/go-binbot/internal/log"
	"github.com/teslashibe/go-binbot/pkg/binbot"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	log.Init(cfg.Log)
	logger := log.Component("main")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := binbot.New(cfg, logger)
	if err := app.Init(ctx); err != nil {
		logger.WithError(err).Error("Initialization failed")
		os.Exit(1)
	}

	err = app.Run(ctx)
	app.Shutdown()
	if err != nil {
		logger.WithError(err).Error("Server stopped")
		os.Exit(1)
	}
}
