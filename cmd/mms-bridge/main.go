// ABOUTME: Entry point for the MMS bridge
// ABOUTME: Loads configuration, optionally discovers the controller, and runs the server
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/mms-bridge/internal/bridge"
	"github.com/harperreed/mms-bridge/internal/config"
	"github.com/harperreed/mms-bridge/internal/discovery"
	"github.com/harperreed/mms-bridge/internal/logging"
)

var (
	configPath = flag.String("config", "", "Config file path (default: search standard locations)")
	port       = flag.Int("port", 0, "Listen port (overrides config)")
	deviceHost = flag.String("device", "", "Device host (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("loading configuration")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *deviceHost != "" {
		cfg.Device.Host = *deviceHost
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	if cfg.Device.Host == "" && cfg.Device.Discover {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		controller, err := discovery.Find(ctx, 3*time.Second)
		cancel()
		if err != nil {
			logging.Fatal().Err(err).Msg("controller discovery failed")
		}
		cfg.Device.Host = controller.Host
	}

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Info().
		Str("device", cfg.Device.Host).
		Int("device_port", cfg.Device.Port).
		Int("port", cfg.Server.Port).
		Msg("starting mms-bridge")

	srv := bridge.New(cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case sig := <-sigChan:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil {
			logging.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("shutdown incomplete")
	}
}
