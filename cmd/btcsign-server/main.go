// Command btcsign-server is a demo host dispatcher: it exposes the sign
// session's eight operations as JSON endpoints over HTTP, driving one
// process-wide internal/btcsign.Controller backed by a software keystore
// and a terminal confirmation UI.
//
// It plays the role the original firmware's USB/BLE command loop plays on
// real hardware: the host (a wallet app) calls these endpoints in the
// order the session's phase machine expects, while the signer's own UI
// (here, this process's terminal) blocks for user confirmation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/shiftsig/btcsign/internal/btcsign"
	"github.com/shiftsig/btcsign/internal/config"
	"github.com/shiftsig/btcsign/internal/keystore"
	"github.com/shiftsig/btcsign/internal/logging"
	"github.com/shiftsig/btcsign/internal/ui"
)

var version = "dev"

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 30 * time.Second
	serverIdleTimeout  = 60 * time.Second
	shutdownTimeout    = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	slog.Info("starting btcsign-server",
		"version", version,
		"network", cfg.Network,
		"port", cfg.Port,
		"logLevel", cfg.LogLevel,
	)

	chainParams, err := chainParamsForNetwork(cfg.Network)
	if err != nil {
		return err
	}

	ks := keystore.New(cfg.MnemonicFile, chainParams)
	dispatcherUI := ui.NewCLI(os.Stdin, os.Stdout)
	limiter := rate.NewLimiter(rate.Limit(cfg.InitRatePerSecond), config.InitRateBurst)
	controller := btcsign.New(ks, dispatcherUI, limiter)

	router := newRouter(controller, version)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("initiating graceful shutdown", "timeout", shutdownTimeout)

	controller.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// chainParamsForNetwork resolves the chaincfg.Params the demo keystore
// derives under. cfg.Validate already restricts Network to "mainnet" or
// "testnet".
func chainParamsForNetwork(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	default:
		return nil, fmt.Errorf("%w: unsupported network %q", config.ErrInvalidConfig, network)
	}
}
