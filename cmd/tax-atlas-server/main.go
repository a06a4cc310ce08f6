package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/tax-atlas/internal/catalog"
	"github.com/iwvelando/tax-atlas/internal/logging"
	"github.com/iwvelando/tax-atlas/internal/rates"
	"github.com/iwvelando/tax-atlas/internal/server"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	configLocation := flag.String("config", constants.DefaultServerConfigFile, "path to server configuration file")
	address := flag.String("address", "", "listen address override")
	maxUploadSize := flag.String("max-upload-size", "", "maximum request body size override (e.g. 256K, 1M)")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := server.LoadConfig(*configLocation)
	if err != nil {
		logging.Fatal("failed to load server configuration at "+*configLocation, err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *maxUploadSize != "" {
		size, err := server.ParseSize(*maxUploadSize)
		if err != nil {
			logging.Fatal("invalid max upload size", err)
			os.Exit(1)
		}
		cfg.SetUploadSizeBytes(size)
	}

	logger, err := logging.New(cfg.Logging, *logLevel)
	if err != nil {
		logging.Fatal("failed to initialize logger", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	c, err := catalog.Load(logger)
	if err != nil {
		logger.Fatal("failed to load country catalog",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	provider, err := rates.FromConfig(logger, cfg.Rates)
	if err != nil {
		logger.Fatal("failed to configure exchange rates",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           server.NewHandler(logger, cfg.UploadSizeBytes(), version, c, provider),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Timeouts.Read,
		WriteTimeout:      cfg.Timeouts.Write,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("tax-atlas server listening",
			zap.String("op", "main"),
			zap.String("address", cfg.Address),
			zap.Int("countries", c.Len()),
			zap.String("ratesSource", cfg.Rates.Source),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}
