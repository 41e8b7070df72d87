// Command pinbed-server serves the pincode resolver over HTTP.
//
// Configuration comes from the environment and an optional .env file; see
// internal/config for the variables. A dataset that fails to load leaves
// the server running on an empty dataset and reporting itself degraded.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreiashu/pinbed"
	"github.com/andreiashu/pinbed/internal/config"
	"github.com/andreiashu/pinbed/internal/logger"
	"github.com/andreiashu/pinbed/internal/server"
	"github.com/andreiashu/pinbed/internal/source"
)

func main() {
	if err := run(); err != nil {
		slog.Error("pinbed-server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logger.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bed, loadErr := loadDataset(ctx, cfg, log)
	if loadErr != nil {
		log.Warn("serving empty dataset", "error", loadErr)
	} else if srcErr := bed.SourceError(); srcErr != nil {
		log.Warn("serving cached dataset", "error", srcErr)
	}

	srv := server.New(bed, server.Options{
		CORS:         cfg.CORS,
		CacheTTL:     cfg.Cache.TTL,
		CacheCleanup: cfg.Cache.Cleanup,
		Logger:       log,
		LoadError:    loadErr,
	})
	return srv.Run(ctx, fmt.Sprintf(":%d", cfg.Port))
}

// loadDataset always returns a usable PinBed; on failure it is empty and
// the error is returned alongside.
func loadDataset(ctx context.Context, cfg *config.App, log *slog.Logger) (*pinbed.PinBed, error) {
	loadCtx, cancel := context.WithTimeout(ctx, cfg.Source.LoadTimeout)
	defer cancel()

	opts := []pinbed.Option{
		pinbed.WithCacheDir(cfg.Cache.Dir),
		pinbed.WithStoreCache(cfg.Cache.Store),
		pinbed.WithLogger(log),
	}

	loader, closeLoader, srcErr := source.FromConfig(loadCtx, cfg)
	if srcErr != nil {
		// The cache may still serve when the source is unreachable.
		loader = pinbed.LoaderFunc(func(context.Context) ([]pinbed.PincodeRecord, error) { return nil, srcErr })
	}
	defer func() {
		if err := closeLoader(); err != nil {
			log.Warn("closing pincode source", "error", err)
		}
	}()

	bed, err := pinbed.NewPinbed(loadCtx, append(opts, pinbed.WithLoader(loader))...)
	if err != nil {
		return pinbed.FromRecords(nil, opts...), err
	}
	return bed, nil
}
