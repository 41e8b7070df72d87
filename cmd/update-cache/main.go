// Command update-cache refreshes the pinbed gob cache from the configured
// pincode source.
//
// Usage:
//
//	SOURCE_KIND=http SOURCE_URL=https://api.example.com/pincodes go run ./cmd/update-cache
//
// The dataset is validated before anything is written; a dataset with
// errors leaves the existing cache untouched. After running, the cache can
// be compressed:
//
//	bzip2 -f pinbed-cache/pincodes.dmp
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/andreiashu/pinbed"
	"github.com/andreiashu/pinbed/internal/config"
	"github.com/andreiashu/pinbed/internal/logger"
	"github.com/andreiashu/pinbed/internal/source"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Source.LoadTimeout)
	defer cancel()

	loader, closeLoader, err := source.FromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer closeLoader()

	log.Info("loading pincodes", "source", cfg.Source.Kind)
	records, err := loader.LoadPincodes(ctx)
	if err != nil {
		return fmt.Errorf("loading pincodes: %w", err)
	}

	issues := pinbed.ValidateDataset(records)
	for _, is := range issues {
		if is.Severity == pinbed.SeverityError {
			log.Error("dataset issue", "issue", is.String())
		} else {
			log.Warn("dataset issue", "issue", is.String())
		}
	}
	if pinbed.HasErrors(issues) {
		return fmt.Errorf("dataset has errors, cache not written")
	}

	bed := pinbed.FromRecords(records, pinbed.WithCacheDir(cfg.Cache.Dir), pinbed.WithLogger(log))
	if err := bed.Store(); err != nil {
		return fmt.Errorf("storing cache: %w", err)
	}
	if err := pinbed.ValidateCache(cfg.Cache.Dir); err != nil {
		return fmt.Errorf("validating cache: %w", err)
	}

	log.Info("cache regenerated", "records", bed.Len(), "dir", cfg.Cache.Dir)
	fmt.Printf("Run 'bzip2 -f %s/pincodes.dmp' to compress the cache file.\n", cfg.Cache.Dir)
	return nil
}
