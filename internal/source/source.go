// Package source provides pincode loaders backed by databases and a factory
// that picks a loader from configuration.
package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/andreiashu/pinbed"
	"github.com/andreiashu/pinbed/internal/config"
)

// FromConfig returns the loader selected by cfg.Source.Kind. The returned
// close function releases any connection the loader holds and is never nil.
func FromConfig(ctx context.Context, cfg *config.App) (pinbed.Loader, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Source.Kind {
	case config.SourceEmbedded, "":
		return pinbed.EmbeddedLoader{}, noop, nil

	case config.SourceHTTP:
		l := pinbed.HTTPLoader{URL: cfg.Source.URL}
		if cfg.Source.Token != "" {
			l.Header = http.Header{"Authorization": {"Bearer " + cfg.Source.Token}}
		}
		return l, noop, nil

	case config.SourceFile:
		return pinbed.FileLoader{Path: cfg.Source.File}, noop, nil

	case config.SourceMongo:
		client, l, err := ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.DBName, cfg.Mongo.Collection)
		if err != nil {
			return nil, noop, err
		}
		return l, func() error { return client.Disconnect(context.Background()) }, nil

	case config.SourcePostgres:
		db, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return SQLLoader{DB: db}, db.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}
