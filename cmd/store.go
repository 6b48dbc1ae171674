package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plansync/internal/catalog"
)

// initCatalog opens the configured catalog backend and applies pending migrations.
func initCatalog(ctx context.Context) (catalog.Store, error) {
	var (
		st  catalog.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "plansync.db"
		}
		st, err = catalog.NewSQLite(dsn)
	case "postgres":
		st, err = catalog.NewPostgres(ctx, cfg.Store.DatabaseURL, &catalog.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
