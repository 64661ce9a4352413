package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/store"
)

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite", "":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "dealgen.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.ConnectPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{MaxConns: sc.MaxConns}, store.RetryPolicy{})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}
