package db

import (
	"context"
	"fmt"

	config "github.com/avvvet/bingo-sync/configs"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	log "github.com/sirupsen/logrus"
)

// OpenStore connects the backend named by STORE_BACKEND and wraps it in a Store.
// The returned func releases the connection.
func OpenStore(ctx context.Context, s config.Settings) (*store.Store, func(), error) {
	var opts []store.Option
	if s.StoreOptimistic {
		opts = append(opts, store.WithOptimistic(s.StoreRetries))
	}

	var (
		backend store.Backend
		release = func() {}
	)
	switch s.StoreBackend {
	case "postgres":
		pool, err := ConnectPostgres(ctx, s.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		pg := store.NewPostgresBackend(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		log.Info("shared state stored in postgres")
		backend, release = pg, pool.Close

	case "mongo":
		database, closeFn, err := ConnectMongo(ctx, s.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("shared state stored in mongo database %s", database.Name())
		backend, release = store.NewMongoBackend(database), closeFn

	default:
		log.Warn("shared state kept in memory, nothing survives a restart")
		backend = store.NewMemoryBackend()
	}

	st := store.New(backend, opts...)
	if !st.Optimistic() {
		log.Warn("store writes are last-writer-wins across processes, set STORE_OPTIMISTIC=true to version them")
	}
	return st, release, nil
}
