package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/gabisonia/go-gridquery/internal/config"
	"github.com/gabisonia/go-gridquery/stores/memory"
	"github.com/gabisonia/go-gridquery/stores/mongo"
	"github.com/gabisonia/go-gridquery/stores/mssql"
	"github.com/gabisonia/go-gridquery/stores/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/microsoft/go-mssqldb"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// openCollection connects to the configured backend. The returned close
// function releases the connection.
func openCollection(ctx context.Context, cfg *config.Config) (griddata.Collection, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		coll, err := loadMemoryCollection(ctx, cfg)
		return coll, func() {}, err
	case config.BackendPostgres:
		return openPostgres(ctx, cfg)
	case config.BackendMSSQL:
		return openMSSQL(ctx, cfg)
	case config.BackendMongo:
		return openMongo(ctx, cfg)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func collectionSpec(cfg *config.Config) griddata.CollectionSpec {
	spec := griddata.CollectionSpec{Name: cfg.Collection}
	if cfg.AutoMigrate {
		spec.Mode = griddata.EnsureAutoMigrate
	}
	return spec
}

func loadMemoryCollection(ctx context.Context, cfg *config.Config) (*memory.Collection, error) {
	payload, err := os.ReadFile(cfg.DataFile)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(payload, &docs); err != nil {
		return nil, fmt.Errorf("decode data file %q: %w", cfg.DataFile, err)
	}

	coll, err := memory.NewCollection(cfg.Collection)
	if err != nil {
		return nil, err
	}
	if _, err := coll.Insert(ctx, docs); err != nil {
		return nil, err
	}
	return coll, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (griddata.Collection, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	opts := postgres.DefaultStoreOptions()
	if cfg.Schema != "" {
		opts.Schema = cfg.Schema
	}
	store, err := postgres.NewStore(pool, opts)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	coll, err := store.EnsureCollection(ctx, collectionSpec(cfg))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return coll, pool.Close, nil
}

func openMSSQL(ctx context.Context, cfg *config.Config) (griddata.Collection, func(), error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect sql server: %w", err)
	}
	closeFn := func() { _ = db.Close() }

	opts := mssql.DefaultStoreOptions()
	if cfg.Schema != "" {
		opts.Schema = cfg.Schema
	}
	store, err := mssql.NewStore(db, opts)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	coll, err := store.EnsureCollection(ctx, collectionSpec(cfg))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return coll, closeFn, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (griddata.Collection, func(), error) {
	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	closeFn := func() { _ = client.Disconnect(context.Background()) }

	store, err := mongo.NewStore(client.Database(cfg.Database))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	coll, err := store.Collection(cfg.Collection)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return coll, closeFn, nil
}
