package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreOptions configures PostgresStore behavior.
type StoreOptions struct {
	Schema          string
	StrictByDefault bool
}

// DefaultStoreOptions returns production-safe defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		Schema:          "public",
		StrictByDefault: true,
	}
}

// PostgresStore keeps document collections as jsonb tables using pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts StoreOptions
}

// NewStore creates a Postgres-backed document store.
func NewStore(pool *pgxpool.Pool, opts StoreOptions) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("nil pgx pool")
	}
	normalized := opts.withDefaults()
	if err := normalized.validate(); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, opts: normalized}, nil
}

// Collection returns a handle to a collection without schema checks.
func (s *PostgresStore) Collection(name string) *PostgresCollection {
	return s.newCollectionHandle(name)
}

// EnsureCollection creates or validates a collection table and returns its handle.
func (s *PostgresStore) EnsureCollection(ctx context.Context, spec griddata.CollectionSpec) (*PostgresCollection, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: collection name is empty", griddata.ErrSchemaMismatch)
	}
	mode := griddata.DefaultMode(spec.Mode, s.opts.StrictByDefault)
	if mode != griddata.EnsureStrict && mode != griddata.EnsureAutoMigrate {
		return nil, fmt.Errorf("%w: unsupported ensure mode %q", griddata.ErrSchemaMismatch, mode)
	}

	if err := s.ensureBaseSchema(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureTableWithValidation(ctx, spec.Name, mode); err != nil {
		return nil, err
	}

	return s.newCollectionHandle(spec.Name), nil
}

func (s *PostgresStore) ensureTableWithValidation(ctx context.Context, tableName string, mode griddata.EnsureMode) error {
	exists, err := s.tableExists(ctx, tableName)
	if err != nil {
		return err
	}
	if !exists {
		return s.createCollectionTable(ctx, tableName)
	}
	return s.validateCollectionSchema(ctx, tableName, mode)
}

func (s *PostgresStore) newCollectionHandle(name string) *PostgresCollection {
	return &PostgresCollection{
		store: s,
		name:  strings.TrimSpace(name),
	}
}

func (o StoreOptions) withDefaults() StoreOptions {
	if strings.TrimSpace(o.Schema) == "" {
		o.Schema = "public"
	}
	return o
}

func (o StoreOptions) validate() error {
	if strings.TrimSpace(o.Schema) == "" {
		return fmt.Errorf("%w: schema is empty", griddata.ErrSchemaMismatch)
	}
	return nil
}
