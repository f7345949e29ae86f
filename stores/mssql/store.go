package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
)

// StoreOptions configures MSSQLStore behavior.
type StoreOptions struct {
	Schema          string
	StrictByDefault bool
}

// DefaultStoreOptions returns production-safe defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		Schema:          "dbo",
		StrictByDefault: true,
	}
}

// MSSQLStore hands out SQL Server document collections using database/sql.
type MSSQLStore struct {
	db   *sql.DB
	opts StoreOptions
}

// NewStore creates a SQL Server-backed document store.
func NewStore(db *sql.DB, opts StoreOptions) (*MSSQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("nil sql db")
	}

	normalized := opts.withDefaults()
	if err := normalized.validate(); err != nil {
		return nil, err
	}

	return &MSSQLStore{db: db, opts: normalized}, nil
}

// Collection returns a handle to a collection without schema checks.
func (s *MSSQLStore) Collection(name string) *MSSQLCollection {
	return s.newCollectionHandle(name)
}

// EnsureCollection creates or validates a collection table and returns its handle.
func (s *MSSQLStore) EnsureCollection(ctx context.Context, spec griddata.CollectionSpec) (*MSSQLCollection, error) {
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

func (s *MSSQLStore) newCollectionHandle(name string) *MSSQLCollection {
	return &MSSQLCollection{
		store: s,
		name:  strings.TrimSpace(name),
	}
}

func (s StoreOptions) withDefaults() StoreOptions {
	if strings.TrimSpace(s.Schema) == "" {
		s.Schema = "dbo"
	}
	return s
}

func (s StoreOptions) validate() error {
	if strings.TrimSpace(s.Schema) == "" {
		return fmt.Errorf("%w: schema is empty", griddata.ErrSchemaMismatch)
	}
	return nil
}
