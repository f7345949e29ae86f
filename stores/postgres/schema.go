package postgres

import (
	"context"
	"fmt"

	"github.com/gabisonia/go-gridquery/griddata"
)

func (s *PostgresStore) ensureBaseSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(s.opts.Schema))
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema %q: %w", s.opts.Schema, err)
	}
	return nil
}

func (s *PostgresStore) tableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`,
		s.opts.Schema,
		table,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) createCollectionTable(ctx context.Context, table string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			%s jsonb NOT NULL DEFAULT '{}'::jsonb
		)
	`,
		qualifiedTable(s.opts.Schema, table),
		quoteIdent(idColumn),
		quoteIdent(docColumn),
	)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create collection table %q: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) validateCollectionSchema(ctx context.Context, table string, mode griddata.EnsureMode) error {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name, udt_name
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2`,
		s.opts.Schema,
		table,
	)
	if err != nil {
		return fmt.Errorf("read schema columns: %w", err)
	}
	defer rows.Close()

	cols := map[string]string{}
	for rows.Next() {
		var name, udtName string
		if err := rows.Scan(&name, &udtName); err != nil {
			return fmt.Errorf("scan schema columns: %w", err)
		}
		cols[name] = udtName
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate schema columns: %w", err)
	}

	idType, ok := cols[idColumn]
	if !ok {
		return fmt.Errorf("%w: missing column %q", griddata.ErrSchemaMismatch, idColumn)
	}
	if idType != "uuid" {
		return fmt.Errorf("%w: expected %q type uuid, got %q", griddata.ErrSchemaMismatch, idColumn, idType)
	}
	if err := s.ensurePrimaryKeyOnID(ctx, table); err != nil {
		return err
	}

	docType, ok := cols[docColumn]
	if !ok {
		if mode == griddata.EnsureStrict {
			return fmt.Errorf("%w: missing column %q", griddata.ErrSchemaMismatch, docColumn)
		}
		return s.addDocumentColumn(ctx, table)
	}
	if docType != "jsonb" {
		return fmt.Errorf("%w: expected %q type jsonb, got %q", griddata.ErrSchemaMismatch, docColumn, docType)
	}
	return nil
}

func (s *PostgresStore) ensurePrimaryKeyOnID(ctx context.Context, table string) error {
	var hasPK bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
				AND tc.table_name = kcu.table_name
			WHERE tc.table_schema = $1
				AND tc.table_name = $2
				AND tc.constraint_type = 'PRIMARY KEY'
				AND kcu.column_name = $3
		)
	`, s.opts.Schema, table, idColumn).Scan(&hasPK)
	if err != nil {
		return fmt.Errorf("check primary key: %w", err)
	}
	if !hasPK {
		return fmt.Errorf("%w: primary key on %q is required", griddata.ErrSchemaMismatch, idColumn)
	}
	return nil
}

func (s *PostgresStore) addDocumentColumn(ctx context.Context, table string) error {
	query := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s jsonb NOT NULL DEFAULT '{}'::jsonb`,
		qualifiedTable(s.opts.Schema, table),
		quoteIdent(docColumn),
	)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("auto-migrate document column: %w", err)
	}
	return nil
}
