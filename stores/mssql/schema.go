package mssql

import (
	"context"
	"fmt"

	"github.com/gabisonia/go-gridquery/griddata"
)

func (s *MSSQLStore) ensureBaseSchema(ctx context.Context) error {
	schemaLiteral := escapeSQLString(s.opts.Schema)
	query := fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC(N'CREATE SCHEMA %s')", schemaLiteral, quoteIdent(s.opts.Schema))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema %q: %w", s.opts.Schema, err)
	}
	return nil
}

func (s *MSSQLStore) ensureTableWithValidation(ctx context.Context, table string, mode griddata.EnsureMode) error {
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return s.createCollectionTable(ctx, table)
	}
	return s.validateCollectionSchema(ctx, table, mode)
}

func (s *MSSQLStore) tableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
	`, s.opts.Schema, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}

	return count > 0, nil
}

func (s *MSSQLStore) createCollectionTable(ctx context.Context, table string) error {
	query := fmt.Sprintf(`
		IF OBJECT_ID(N'%s', N'U') IS NULL
		BEGIN
			CREATE TABLE %s (
				%s NVARCHAR(64) NOT NULL PRIMARY KEY,
				%s NVARCHAR(MAX) NOT NULL DEFAULT N'{}'
			)
		END
	`,
		escapeSQLString(objectIDName(s.opts.Schema, table)),
		qualifiedTable(s.opts.Schema, table),
		quoteIdent(idColumn),
		quoteIdent(docColumn),
	)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create collection table %q: %w", table, err)
	}
	return nil
}

func (s *MSSQLStore) validateCollectionSchema(ctx context.Context, table string, mode griddata.EnsureMode) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
	`, s.opts.Schema, table)
	if err != nil {
		return fmt.Errorf("read schema columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]string)
	for rows.Next() {
		var columnName string
		var dataType string
		if err := rows.Scan(&columnName, &dataType); err != nil {
			return fmt.Errorf("scan schema columns: %w", err)
		}
		columns[columnName] = dataType
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate schema columns: %w", err)
	}

	idType, ok := columns[idColumn]
	if !ok {
		return fmt.Errorf("%w: missing column %q", griddata.ErrSchemaMismatch, idColumn)
	}
	if !isStringType(idType) {
		return fmt.Errorf("%w: expected %q to be string-compatible type, got %q", griddata.ErrSchemaMismatch, idColumn, idType)
	}

	if err := s.ensurePrimaryKeyOnID(ctx, table); err != nil {
		return err
	}

	docType, hasDoc := columns[docColumn]
	if !hasDoc {
		if mode == griddata.EnsureStrict {
			return fmt.Errorf("%w: missing column %q", griddata.ErrSchemaMismatch, docColumn)
		}
		return s.addDocumentColumn(ctx, table)
	}
	if !isStringType(docType) {
		return fmt.Errorf("%w: expected %q to be string-compatible type, got %q", griddata.ErrSchemaMismatch, docColumn, docType)
	}
	return nil
}

func (s *MSSQLStore) ensurePrimaryKeyOnID(ctx context.Context, table string) error {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		INNER JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
			AND tc.TABLE_NAME = kcu.TABLE_NAME
		WHERE tc.TABLE_SCHEMA = @p1
			AND tc.TABLE_NAME = @p2
			AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
			AND kcu.COLUMN_NAME = @p3
	`, s.opts.Schema, table, idColumn).Scan(&count)
	if err != nil {
		return fmt.Errorf("check primary key: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: primary key on %q is required", griddata.ErrSchemaMismatch, idColumn)
	}
	return nil
}

func (s *MSSQLStore) addDocumentColumn(ctx context.Context, table string) error {
	query := fmt.Sprintf("ALTER TABLE %s ADD %s NVARCHAR(MAX) NOT NULL DEFAULT N'{}'", qualifiedTable(s.opts.Schema, table), quoteIdent(docColumn))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("auto-migrate document column: %w", err)
	}
	return nil
}
