package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/gabisonia/go-gridquery/stores/memory"
	"github.com/google/uuid"
)

// MSSQLCollection is a SQL Server-backed document collection. Documents are
// stored as JSON text; filters are pushed down where SQL Server can express
// them and grouping runs in process over the loaded rows.
type MSSQLCollection struct {
	store *MSSQLStore
	name  string
}

var _ griddata.Collection = (*MSSQLCollection)(nil)

func (c *MSSQLCollection) Name() string {
	return c.name
}

// Insert stores docs under freshly generated ids and returns the ids in order.
func (c *MSSQLCollection) Insert(ctx context.Context, docs []map[string]any) ([]uuid.UUID, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	insertQuery := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (@p1, @p2)",
		c.tableName(),
		quoteIdent(idColumn),
		quoteIdent(docColumn),
	)

	ids := make([]uuid.UUID, 0, len(docs))
	for start := 0; start < len(docs); start += maxRowsPerStatement {
		end := start + maxRowsPerStatement
		if end > len(docs) {
			end = len(docs)
		}

		tx, err := c.store.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		batchIDs, err := c.writeBatch(ctx, tx, docs[start:end], insertQuery)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		ids = append(ids, batchIDs...)
	}

	return ids, nil
}

func (c *MSSQLCollection) writeBatch(ctx context.Context, tx *sql.Tx, docs []map[string]any, insertQuery string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(docs))
	for i, doc := range docs {
		payload, err := documentJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document %d: %w", i, err)
		}
		id := uuid.New()
		if _, err := tx.ExecContext(ctx, insertQuery, id.String(), payload); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *MSSQLCollection) Get(ctx context.Context, id any) (griddata.Row, error) {
	key, ok := id.(uuid.UUID)
	if !ok {
		return griddata.Row{}, fmt.Errorf("%w: unexpected id type %T", griddata.ErrNotFound, id)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = @p1",
		quoteIdent(docColumn),
		c.tableName(),
		quoteIdent(idColumn),
	)

	var raw string
	err := c.store.db.QueryRowContext(ctx, query, key.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return griddata.Row{}, griddata.ErrNotFound
		}
		return griddata.Row{}, err
	}

	doc, err := c.decodeDocument(raw)
	if err != nil {
		return griddata.Row{}, err
	}
	return griddata.Row{ID: key, Doc: doc}, nil
}

func (c *MSSQLCollection) Find(ctx context.Context, opts griddata.FindOptions) ([]griddata.Row, error) {
	rows, err := c.loadRows(ctx, opts.Filter)
	if err != nil {
		return nil, err
	}
	return memory.ApplyFind(rows, opts)
}

func (c *MSSQLCollection) Aggregate(ctx context.Context, pipeline griddata.Pipeline) ([]griddata.Bucket, error) {
	filters, _ := griddata.LeadingMatches(pipeline)
	rows, err := c.loadRows(ctx, conjunction(filters))
	if err != nil {
		return nil, err
	}
	return memory.RunPipeline(rows, pipeline)
}

func (c *MSSQLCollection) Count(ctx context.Context, pipeline griddata.Pipeline) ([]int64, error) {
	plan, err := griddata.PlanPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	if !plan.Count {
		return nil, fmt.Errorf("%w: count pipeline must end with a count stage", griddata.ErrUnsupportedPipeline)
	}
	if plan.Filter() == nil && plan.Group == nil && plan.Skip == 0 && plan.Limit == 0 {
		return c.countAll(ctx)
	}

	rows, err := c.loadRows(ctx, plan.Filter())
	if err != nil {
		return nil, err
	}
	return memory.RunCount(rows, pipeline)
}

func (c *MSSQLCollection) countAll(ctx context.Context) ([]int64, error) {
	query := fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s", c.tableName())
	var count int64
	if err := c.store.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return []int64{count}, nil
}

func (c *MSSQLCollection) EncodeID(id any) (string, error) {
	key, ok := id.(uuid.UUID)
	if !ok {
		return "", fmt.Errorf("mssql: unexpected id type %T", id)
	}
	return key.String(), nil
}

func (c *MSSQLCollection) DecodeID(external string) (any, error) {
	key, err := uuid.Parse(strings.TrimSpace(external))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", griddata.ErrUnknownIdentifier, err)
	}
	return key, nil
}

// loadRows reads the rows the pushed-down part of filter admits. Callers
// re-apply the full filter in process.
func (c *MSSQLCollection) loadRows(ctx context.Context, filter griddata.Filter) ([]griddata.Row, error) {
	query, args, err := c.buildLoadQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]griddata.Row, 0)
	for rows.Next() {
		var idText string
		var raw string
		if err := rows.Scan(&idText, &raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idText)
		if err != nil {
			return nil, fmt.Errorf("decode row id %q: %w", idText, err)
		}
		doc, err := c.decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, griddata.Row{ID: id, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *MSSQLCollection) buildLoadQuery(filter griddata.Filter) (string, []any, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM %s",
		quoteIdent(idColumn),
		quoteIdent(docColumn),
		c.tableName(),
	)

	where, args, _, err := compileFilterPushdown(filter, 1)
	if err != nil {
		if !errors.Is(err, errFilterPushdownUnsupported) {
			return "", nil, err
		}
		where, args = "", nil
	}
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY " + quoteIdent(idColumn)
	return query, args, nil
}

func (c *MSSQLCollection) decodeDocument(raw string) (map[string]any, error) {
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func (c *MSSQLCollection) tableName() string {
	return qualifiedTable(c.store.opts.Schema, c.name)
}

func conjunction(filters []griddata.Filter) griddata.Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return griddata.And(filters...)
	}
}
