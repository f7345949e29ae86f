package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const maxRowsPerStatement = 500

// PostgresCollection is a jsonb document collection.
type PostgresCollection struct {
	store *PostgresStore
	name  string
}

var _ griddata.Collection = (*PostgresCollection)(nil)

func (c *PostgresCollection) Name() string {
	return c.name
}

// Insert stores docs under freshly generated ids and returns the ids in order.
func (c *PostgresCollection) Insert(ctx context.Context, docs []map[string]any) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(docs))
	for start := 0; start < len(docs); start += maxRowsPerStatement {
		end := start + maxRowsPerStatement
		if end > len(docs) {
			end = len(docs)
		}

		batchIDs, query, args, err := c.buildInsertBatch(docs[start:end])
		if err != nil {
			return nil, err
		}
		if _, err := c.store.pool.Exec(ctx, query, args...); err != nil {
			return nil, err
		}
		ids = append(ids, batchIDs...)
	}
	return ids, nil
}

func (c *PostgresCollection) buildInsertBatch(docs []map[string]any) ([]uuid.UUID, string, []any, error) {
	ids := make([]uuid.UUID, 0, len(docs))
	args := make([]any, 0, len(docs)*2)
	values := make([]string, 0, len(docs))
	for i, doc := range docs {
		payload, err := documentJSON(doc)
		if err != nil {
			return nil, "", nil, fmt.Errorf("encode document %d: %w", i, err)
		}
		id := uuid.New()
		base := i*2 + 1
		values = append(values, fmt.Sprintf("($%d::uuid, $%d::jsonb)", base, base+1))
		args = append(args, id.String(), payload)
		ids = append(ids, id)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES %s",
		c.tableName(),
		quoteIdent(idColumn),
		quoteIdent(docColumn),
		strings.Join(values, ", "),
	)
	return ids, query, args, nil
}

func (c *PostgresCollection) Get(ctx context.Context, id any) (griddata.Row, error) {
	key, ok := id.(uuid.UUID)
	if !ok {
		return griddata.Row{}, fmt.Errorf("%w: unexpected id type %T", griddata.ErrNotFound, id)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1::uuid`,
		quoteIdent(docColumn),
		c.tableName(),
		quoteIdent(idColumn),
	)
	var raw []byte
	if err := c.store.pool.QueryRow(ctx, query, key.String()).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return griddata.Row{}, griddata.ErrNotFound
		}
		return griddata.Row{}, err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return griddata.Row{}, fmt.Errorf("decode document: %w", err)
	}
	return griddata.Row{ID: key, Doc: doc}, nil
}

func (c *PostgresCollection) Find(ctx context.Context, opts griddata.FindOptions) ([]griddata.Row, error) {
	plan, err := c.buildFindSQL(opts)
	if err != nil {
		return nil, err
	}

	rows, err := c.store.pool.Query(ctx, plan.query, plan.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]griddata.Row, 0)
	for rows.Next() {
		var idText string
		var raw []byte
		if err := rows.Scan(&idText, &raw); err != nil {
			return nil, err
		}
		id, err := parseRowID(idText)
		if err != nil {
			return nil, err
		}
		doc, err := parseDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", idText, err)
		}
		out = append(out, griddata.Row{ID: id, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PostgresCollection) Aggregate(ctx context.Context, pipeline griddata.Pipeline) ([]griddata.Bucket, error) {
	plan, err := c.buildAggregateSQL(pipeline)
	if err != nil {
		return nil, err
	}

	rows, err := c.store.pool.Query(ctx, plan.query, plan.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]griddata.Bucket, 0)
	for rows.Next() {
		bucket, err := scanBucket(rows, plan.group)
		if err != nil {
			return nil, err
		}
		out = append(out, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanBucket(rows pgx.Rows, group griddata.GroupStage) (griddata.Bucket, error) {
	var keyRaw, itemsRaw []byte
	var count int64

	scanTargets := []any{&keyRaw}
	if group.Count {
		scanTargets = append(scanTargets, &count)
	}
	if group.Items {
		scanTargets = append(scanTargets, &itemsRaw)
	}
	if err := rows.Scan(scanTargets...); err != nil {
		return griddata.Bucket{}, err
	}

	key, err := parseKey(keyRaw)
	if err != nil {
		return griddata.Bucket{}, fmt.Errorf("decode group key: %w", err)
	}
	bucket := griddata.Bucket{Key: key}
	if group.Count {
		bucket.Count = &count
	}
	if group.Items {
		items, err := parseBucketItems(itemsRaw)
		if err != nil {
			return griddata.Bucket{}, fmt.Errorf("decode group items: %w", err)
		}
		bucket.Items = items
	}
	return bucket, nil
}

// Count returns no row when the pipeline counts nothing, like $count.
func (c *PostgresCollection) Count(ctx context.Context, pipeline griddata.Pipeline) ([]int64, error) {
	plan, err := c.buildCountSQL(pipeline)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := c.store.pool.QueryRow(ctx, plan.query, plan.args...).Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return []int64{count}, nil
}

// IndexOptions configures EnsureIndexes.
type IndexOptions struct {
	// UsePathOps builds the document GIN index with jsonb_path_ops.
	UsePathOps bool
	// GroupFields get one expression index each, matching the grouping key.
	GroupFields []string
}

// EnsureIndexes creates the document GIN index and any grouping indexes.
func (c *PostgresCollection) EnsureIndexes(ctx context.Context, opts IndexOptions) error {
	docExpr := quoteIdent(docColumn)
	if opts.UsePathOps {
		docExpr += " jsonb_path_ops"
	}
	query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gin (%s)",
		quoteIdent(fmt.Sprintf("idx_%s_doc_gin", c.name)),
		c.tableName(),
		docExpr,
	)
	if _, err := c.store.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure document index: %w", err)
	}

	for _, field := range opts.GroupFields {
		key, err := c.keyExpr(field)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("idx_%s_%s", c.name, strings.ReplaceAll(strings.TrimSpace(field), ".", "_"))
		query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((%s))", quoteIdent(name), c.tableName(), key)
		if _, err := c.store.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("ensure group index on %q: %w", field, err)
		}
	}
	return nil
}

func (c *PostgresCollection) EncodeID(id any) (string, error) {
	key, ok := id.(uuid.UUID)
	if !ok {
		return "", fmt.Errorf("postgres: unexpected id type %T", id)
	}
	return key.String(), nil
}

func (c *PostgresCollection) DecodeID(external string) (any, error) {
	key, err := uuid.Parse(strings.TrimSpace(external))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", griddata.ErrUnknownIdentifier, err)
	}
	return key, nil
}

func (c *PostgresCollection) filterConfig() griddata.FilterSQLConfig {
	return griddata.FilterSQLConfig{DocumentExpr: quoteIdent(docColumn)}
}

func (c *PostgresCollection) tableName() string {
	return qualifiedTable(c.store.opts.Schema, c.name)
}
