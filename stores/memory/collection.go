package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/google/uuid"
)

// Collection is an in-process document collection keyed by UUID.
type Collection struct {
	name string

	mu    sync.RWMutex
	rows  []griddata.Row
	index map[uuid.UUID]int
}

var _ griddata.Collection = (*Collection)(nil)

// NewCollection creates an empty collection.
func NewCollection(name string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is empty", griddata.ErrSchemaMismatch)
	}
	return &Collection{
		name:  name,
		index: make(map[uuid.UUID]int),
	}, nil
}

func (c *Collection) Name() string {
	return c.name
}

// Insert stores copies of docs and returns their assigned ids in order.
func (c *Collection) Insert(ctx context.Context, docs []map[string]any) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(docs))
	rows := make([]griddata.Row, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("document %d is nil", i)
		}
		id := uuid.New()
		rows = append(rows, griddata.Row{ID: id, Doc: c.prepare(doc)})
		ids = append(ids, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		c.index[row.ID.(uuid.UUID)] = len(c.rows)
		c.rows = append(c.rows, row)
	}
	return ids, nil
}

// prepare copies doc so later caller writes do not reach the stored row.
// Values are kept exactly as given.
func (c *Collection) prepare(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func (c *Collection) Find(ctx context.Context, opts griddata.FindOptions) ([]griddata.Row, error) {
	rows, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ApplyFind(rows, opts)
}

func (c *Collection) Aggregate(ctx context.Context, pipeline griddata.Pipeline) ([]griddata.Bucket, error) {
	rows, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return RunPipeline(rows, pipeline)
}

func (c *Collection) Count(ctx context.Context, pipeline griddata.Pipeline) ([]int64, error) {
	rows, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return RunCount(rows, pipeline)
}

func (c *Collection) Get(ctx context.Context, id any) (griddata.Row, error) {
	if err := ctx.Err(); err != nil {
		return griddata.Row{}, err
	}
	key, ok := id.(uuid.UUID)
	if !ok {
		return griddata.Row{}, fmt.Errorf("%w: unexpected id type %T", griddata.ErrNotFound, id)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.index[key]
	if !ok {
		return griddata.Row{}, griddata.ErrNotFound
	}
	return c.rows[pos], nil
}

func (c *Collection) EncodeID(id any) (string, error) {
	key, ok := id.(uuid.UUID)
	if !ok {
		return "", fmt.Errorf("memory: unexpected id type %T", id)
	}
	return key.String(), nil
}

func (c *Collection) DecodeID(external string) (any, error) {
	key, err := uuid.Parse(strings.TrimSpace(external))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", griddata.ErrUnknownIdentifier, err)
	}
	return key, nil
}

// Len returns the number of stored rows.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

func (c *Collection) snapshot(ctx context.Context) ([]griddata.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]griddata.Row, len(c.rows))
	copy(out, c.rows)
	return out, nil
}
