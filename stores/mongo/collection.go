package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection is a MongoDB-backed document collection keyed by ObjectID.
type MongoCollection struct {
	store *MongoStore
	name  string
	coll  *mongodriver.Collection
}

var _ griddata.Collection = (*MongoCollection)(nil)

func (c *MongoCollection) Name() string {
	return c.name
}

// Insert stores docs under freshly generated ids and returns the ids in order.
func (c *MongoCollection) Insert(ctx context.Context, docs []map[string]any) ([]primitive.ObjectID, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]primitive.ObjectID, 0, len(docs))
	payload := make([]any, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("document %d is nil", i)
		}
		prepared := c.prepare(doc)
		id := primitive.NewObjectID()
		prepared["_id"] = id
		payload = append(payload, prepared)
		ids = append(ids, id)
	}

	if _, err := c.coll.InsertMany(ctx, payload, options.InsertMany().SetOrdered(true)); err != nil {
		return nil, err
	}
	return ids, nil
}

// prepare copies doc so the generated _id never lands in the caller's map.
func (c *MongoCollection) prepare(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+1)
	for key, value := range doc {
		out[key] = value
	}
	return out
}

// EnsureIndexes creates ascending indexes on the given fields, typically the
// selectors used for grouping.
func (c *MongoCollection) EnsureIndexes(ctx context.Context, fields []string) error {
	if len(fields) == 0 {
		return nil
	}

	models := make([]mongodriver.IndexModel, 0, len(fields))
	for _, field := range fields {
		name, err := fieldName(field)
		if err != nil {
			return err
		}
		models = append(models, mongodriver.IndexModel{Keys: bson.D{{Key: name, Value: 1}}})
	}
	if _, err := c.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (c *MongoCollection) Find(ctx context.Context, opts griddata.FindOptions) ([]griddata.Row, error) {
	filter, findOpts, err := buildFind(opts)
	if err != nil {
		return nil, err
	}

	cursor, err := c.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}

	rows := make([]griddata.Row, 0, len(raw))
	for _, doc := range raw {
		row, err := rowFromBSON(doc)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *MongoCollection) Aggregate(ctx context.Context, pipeline griddata.Pipeline) ([]griddata.Bucket, error) {
	stages, err := buildAggregatePipeline(pipeline)
	if err != nil {
		return nil, err
	}

	cursor, err := c.coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, err
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}

	buckets := make([]griddata.Bucket, 0, len(raw))
	for _, doc := range raw {
		bucket, err := bucketFromBSON(doc)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

func (c *MongoCollection) Count(ctx context.Context, pipeline griddata.Pipeline) ([]int64, error) {
	stages, err := buildCountPipeline(pipeline)
	if err != nil {
		return nil, err
	}

	cursor, err := c.coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, err
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	counts := make([]int64, 0, len(raw))
	for _, doc := range raw {
		n, err := countFromBSON(doc)
		if err != nil {
			return nil, err
		}
		counts = append(counts, n)
	}
	return counts, nil
}

func (c *MongoCollection) Get(ctx context.Context, id any) (griddata.Row, error) {
	key, ok := id.(primitive.ObjectID)
	if !ok {
		return griddata.Row{}, fmt.Errorf("%w: unexpected id type %T", griddata.ErrNotFound, id)
	}

	var raw bson.M
	err := c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return griddata.Row{}, griddata.ErrNotFound
		}
		return griddata.Row{}, err
	}
	return rowFromBSON(raw)
}

func (c *MongoCollection) EncodeID(id any) (string, error) {
	key, ok := id.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("mongo: unexpected id type %T", id)
	}
	return key.Hex(), nil
}

func (c *MongoCollection) DecodeID(external string) (any, error) {
	key, err := primitive.ObjectIDFromHex(strings.TrimSpace(external))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", griddata.ErrUnknownIdentifier, err)
	}
	return key, nil
}

// buildFind translates flat fetch options. Ties are broken by _id so paging
// is stable in insertion order.
func buildFind(opts griddata.FindOptions) (bson.D, *options.FindOptions, error) {
	if opts.Skip < 0 || opts.Take < 0 {
		return nil, nil, fmt.Errorf("%w: skip and take must be >= 0", griddata.ErrInvalidQuery)
	}

	filter, err := compileFilterBSON(opts.Filter)
	if err != nil {
		return nil, nil, err
	}

	sortSpec := make(bson.D, 0, len(opts.Sort)+1)
	sortsByID := false
	for _, spec := range opts.Sort {
		field, err := fieldName(spec.Selector)
		if err != nil {
			return nil, nil, err
		}
		direction := 1
		if spec.Desc {
			direction = -1
		}
		sortSpec = append(sortSpec, bson.E{Key: field, Value: direction})
		sortsByID = sortsByID || field == "_id"
	}
	if !sortsByID {
		sortSpec = append(sortSpec, bson.E{Key: "_id", Value: 1})
	}

	findOpts := options.Find().SetSort(sortSpec)
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	if opts.Take > 0 {
		findOpts.SetLimit(int64(opts.Take))
	}
	return filter, findOpts, nil
}
