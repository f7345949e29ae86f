// Package mongo implements griddata.Collection on MongoDB. Pipelines are
// translated stage by stage into aggregation pipelines.
package mongo

import (
	"fmt"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// MongoStore hands out collections of one database.
type MongoStore struct {
	db *mongodriver.Database
}

// NewStore creates a MongoDB-backed document store.
func NewStore(db *mongodriver.Database) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("nil mongo database")
	}
	return &MongoStore{db: db}, nil
}

// Collection returns a handle to a collection. MongoDB creates collections
// on first write, so no schema checks apply.
func (s *MongoStore) Collection(name string) (*MongoCollection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is empty", griddata.ErrSchemaMismatch)
	}
	return &MongoCollection{
		store: s,
		name:  name,
		coll:  s.db.Collection(name),
	}, nil
}
