package mongo

import (
	"fmt"

	"github.com/gabisonia/go-gridquery/griddata"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fromBSON converts decoded driver values into the plain Go shapes the
// query layer works with.
func fromBSON(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = fromBSON(child)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, elem := range v {
			out[elem.Key] = fromBSON(elem.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = fromBSON(child)
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.ObjectID:
		return v.Hex()
	case primitive.Decimal128:
		return v.String()
	default:
		return value
	}
}

// rowFromBSON splits a stored document into its id and its fields.
func rowFromBSON(raw bson.M) (griddata.Row, error) {
	id, ok := raw["_id"].(primitive.ObjectID)
	if !ok {
		return griddata.Row{}, fmt.Errorf("decode row id: unexpected type %T", raw["_id"])
	}
	doc := make(map[string]any, len(raw))
	for key, value := range raw {
		if key == "_id" {
			continue
		}
		doc[key] = fromBSON(value)
	}
	return griddata.Row{ID: id, Doc: doc}, nil
}

func bucketFromBSON(raw bson.M) (griddata.Bucket, error) {
	bucket := griddata.Bucket{Key: fromBSON(raw[keyField])}

	switch n := raw[countField].(type) {
	case nil:
	case int32:
		count := int64(n)
		bucket.Count = &count
	case int64:
		count := n
		bucket.Count = &count
	default:
		return griddata.Bucket{}, fmt.Errorf("decode bucket count: unexpected type %T", n)
	}

	switch items := raw[itemsField].(type) {
	case nil:
	case bson.A:
		bucket.Items = make([]griddata.Row, 0, len(items))
		for _, item := range items {
			doc, ok := asDocument(item)
			if !ok {
				return griddata.Bucket{}, fmt.Errorf("decode bucket item: unexpected type %T", item)
			}
			row, err := rowFromBSON(doc)
			if err != nil {
				return griddata.Bucket{}, err
			}
			bucket.Items = append(bucket.Items, row)
		}
	default:
		return griddata.Bucket{}, fmt.Errorf("decode bucket items: unexpected type %T", items)
	}
	return bucket, nil
}

func countFromBSON(raw bson.M) (int64, error) {
	switch n := raw[countField].(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("decode count: unexpected type %T", n)
	}
}

// asDocument accepts both embedded document shapes the decoder may produce.
func asDocument(value any) (bson.M, bool) {
	switch v := value.(type) {
	case bson.M:
		return v, true
	case bson.D:
		out := make(bson.M, len(v))
		for _, elem := range v {
			out[elem.Key] = elem.Value
		}
		return out, true
	default:
		return nil, false
	}
}
