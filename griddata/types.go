package griddata

import (
	"context"
	"encoding/json"
)

// IDField is the key under which a row's external identifier is exposed.
const IDField = "_id"

// SortSpec orders flat results by one field.
type SortSpec struct {
	Selector string `json:"selector"`
	Desc     bool   `json:"desc"`
}

// GroupSpec describes one grouping level. Its position in
// QueryDescriptor.Group is its nesting depth.
type GroupSpec struct {
	Selector   string `json:"selector"`
	Desc       bool   `json:"desc"`
	IsExpanded bool   `json:"isExpanded"`
}

// QueryDescriptor is a decoded grid query. Filter holds the raw JSON filter
// expression as produced by encoding/json (string or []any).
type QueryDescriptor struct {
	Filter            any         `json:"filter,omitempty"`
	Sort              []SortSpec  `json:"sort,omitempty"`
	Group             []GroupSpec `json:"group,omitempty"`
	Skip              int         `json:"skip,omitempty"`
	Take              int         `json:"take,omitempty"`
	RequireTotalCount bool        `json:"requireTotalCount,omitempty"`
	RequireGroupCount bool        `json:"requireGroupCount,omitempty"`
}

// Grouped reports whether the query asks for grouped data.
func (q QueryDescriptor) Grouped() bool {
	return len(q.Group) > 0
}

// Row is a stored document as a collection returns it. ID is the
// backend-native identifier and never leaves the query layer.
type Row struct {
	ID  any
	Doc map[string]any
}

// Item is a row after identifier normalization: the document fields plus
// IDField holding the opaque external identifier.
type Item map[string]any

// Bucket is one group produced by a GroupStage. Count is nil when the stage
// did not count rows; Items is nil when the stage did not retain rows.
type Bucket struct {
	Key   any
	Count *int64
	Items []Row
}

// GroupItems is either an ItemList or a GroupList. A nil GroupItems means
// the items were intentionally not fetched.
type GroupItems interface {
	isGroupItems()
}

// ItemList holds the rows of a last-level expanded group.
type ItemList []Item

func (ItemList) isGroupItems() {}

// GroupList holds the sub-groups of an expanded intermediate group.
type GroupList []GroupResult

func (GroupList) isGroupItems() {}

// GroupResult is one group in a grouped response.
type GroupResult struct {
	Key   any        `json:"key"`
	Count int64      `json:"count"`
	Items GroupItems `json:"items"`
}

// ItemsFetched reports whether Items carries data rather than the absence marker.
func (g GroupResult) ItemsFetched() bool {
	return g.Items != nil
}

func (g GroupResult) MarshalJSON() ([]byte, error) {
	var items any
	switch v := g.Items.(type) {
	case ItemList:
		if v == nil {
			v = ItemList{}
		}
		items = v
	case GroupList:
		if v == nil {
			v = GroupList{}
		}
		items = v
	}
	return json.Marshal(struct {
		Key   any   `json:"key"`
		Count int64 `json:"count"`
		Items any   `json:"items"`
	}{Key: g.Key, Count: g.Count, Items: items})
}

// QueryResult is the composed response for one query.
type QueryResult struct {
	Grouped    bool
	Items      ItemList
	Groups     GroupList
	TotalCount *int64
	GroupCount *int64
}

func (r QueryResult) MarshalJSON() ([]byte, error) {
	var data any = r.Items
	if r.Grouped {
		data = r.Groups
		if r.Groups == nil {
			data = GroupList{}
		}
	} else if r.Items == nil {
		data = ItemList{}
	}
	return json.Marshal(struct {
		Data       any    `json:"data"`
		TotalCount *int64 `json:"totalCount,omitempty"`
		GroupCount *int64 `json:"groupCount,omitempty"`
	}{Data: data, TotalCount: r.TotalCount, GroupCount: r.GroupCount})
}

// FindOptions configures a flat row fetch.
type FindOptions struct {
	Filter Filter
	Sort   []SortSpec
	Skip   int
	Take   int
}

// IDCodec maps between a collection's internal identifiers and their
// opaque external string form.
type IDCodec interface {
	EncodeID(id any) (string, error)
	DecodeID(external string) (any, error)
}

// Collection is the read-only query surface a store exposes.
type Collection interface {
	IDCodec

	Name() string

	// Find returns rows matching opts.Filter, sorted and paged.
	Find(ctx context.Context, opts FindOptions) ([]Row, error)
	// Aggregate runs a pipeline that ends in grouped buckets.
	Aggregate(ctx context.Context, pipeline Pipeline) ([]Bucket, error)
	// Count runs a pipeline ending in a CountStage. The result holds the
	// emitted count rows and is empty when no input reached the count stage.
	Count(ctx context.Context, pipeline Pipeline) ([]int64, error)
	// Get returns the row with the given internal id or ErrNotFound.
	Get(ctx context.Context, id any) (Row, error)
}
