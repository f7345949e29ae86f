package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/gabisonia/go-gridquery/griddata"
)

func TestCollection_InsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	coll, err := NewCollection("items")
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}

	ids, err := coll.Insert(ctx, []map[string]any{{"name": "a", "at": "2024-03-01"}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	external, err := coll.EncodeID(ids[0])
	if err != nil {
		t.Fatalf("EncodeID: %v", err)
	}
	internal, err := coll.DecodeID(external)
	if err != nil {
		t.Fatalf("DecodeID: %v", err)
	}
	row, err := coll.Get(ctx, internal)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Doc["name"] != "a" {
		t.Fatalf("unexpected row: %#v", row)
	}
	if row.Doc["at"] != "2024-03-01" {
		t.Fatalf("stored value was rewritten: %#v", row.Doc["at"])
	}
}

func TestCollection_GetMissing(t *testing.T) {
	coll, err := NewCollection("items")
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	id, err := coll.DecodeID("00000000-0000-0000-0000-000000000001")
	if err != nil {
		t.Fatalf("DecodeID: %v", err)
	}
	if _, err := coll.Get(context.Background(), id); !errors.Is(err, griddata.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCollection_DecodeInvalid(t *testing.T) {
	coll, err := NewCollection("items")
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	if _, err := coll.DecodeID("not-an-id"); !errors.Is(err, griddata.ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
}

func TestCollection_InsertCopiesDocuments(t *testing.T) {
	ctx := context.Background()
	coll, err := NewCollection("items")
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	doc := map[string]any{"name": "a"}
	if _, err := coll.Insert(ctx, []map[string]any{doc}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	doc["name"] = "changed"

	rows, err := coll.Find(ctx, griddata.FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(rows) != 1 || rows[0].Doc["name"] != "a" {
		t.Fatalf("stored document was aliased: %#v", rows)
	}
}

func TestNewCollection_RejectsEmptyName(t *testing.T) {
	if _, err := NewCollection("  "); !errors.Is(err, griddata.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
