package postgres

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gabisonia/go-gridquery/griddata"
)

func testCollection() *PostgresCollection {
	store := &PostgresStore{opts: DefaultStoreOptions()}
	return store.newCollectionHandle("rows")
}

func TestBuildAggregateSQL_GroupSortPage(t *testing.T) {
	c := testCollection()

	plan, err := c.buildAggregateSQL(griddata.Pipeline{
		griddata.MatchStage{Filter: griddata.Eq("a", "x")},
		griddata.GroupStage{Selector: "g", Count: true},
		griddata.SortKeysStage{},
		griddata.SkipStage{N: 2},
		griddata.LimitStage{N: 3},
	})
	if err != nil {
		t.Fatalf("buildAggregateSQL: %v", err)
	}

	expected := `SELECT NULLIF(("doc" #> ARRAY['g']), 'null'::jsonb) AS "key", COUNT(*) AS "count" FROM "public"."rows" WHERE (("doc" #> ARRAY['a']) = $1::jsonb) GROUP BY 1 ORDER BY 1 ASC NULLS FIRST OFFSET $2 LIMIT $3`
	if plan.query != expected {
		t.Fatalf("unexpected SQL\nwant: %s\n got: %s", expected, plan.query)
	}
	expectedArgs := []any{[]byte(`"x"`), 2, 3}
	if !reflect.DeepEqual(plan.args, expectedArgs) {
		t.Fatalf("unexpected args: %#v", plan.args)
	}
	if !plan.group.Count || plan.group.Items {
		t.Fatalf("unexpected group stage: %#v", plan.group)
	}
}

func TestBuildAggregateSQL_ItemsDescending(t *testing.T) {
	c := testCollection()

	plan, err := c.buildAggregateSQL(griddata.Pipeline{
		griddata.GroupStage{Selector: "owner.name", Count: true, Items: true},
		griddata.SortKeysStage{Desc: true},
	})
	if err != nil {
		t.Fatalf("buildAggregateSQL: %v", err)
	}

	expected := `SELECT NULLIF(("doc" #> ARRAY['owner', 'name']), 'null'::jsonb) AS "key", COUNT(*) AS "count", jsonb_agg(jsonb_build_object('id', "id"::text, 'doc', "doc")) AS "items" FROM "public"."rows" GROUP BY 1 ORDER BY 1 DESC NULLS LAST`
	if plan.query != expected {
		t.Fatalf("unexpected SQL\nwant: %s\n got: %s", expected, plan.query)
	}
	if len(plan.args) != 0 {
		t.Fatalf("unexpected args: %#v", plan.args)
	}
}

func TestBuildAggregateSQL_RequiresGroup(t *testing.T) {
	c := testCollection()

	_, err := c.buildAggregateSQL(griddata.Pipeline{griddata.CountStage{}})
	if !errors.Is(err, griddata.ErrUnsupportedPipeline) {
		t.Fatalf("expected ErrUnsupportedPipeline, got %v", err)
	}
}

func TestBuildCountSQL_DistinctGroups(t *testing.T) {
	c := testCollection()

	plan, err := c.buildCountSQL(griddata.Pipeline{
		griddata.MatchStage{Filter: griddata.Eq("a", "x")},
		griddata.GroupStage{Selector: "h"},
		griddata.CountStage{},
	})
	if err != nil {
		t.Fatalf("buildCountSQL: %v", err)
	}

	expected := `SELECT COUNT(*) FROM (SELECT NULLIF(("doc" #> ARRAY['h']), 'null'::jsonb) AS "key" FROM "public"."rows" WHERE (("doc" #> ARRAY['a']) = $1::jsonb) GROUP BY 1) AS "sub"`
	if plan.query != expected {
		t.Fatalf("unexpected SQL\nwant: %s\n got: %s", expected, plan.query)
	}
}

func TestBuildCountSQL_Rows(t *testing.T) {
	c := testCollection()

	plan, err := c.buildCountSQL(griddata.Pipeline{griddata.CountStage{}})
	if err != nil {
		t.Fatalf("buildCountSQL: %v", err)
	}
	if plan.query != `SELECT COUNT(*) FROM "public"."rows"` {
		t.Fatalf("unexpected SQL: %s", plan.query)
	}

	paged, err := c.buildCountSQL(griddata.Pipeline{griddata.LimitStage{N: 5}, griddata.CountStage{}})
	if err != nil {
		t.Fatalf("buildCountSQL: %v", err)
	}
	if paged.query != `SELECT COUNT(*) FROM (SELECT 1 FROM "public"."rows" LIMIT $1) AS "sub"` {
		t.Fatalf("unexpected SQL: %s", paged.query)
	}
}

func TestBuildFindSQL(t *testing.T) {
	c := testCollection()

	plan, err := c.buildFindSQL(griddata.FindOptions{
		Filter: griddata.Truthy("flag"),
		Sort:   []griddata.SortSpec{{Selector: "n", Desc: true}, {Selector: "m"}},
		Skip:   1,
		Take:   2,
	})
	if err != nil {
		t.Fatalf("buildFindSQL: %v", err)
	}

	expected := `SELECT "id"::text, "doc" FROM "public"."rows" WHERE (("doc" #> ARRAY['flag']) = 'true'::jsonb) ORDER BY NULLIF(("doc" #> ARRAY['n']), 'null'::jsonb) DESC NULLS LAST, NULLIF(("doc" #> ARRAY['m']), 'null'::jsonb) ASC NULLS FIRST OFFSET $1 LIMIT $2`
	if plan.query != expected {
		t.Fatalf("unexpected SQL\nwant: %s\n got: %s", expected, plan.query)
	}
	if !reflect.DeepEqual(plan.args, []any{1, 2}) {
		t.Fatalf("unexpected args: %#v", plan.args)
	}
}

func TestBuildInsertBatch(t *testing.T) {
	c := testCollection()

	ids, query, args, err := c.buildInsertBatch([]map[string]any{{"a": 1}, nil})
	if err != nil {
		t.Fatalf("buildInsertBatch: %v", err)
	}
	if len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if query != `INSERT INTO "public"."rows" ("id", "doc") VALUES ($1::uuid, $2::jsonb), ($3::uuid, $4::jsonb)` {
		t.Fatalf("unexpected SQL: %s", query)
	}
	if string(args[1].([]byte)) != `{"a":1}` || string(args[3].([]byte)) != `{}` {
		t.Fatalf("unexpected payloads: %#v", args)
	}
}

func TestParseBucketItems(t *testing.T) {
	rows, err := parseBucketItems([]byte(`[{"id":"6f1c2a36-3c1f-4c4e-9d4e-0e1f3d1b2a10","doc":{"g":"a"}}]`))
	if err != nil {
		t.Fatalf("parseBucketItems: %v", err)
	}
	if len(rows) != 1 || rows[0].Doc["g"] != "a" {
		t.Fatalf("unexpected rows: %#v", rows)
	}

	key, err := parseKey(nil)
	if err != nil || key != nil {
		t.Fatalf("expected nil key for SQL NULL, got %#v (%v)", key, err)
	}
}
