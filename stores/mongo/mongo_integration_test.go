//go:build integration

package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/gabisonia/go-gridquery/gridquery"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	databaseSeq          atomic.Uint64
	integrationURI       string
	integrationContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	uri := strings.TrimSpace(os.Getenv("MONGO_TEST_URI"))
	if uri == "" {
		container, generatedURI, err := startMongoContainer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start integration container: %v\n", err)
			os.Exit(1)
		}
		integrationContainer = container
		integrationURI = generatedURI
	} else {
		integrationURI = uri
	}

	exitCode := m.Run()

	if integrationContainer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := integrationContainer.Terminate(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate integration container: %v\n", err)
			if exitCode == 0 {
				exitCode = 1
			}
		}
	}

	os.Exit(exitCode)
}

func startMongoContainer(ctx context.Context) (testcontainers.Container, string, error) {
	request := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForLog("Waiting for connections").
			WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: request,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start mongo container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", fmt.Errorf("resolve container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", fmt.Errorf("resolve container port: %w", err)
	}

	return container, fmt.Sprintf("mongodb://%s:%s", host, mappedPort.Port()), nil
}

func newTestStore(t *testing.T) *MongoStore {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(integrationURI))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	db := client.Database(fmt.Sprintf("it_%d_%d", time.Now().UnixNano(), databaseSeq.Add(1)))
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cleanupCancel()
		_ = db.Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	})

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func seededCollection(t *testing.T, ctx context.Context, docs []map[string]any) *MongoCollection {
	t.Helper()

	collection, err := newTestStore(t).Collection("rows")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if _, err := collection.Insert(ctx, docs); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return collection
}

func TestIntegrationGroupedQuery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := seededCollection(t, ctx, []map[string]any{
		{"a": "x", "b": 1, "name": "box"},
		{"a": "x", "b": 1, "name": "bat"},
		{"a": "x", "b": 2, "name": "cat"},
		{"a": "y", "b": 3, "name": "dog"},
		{"b": 4, "name": "eel"},
	})
	if err := collection.EnsureIndexes(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	svc, err := gridquery.NewService(collection, gridquery.DefaultOptions())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Query(ctx, griddata.QueryDescriptor{
		Group: []griddata.GroupSpec{
			{Selector: "a", IsExpanded: true},
			{Selector: "b"},
		},
		RequireGroupCount: true,
		RequireTotalCount: true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if len(result.Groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(result.Groups))
	}
	if result.Groups[0].Key != nil {
		t.Fatalf("expected null key first, got %#v", result.Groups[0].Key)
	}
	if result.Groups[1].Key != "x" || result.Groups[1].Count != 2 {
		t.Fatalf("unexpected x group: %#v", result.Groups[1])
	}
	if *result.GroupCount != 3 || *result.TotalCount != 5 {
		t.Fatalf("unexpected counts: groups=%d total=%d", *result.GroupCount, *result.TotalCount)
	}
}

func TestIntegrationFlatQueryAndFetch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := seededCollection(t, ctx, []map[string]any{
		{"name": "box", "at": "2024-01-10"},
		{"name": "bat", "at": "2024-02-10"},
		{"name": "cat", "at": "2024-03-10", "flag": true},
	})
	svc, err := gridquery.NewService(collection, gridquery.DefaultOptions())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Query(ctx, griddata.QueryDescriptor{
		Filter:            []any{[]any{"at", ">", "2024-02-01"}, "and", []any{"name", "notcontains", "x"}},
		Sort:              []griddata.SortSpec{{Selector: "at", Desc: true}},
		RequireTotalCount: true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Items) != 2 || result.Items[0]["name"] != "cat" || result.Items[1]["name"] != "bat" {
		t.Fatalf("unexpected items: %#v", result.Items)
	}
	if *result.TotalCount != 2 {
		t.Fatalf("unexpected total: %d", *result.TotalCount)
	}

	fetched, err := svc.Fetch(ctx, result.Items[0][griddata.IDField].(string))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetched["name"] != "cat" {
		t.Fatalf("fetch returned a different row: %#v", fetched)
	}

	negated, err := svc.Query(ctx, griddata.QueryDescriptor{Filter: []any{"!", "flag"}})
	if err != nil {
		t.Fatalf("Query negation: %v", err)
	}
	if len(negated.Items) != 2 {
		t.Fatalf("expected rows without the flag, got %#v", negated.Items)
	}

	if _, err := svc.Fetch(ctx, "000000000000000000000000"); !errors.Is(err, griddata.ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
}

func TestIntegrationDateStringFilters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := seededCollection(t, ctx, []map[string]any{
		{"name": "plain", "due": "2024-01-05"},
		{"name": "zoned", "due": "2024-01-05T10:00:00Z"},
		{"name": "native", "due": time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC)},
		{"name": "text", "due": "soon"},
	})
	svc, err := gridquery.NewService(collection, gridquery.DefaultOptions())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	query := func(filter any) griddata.ItemList {
		t.Helper()
		result, err := svc.Query(ctx, griddata.QueryDescriptor{
			Filter: filter,
			Sort:   []griddata.SortSpec{{Selector: "name"}},
		})
		if err != nil {
			t.Fatalf("Query(%v): %v", filter, err)
		}
		return result.Items
	}

	equal := query([]any{"due", "=", "2024-01-05"})
	if len(equal) != 1 || equal[0]["due"] != "2024-01-05" {
		t.Fatalf("unexpected = result: %#v", equal)
	}
	if got := query([]any{"due", ">=", "2024-01-05"}); len(got) != 3 {
		t.Fatalf("expected 3 rows on or after the day, got %#v", got)
	}
	if got := query([]any{"due", "<>", "2024-01-05"}); len(got) != 3 {
		t.Fatalf("expected 3 rows not equal to the day, got %#v", got)
	}
	prefixed := query([]any{"due", "startswith", "2024-01-05"})
	if len(prefixed) != 2 || prefixed[0]["name"] != "plain" || prefixed[1]["name"] != "zoned" {
		t.Fatalf("unexpected startswith result: %#v", prefixed)
	}
}
