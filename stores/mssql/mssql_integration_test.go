//go:build integration

package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/gabisonia/go-gridquery/gridquery"
	_ "github.com/microsoft/go-mssqldb"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	integrationMSSQLUser     = "sa"
	integrationMSSQLPassword = "YourStrong!Passw0rd"
	integrationMSSQLDatabase = "gridquery_test"
)

var (
	schemaSeq            atomic.Uint64
	integrationDSN       string
	integrationContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dsn := strings.TrimSpace(os.Getenv("MSSQL_TEST_DSN"))
	if dsn == "" {
		container, generatedDSN, err := startMSSQLContainer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start integration container: %v\n", err)
			os.Exit(1)
		}
		integrationContainer = container
		integrationDSN = generatedDSN
	} else {
		integrationDSN = dsn
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

func startMSSQLContainer(ctx context.Context) (testcontainers.Container, string, error) {
	request := testcontainers.ContainerRequest{
		Image:        "mcr.microsoft.com/mssql/server:2022-latest",
		ExposedPorts: []string{"1433/tcp"},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": integrationMSSQLPassword,
			"MSSQL_PID":         "Developer",
		},
		WaitingFor: wait.ForLog("SQL Server is now ready for client connections").
			WithStartupTimeout(4 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: request,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start sql server container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", fmt.Errorf("resolve container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "1433/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", fmt.Errorf("resolve container port: %w", err)
	}

	masterDSN := buildMSSQLDSN(host, mappedPort.Port(), "master")
	if err := waitForDatabase(ctx, masterDSN); err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", err
	}
	if err := ensureDatabase(ctx, masterDSN, integrationMSSQLDatabase); err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", err
	}

	dsn := buildMSSQLDSN(host, mappedPort.Port(), integrationMSSQLDatabase)
	if err := waitForDatabase(ctx, dsn); err != nil {
		_ = container.Terminate(context.Background())
		return nil, "", err
	}

	return container, dsn, nil
}

func buildMSSQLDSN(host string, port string, database string) string {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(integrationMSSQLUser, integrationMSSQLPassword),
		Host:   net.JoinHostPort(host, port),
	}

	query := u.Query()
	query.Set("database", database)
	query.Set("encrypt", "disable")
	u.RawQuery = query.Encode()

	return u.String()
}

func waitForDatabase(parent context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()

	for {
		db, err := sql.Open("sqlserver", dsn)
		if err == nil {
			pingCtx, pingCancel := context.WithTimeout(ctx, 4*time.Second)
			pingErr := db.PingContext(pingCtx)
			pingCancel()
			_ = db.Close()
			if pingErr == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("connect integration database: %w", err)
			}
			return fmt.Errorf("wait for integration database: %w", ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func ensureDatabase(ctx context.Context, dsn string, database string) error {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return fmt.Errorf("connect master database: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf("IF DB_ID(N'%s') IS NULL CREATE DATABASE %s", escapeSQLString(database), quoteIdent(database))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure integration database: %w", err)
	}

	return nil
}

func integrationDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := strings.TrimSpace(integrationDSN)
	if dsn == "" {
		t.Fatal("integration DSN is not initialized")
	}

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("ping db: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func newTestStore(t *testing.T, db *sql.DB) *MSSQLStore {
	t.Helper()

	seq := schemaSeq.Add(1)
	schema := fmt.Sprintf("it_%d_%d", time.Now().UnixNano(), seq)
	schema = strings.ReplaceAll(schema, "-", "_")

	store, err := NewStore(db, StoreOptions{
		Schema:          schema,
		StrictByDefault: true,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		cleanupQuery := fmt.Sprintf(`
			DECLARE @schema SYSNAME = N'%s';
			DECLARE @dropSql NVARCHAR(MAX) = N'';
			SELECT @dropSql = @dropSql + N'DROP TABLE ' + QUOTENAME(SCHEMA_NAME(schema_id)) + N'.' + QUOTENAME(name) + N';'
			FROM sys.tables
			WHERE schema_id = SCHEMA_ID(@schema);

			IF LEN(@dropSql) > 0
			BEGIN
				EXEC sp_executesql @dropSql;
			END

			IF SCHEMA_ID(@schema) IS NOT NULL
			BEGIN
				EXEC(N'DROP SCHEMA ' + QUOTENAME(@schema));
			END
		`, escapeSQLString(schema))
		_, _ = db.ExecContext(ctx, cleanupQuery)
	})

	return store
}

func seededCollection(t *testing.T, ctx context.Context, docs []map[string]any) *MSSQLCollection {
	t.Helper()

	store := newTestStore(t, integrationDB(t))
	collection, err := store.EnsureCollection(ctx, griddata.CollectionSpec{Name: "rows"})
	if err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if _, err := collection.Insert(ctx, docs); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return collection
}

func TestIntegrationEnsureCollection(t *testing.T) {
	db := integrationDB(t)
	store := newTestStore(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		if _, err := store.EnsureCollection(ctx, griddata.CollectionSpec{Name: "docs", Mode: griddata.EnsureStrict}); err != nil {
			t.Fatalf("EnsureCollection call %d: %v", i+1, err)
		}
	}

	exists, err := store.tableExists(ctx, "docs")
	if err != nil {
		t.Fatalf("tableExists: %v", err)
	}
	if !exists {
		t.Fatalf("expected collection table to exist")
	}
}

func TestIntegrationEnsureCollectionStrictMismatch(t *testing.T) {
	db := integrationDB(t)
	store := newTestStore(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.ensureBaseSchema(ctx); err != nil {
		t.Fatalf("ensureBaseSchema: %v", err)
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s NVARCHAR(64) NOT NULL PRIMARY KEY)",
		qualifiedTable(store.opts.Schema, "legacy"), quoteIdent(idColumn)))
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}

	_, strictErr := store.EnsureCollection(ctx, griddata.CollectionSpec{Name: "legacy", Mode: griddata.EnsureStrict})
	_, migrateErr := store.EnsureCollection(ctx, griddata.CollectionSpec{Name: "legacy", Mode: griddata.EnsureAutoMigrate})

	if !errors.Is(strictErr, griddata.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", strictErr)
	}
	if migrateErr != nil {
		t.Fatalf("auto-migrate: %v", migrateErr)
	}
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
	svc, err := gridquery.NewService(collection, gridquery.DefaultOptions())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Query(ctx, griddata.QueryDescriptor{
		Filter: []any{"b", "<", float64(4)},
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

	if len(result.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(result.Groups))
	}
	if result.Groups[0].Key != "x" || result.Groups[0].Count != 2 {
		t.Fatalf("unexpected x group: %#v", result.Groups[0])
	}
	if *result.GroupCount != 2 || *result.TotalCount != 4 {
		t.Fatalf("unexpected counts: groups=%d total=%d", *result.GroupCount, *result.TotalCount)
	}
}

func TestIntegrationFlatQueryAndFetch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := seededCollection(t, ctx, []map[string]any{
		{"name": "box", "age": 3, "at": "2024-01-10"},
		{"name": "bat", "age": 7, "at": "2024-02-10"},
		{"name": "cat", "age": 9, "at": "2024-03-10", "flag": true},
	})
	svc, err := gridquery.NewService(collection, gridquery.DefaultOptions())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Query(ctx, griddata.QueryDescriptor{
		Filter:            []any{[]any{"at", ">", "2024-02-01"}, "and", []any{"name", "notcontains", "x"}},
		Sort:              []griddata.SortSpec{{Selector: "age", Desc: true}},
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
	if fetched["name"] != "cat" || fetched["at"] != "2024-03-10" {
		t.Fatalf("fetch returned a different row: %#v", fetched)
	}

	if _, err := svc.Fetch(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, griddata.ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
}
