package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"testing"

	_ "github.com/go-sql-driver/mysql" // MySQL driver for fixture loading
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"github.com/testcontainers/testcontainers-go"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Images used by the integration fixtures.
const (
	PostgresImage = "postgres:17-alpine"
	MySQLImage    = "mysql:8.4"
	MongoImage    = "mongo:7"
)

// Credentials of the fixture databases. They only exist inside throwaway
// containers.
const (
	TestDatabase = "survey"
	TestUser     = "surveyor"
	TestPassword = "test_password"
)

// TestDB is a running database container plus the URL the collector should
// be given for it.
type TestDB struct {
	Container testcontainers.Container
	URL       string
}

var (
	sharedPostgres     *TestDB
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error

	sharedMySQL     *TestDB
	sharedMySQLOnce sync.Once
	sharedMySQLErr  error

	sharedMongo     *TestDB
	sharedMongoOnce sync.Once
	sharedMongoErr  error
)

// GetPostgres returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetPostgres(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = setupPostgres(context.Background())
	})
	if sharedPostgresErr != nil {
		t.Fatalf("Failed to setup postgres container: %v", sharedPostgresErr)
	}
	return sharedPostgres
}

func setupPostgres(ctx context.Context) (*TestDB, error) {
	container, err := tcpostgres.Run(ctx, PostgresImage,
		tcpostgres.WithDatabase(TestDatabase),
		tcpostgres.WithUsername(TestUser),
		tcpostgres.WithPassword(TestPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	return &TestDB{Container: container, URL: connStr}, nil
}

// ExecPostgres runs fixture statements against the shared PostgreSQL
// container with a writable connection.
func ExecPostgres(t *testing.T, db *TestDB, statements ...string) {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, db.URL)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("fixture statement failed: %v", err)
		}
	}
}

// GetMySQL returns a shared MySQL container for integration tests.
func GetMySQL(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMySQLOnce.Do(func() {
		sharedMySQL, sharedMySQLErr = setupMySQL(context.Background())
	})
	if sharedMySQLErr != nil {
		t.Fatalf("Failed to setup mysql container: %v", sharedMySQLErr)
	}
	return sharedMySQL
}

func setupMySQL(ctx context.Context) (*TestDB, error) {
	container, err := tcmysql.Run(ctx, MySQLImage,
		tcmysql.WithDatabase(TestDatabase),
		tcmysql.WithUsername(TestUser),
		tcmysql.WithPassword(TestPassword),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start mysql container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	u := url.URL{
		Scheme: "mysql",
		User:   url.UserPassword(TestUser, TestPassword),
		Host:   fmt.Sprintf("%s:%s", host, port.Port()),
		Path:   "/" + TestDatabase,
	}
	return &TestDB{Container: container, URL: u.String()}, nil
}

// ExecMySQL runs fixture statements against the shared MySQL container. The
// statements run as root: with binary logging on, creating stored functions
// and triggers needs SUPER.
func ExecMySQL(t *testing.T, db *TestDB, statements ...string) {
	t.Helper()
	ctx := context.Background()

	host, err := db.Container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := db.Container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	dsn := fmt.Sprintf("root:%s@tcp(%s:%s)/%s?parseTime=true", TestPassword, host, port.Port(), TestDatabase)

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open mysql: %v", err)
	}
	defer conn.Close()

	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("fixture statement failed: %v", err)
		}
	}
}

// GetMongo returns a shared MongoDB container. The URL names TestDatabase
// and authenticates against admin, where the root user lives.
func GetMongo(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMongoOnce.Do(func() {
		sharedMongo, sharedMongoErr = setupMongo(context.Background())
	})
	if sharedMongoErr != nil {
		t.Fatalf("Failed to setup mongodb container: %v", sharedMongoErr)
	}
	return sharedMongo
}

func setupMongo(ctx context.Context) (*TestDB, error) {
	container, err := tcmongodb.Run(ctx, MongoImage,
		tcmongodb.WithUsername(TestUser),
		tcmongodb.WithPassword(TestPassword),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get mongodb connection string: %w", err)
	}
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mongodb connection string: %w", err)
	}
	u.Path = "/" + TestDatabase
	u.RawQuery = "authSource=admin"
	return &TestDB{Container: container, URL: u.String()}, nil
}

// InsertMongo replaces collection in TestDatabase with docs.
func InsertMongo(t *testing.T, db *TestDB, collection string, docs ...any) {
	t.Helper()
	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(db.URL))
	if err != nil {
		t.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	coll := client.Database(TestDatabase).Collection(collection)
	if err := coll.Drop(ctx); err != nil {
		t.Fatalf("failed to drop %s: %v", collection, err)
	}
	if len(docs) == 0 {
		return
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		t.Fatalf("failed to insert into %s: %v", collection, err)
	}
}

// RunMongo runs a database command against TestDatabase, for fixtures such
// as views and validators that InsertMongo cannot express.
func RunMongo(t *testing.T, db *TestDB, command any) {
	t.Helper()
	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(db.URL))
	if err != nil {
		t.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	if err := client.Database(TestDatabase).RunCommand(ctx, command).Err(); err != nil {
		t.Fatalf("mongodb command failed: %v", err)
	}
}
