package datasource

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// PostgresPoolWrapper wraps *pgxpool.Pool to implement PoolConnector
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

// NewPostgresPoolWrapper creates a new PostgreSQL pool wrapper
func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{pool: pool}
}

// Ping verifies the PostgreSQL connection is alive
func (w *PostgresPoolWrapper) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// Close closes all connections in the PostgreSQL pool
func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

// GetType returns the database type
func (w *PostgresPoolWrapper) GetType() string {
	return string(models.DatabaseTypePostgreSQL)
}

func (w *PostgresPoolWrapper) Stats() PoolStats {
	s := w.pool.Stat()
	return PoolStats{
		Open:  int(s.TotalConns()),
		InUse: int(s.AcquiredConns()),
		Idle:  int(s.IdleConns()),
		Max:   int(s.MaxConns()),
	}
}

// GetPool returns the underlying *pgxpool.Pool
func (w *PostgresPoolWrapper) GetPool() *pgxpool.Pool {
	return w.pool
}

// SQLPoolWrapper wraps a database/sql pool (MySQL, SQLite, SQL Server).
type SQLPoolWrapper struct {
	db     *sql.DB
	dbType models.DatabaseType
}

// NewSQLPoolWrapper creates a wrapper for db, labelled with dbType.
func NewSQLPoolWrapper(db *sql.DB, dbType models.DatabaseType) *SQLPoolWrapper {
	return &SQLPoolWrapper{db: db, dbType: dbType}
}

func (w *SQLPoolWrapper) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *SQLPoolWrapper) Close() error {
	return w.db.Close()
}

func (w *SQLPoolWrapper) GetType() string {
	return string(w.dbType)
}

func (w *SQLPoolWrapper) Stats() PoolStats {
	s := w.db.Stats()
	return PoolStats{
		Open:  s.OpenConnections,
		InUse: s.InUse,
		Idle:  s.Idle,
		Max:   s.MaxOpenConnections,
	}
}

// GetDB returns the underlying *sql.DB
func (w *SQLPoolWrapper) GetDB() *sql.DB {
	return w.db
}

// MongoClientWrapper wraps *mongo.Client, which pools connections internally.
type MongoClientWrapper struct {
	client         *mongo.Client
	maxPoolSize    int
	disconnectWait time.Duration
}

// NewMongoClientWrapper creates a wrapper; maxPoolSize is reported by Stats.
func NewMongoClientWrapper(client *mongo.Client, maxPoolSize int) *MongoClientWrapper {
	return &MongoClientWrapper{client: client, maxPoolSize: maxPoolSize, disconnectWait: 10 * time.Second}
}

func (w *MongoClientWrapper) Ping(ctx context.Context) error {
	return w.client.Ping(ctx, readpref.PrimaryPreferred())
}

func (w *MongoClientWrapper) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), w.disconnectWait)
	defer cancel()
	return w.client.Disconnect(ctx)
}

func (w *MongoClientWrapper) GetType() string {
	return string(models.DatabaseTypeMongoDB)
}

// Stats reports in-progress sessions as in-use; the driver does not expose
// per-connection counts.
func (w *MongoClientWrapper) Stats() PoolStats {
	return PoolStats{InUse: w.client.NumberSessionsInProgress(), Max: w.maxPoolSize}
}

// GetClient returns the underlying *mongo.Client
func (w *MongoClientWrapper) GetClient() *mongo.Client {
	return w.client
}

var (
	_ PoolConnector = (*PostgresPoolWrapper)(nil)
	_ PoolConnector = (*SQLPoolWrapper)(nil)
	_ PoolConnector = (*MongoClientWrapper)(nil)
)
