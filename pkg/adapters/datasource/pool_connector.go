package datasource

import (
	"context"

	"go.uber.org/zap"
)

// PoolStats is a point-in-time view of a connection pool.
type PoolStats struct {
	Open  int
	InUse int
	Idle  int
	Max   int
}

// PoolConnector abstracts connection pool operations across database types
// (pgxpool, database/sql, the MongoDB client pool).
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the database type for logging/stats
	GetType() string

	// Stats reports current pool usage
	Stats() PoolStats
}

// LogPoolStats reports pool usage at debug level once stage has finished.
func LogPoolStats(logger *zap.Logger, pool PoolConnector, stage string) {
	s := pool.Stats()
	logger.Debug("Connection pool usage",
		zap.String("db_type", pool.GetType()),
		zap.String("stage", stage),
		zap.Int("open", s.Open),
		zap.Int("in_use", s.InUse),
		zap.Int("idle", s.Idle),
		zap.Int("max", s.Max))
}
