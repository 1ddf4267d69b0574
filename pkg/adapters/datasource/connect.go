package datasource

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/logging"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/retry"
)

// Connect opens a pool with open, retrying transient failures until
// ConnectTimeout elapses. open must verify the connection (ping) and release
// anything it allocated when it fails. Errors come back classified as
// connection failures or timeouts; classifier may refine them.
func Connect[T PoolConnector](ctx context.Context, conn config.ConnectionConfig, classifier apperrors.Classifier, logger *zap.Logger, open func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, conn.ConnectTimeout)
	defer cancel()

	attempt := 0
	pool, err := retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() (T, error) {
		attempt++
		p, err := open(ctx)
		if err != nil {
			logger.Debug("Connection attempt failed",
				zap.String("endpoint", conn.Redacted()),
				zap.Int("attempt", attempt),
				logging.ErrorField(err))
		}
		return p, err
	})
	if err != nil {
		var zero T
		return zero, ClassifyConnectError("connect "+conn.Redacted(), err, classifier)
	}

	logger.Info("Connected",
		zap.String("endpoint", conn.Redacted()),
		zap.String("pool", pool.GetType()),
		zap.Int("attempts", attempt))
	return pool, nil
}

// ClassifyConnectError maps a failure while connecting: deadline expiry is a
// timeout, unknown errors are connection failures.
func ClassifyConnectError(op string, err error, classifier apperrors.Classifier) error {
	return apperrors.Classify(op, err, classifier, apperrors.ErrConnectionTimeout, apperrors.ErrConnectionFailed)
}

// ClassifyQueryError maps a failure of a catalog or sample query.
func ClassifyQueryError(op string, err error, classifier apperrors.Classifier) error {
	return apperrors.Classify(op, err, classifier, apperrors.ErrConnectionTimeout, apperrors.ErrQueryFailed)
}

// ConfigureSQLPool applies pool sizing from conn to a database/sql pool.
func ConfigureSQLPool(db *sql.DB, conn config.ConnectionConfig) {
	db.SetMaxOpenConns(conn.MaxConnections)
	idle := conn.MinIdleConnections
	if idle > conn.MaxConnections {
		idle = conn.MaxConnections
	}
	db.SetMaxIdleConns(idle)
	db.SetConnMaxIdleTime(conn.IdleTimeout)
}

// OpenSQL opens a database/sql pool through Connect and pings it.
func OpenSQL(ctx context.Context, dbType models.DatabaseType, conn config.ConnectionConfig, classifier apperrors.Classifier, logger *zap.Logger, open func() (*sql.DB, error)) (*SQLPoolWrapper, error) {
	return Connect(ctx, conn, classifier, logger, func(ctx context.Context) (*SQLPoolWrapper, error) {
		db, err := open()
		if err != nil {
			return nil, fmt.Errorf("open %s pool: %w", dbType, err)
		}
		ConfigureSQLPool(db, conn)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewSQLPoolWrapper(db, dbType), nil
	})
}
