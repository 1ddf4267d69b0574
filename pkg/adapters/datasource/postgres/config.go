package postgres

import (
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/logging"
)

// DefaultPort is used when the connection string names none.
const DefaultPort = 5432

// ParseConnectionString parses a postgres:// or postgresql:// URL (or a
// key=value DSN) into a pool configuration sized and tuned from conn. The
// returned ConnectionConfig carries the endpoint identity without the
// password.
func ParseConnectionString(connString string, conn config.ConnectionConfig) (*pgxpool.Config, config.ConnectionConfig, error) {
	pc, err := pgxpool.ParseConfig(connString)
	if err != nil {
		// The driver error may echo the URL; keep only its sanitized text.
		return nil, conn, fmt.Errorf("parse postgres connection string: %s", logging.SanitizeError(err))
	}

	cc := pc.ConnConfig
	port := int(cc.Port)
	if port == 0 {
		port = DefaultPort
	}
	conn = conn.WithEndpoint(cc.Host, port, cc.Database, cc.User)

	pc.MaxConns = int32(conn.MaxConnections)
	pc.MinConns = int32(conn.MinIdleConnections)
	pc.MaxConnIdleTime = conn.IdleTimeout
	cc.ConnectTimeout = conn.ConnectTimeout

	if cc.RuntimeParams == nil {
		cc.RuntimeParams = make(map[string]string)
	}
	if conn.ApplicationName != "" {
		cc.RuntimeParams["application_name"] = conn.ApplicationName
	}
	cc.RuntimeParams["statement_timeout"] = strconv.FormatInt(conn.QueryTimeout.Milliseconds(), 10)
	if conn.ReadOnly {
		cc.RuntimeParams["default_transaction_read_only"] = "on"
	}
	return pc, conn, nil
}
