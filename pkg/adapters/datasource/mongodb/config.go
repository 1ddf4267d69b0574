package mongodb

import (
	"fmt"
	"net"
	"strconv"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/logging"
)

// DefaultPort is used when the connection string names none.
const DefaultPort = 27017

// ParseConnectionString accepts a mongodb:// or mongodb+srv:// URI and
// returns client options tuned from conn. The returned ConnectionConfig
// carries the first host, the database named in the path (empty for a
// whole-server survey) and the user, never the password.
func ParseConnectionString(connString string, conn config.ConnectionConfig) (*options.ClientOptions, config.ConnectionConfig, error) {
	cs, err := connstring.ParseAndValidate(connString)
	if err != nil {
		return nil, conn, fmt.Errorf("parse mongodb connection string: %s", logging.SanitizeError(err))
	}
	if len(cs.Hosts) == 0 {
		return nil, conn, fmt.Errorf("mongodb connection string has no host")
	}

	host, port := cs.Hosts[0], DefaultPort
	if h, p, err := net.SplitHostPort(cs.Hosts[0]); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	conn = conn.WithEndpoint(host, port, cs.Database, cs.Username)

	opts := options.Client().ApplyURI(connString)
	if err := opts.Validate(); err != nil {
		return nil, conn, fmt.Errorf("invalid mongodb options: %s", logging.SanitizeError(err))
	}
	if cs.AppName == "" && conn.ApplicationName != "" {
		opts.SetAppName(conn.ApplicationName)
	}
	if !cs.ConnectTimeoutSet {
		opts.SetConnectTimeout(conn.ConnectTimeout)
	}
	if !cs.ServerSelectionTimeoutSet {
		opts.SetServerSelectionTimeout(conn.ConnectTimeout)
	}
	if !cs.MaxPoolSizeSet {
		opts.SetMaxPoolSize(uint64(conn.MaxConnections))
	}
	if !cs.MinPoolSizeSet {
		opts.SetMinPoolSize(uint64(min(conn.MinIdleConnections, conn.MaxConnections)))
	}
	if !cs.MaxConnIdleTimeSet {
		opts.SetMaxConnIdleTime(conn.IdleTimeout)
	}
	// Reads may be served by secondaries; the collector never writes.
	if conn.ReadOnly && cs.ReadPreference == "" {
		opts.SetReadPreference(readpref.SecondaryPreferred())
	}
	return opts, conn, nil
}
