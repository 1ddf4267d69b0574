package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource/mongodb"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource/mssql"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource/mysql"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource/postgres"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource/sqlite"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	configPath := "dbsurveyor.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath, Version)
	if err != nil {
		log.Fatalf("Failed to load config: %s", logging.SanitizeError(err))
	}

	logger, err := logging.NewLogger(cfg.Logging.Options())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	for _, v := range []*string{&postgres.CollectorVersion, &mysql.CollectorVersion, &sqlite.CollectorVersion, &mssql.CollectorVersion, &mongodb.CollectorVersion} {
		*v = Version
	}

	if cfg.DatabaseURL == "" {
		logger.Fatal("DBSURVEYOR_DATABASE_URL is not set")
	}
	// The URL lives in the adapter's scoped secret from here on.
	connString := cfg.DatabaseURL
	cfg.DatabaseURL = ""

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, connString, cfg, logger); err != nil {
		logger.Error("Collection failed", logging.ErrorField(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, connString string, cfg *config.Config, logger *zap.Logger) error {
	adapter, err := datasource.NewAdapter(ctx, connString, datasource.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = adapter.Close() }()

	conn := adapter.ConnectionConfig()
	logger.Info("Connected",
		zap.String("database_type", string(adapter.DatabaseType())),
		zap.String("target", conn.Redacted()))

	if err := adapter.TestConnection(ctx); err != nil {
		return err
	}

	schema, err := adapter.CollectSchema(ctx)
	if err != nil {
		return err
	}

	if cfg.Collection.SampleData && adapter.SupportsFeature(datasource.FeatureDataSampling) {
		samples, err := adapter.SampleTables(ctx, schema, cfg.Sampling)
		if err != nil {
			return err
		}
		schema.Samples = samples
	}

	logger.Info("Collection complete",
		zap.String("target", conn.Redacted()),
		zap.Int("tables", len(schema.Tables)),
		zap.Int("views", len(schema.Views)),
		zap.Int("samples", len(schema.Samples)),
		zap.Int("warnings", len(schema.CollectionMetadata.Warnings)))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(schema)
}
