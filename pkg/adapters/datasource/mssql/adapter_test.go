//go:build integration

package mssql

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

var fixture = []string{
	`DROP VIEW IF EXISTS dbo.big_orders`,
	`DROP FUNCTION IF EXISTS dbo.order_count`,
	`DROP TABLE IF EXISTS dbo.orders, dbo.customers, dbo.audit_log, dbo.notes`,
	`CREATE TABLE dbo.customers (
		id BIGINT IDENTITY(1,1) CONSTRAINT customers_pk PRIMARY KEY,
		email NVARCHAR(255) NOT NULL CONSTRAINT customers_email_uq UNIQUE,
		active BIT NOT NULL CONSTRAINT customers_active_df DEFAULT 1,
		external_id UNIQUEIDENTIFIER NULL,
		created_at DATETIME2 NOT NULL
	)`,
	`EXEC sys.sp_addextendedproperty @name = N'MS_Description', @value = N'people who buy things',
		@level0type = N'SCHEMA', @level0name = N'dbo', @level1type = N'TABLE', @level1name = N'customers'`,
	`CREATE TABLE dbo.orders (
		id INT IDENTITY(1,1) PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		total DECIMAL(10,2),
		CONSTRAINT orders_customer_fk FOREIGN KEY (customer_id) REFERENCES dbo.customers (id) ON DELETE CASCADE,
		CONSTRAINT orders_total_chk CHECK (total >= 0)
	)`,
	`CREATE INDEX orders_customer_idx ON dbo.orders (customer_id DESC)`,
	`CREATE TABLE dbo.audit_log (message NVARCHAR(MAX), inserted_at DATETIME2 NULL)`,
	`CREATE TABLE dbo.notes (body NVARCHAR(100))`,
	`CREATE VIEW dbo.big_orders AS SELECT id, total FROM dbo.orders WHERE total > 100`,
	`CREATE FUNCTION dbo.order_count(@cust BIGINT) RETURNS INT AS
		BEGIN RETURN (SELECT COUNT(*) FROM dbo.orders WHERE customer_id = @cust) END`,
	`CREATE TRIGGER dbo.orders_touch ON dbo.orders AFTER INSERT, UPDATE AS SET NOCOUNT ON`,
	`INSERT INTO dbo.customers (email, active, external_id, created_at) VALUES
		('a@example.com', 1, '6F9619FF-8B86-D011-B42D-00C04FC964FF', '2024-01-01'),
		('b@example.com', 0, NULL, '2024-02-01'),
		('c@example.com', 1, NULL, '2024-03-01')`,
	`INSERT INTO dbo.orders (customer_id, total) VALUES (1, 10.50), (3, 250.00)`,
	`INSERT INTO dbo.audit_log VALUES ('one', '2024-01-01'), ('two', '2024-01-02')`,
	`INSERT INTO dbo.notes VALUES ('x'), ('y')`,
}

// testURL builds a connection URL from MSSQL_HOST, MSSQL_PORT, MSSQL_USER,
// MSSQL_PASSWORD and MSSQL_DATABASE, skipping the test when any is missing.
func testURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	host := os.Getenv("MSSQL_HOST")
	user := os.Getenv("MSSQL_USER")
	password := os.Getenv("MSSQL_PASSWORD")
	database := os.Getenv("MSSQL_DATABASE")
	if host == "" || user == "" || password == "" || database == "" {
		t.Skip("skipping integration test: MSSQL_HOST, MSSQL_USER, MSSQL_PASSWORD, or MSSQL_DATABASE not set")
	}
	port := os.Getenv("MSSQL_PORT")
	if port == "" {
		port = fmt.Sprint(DefaultPort)
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(user, password),
		Host:     host + ":" + port,
		RawQuery: url.Values{"database": {database}, "encrypt": {"disable"}}.Encode(),
	}
	return u.String()
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	raw := testURL(t)
	ctx := context.Background()

	// Fixtures need a writable session.
	setup := config.DefaultConnectionConfig()
	setup.ReadOnly = false
	mc, conn, err := ParseConnectionString(raw, setup)
	require.NoError(t, err)
	writer, err := NewAdapter(ctx, mc, conn, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	for _, stmt := range fixture {
		_, err := writer.db.ExecContext(ctx, stmt)
		require.NoError(t, err, "fixture statement failed")
	}
	require.NoError(t, writer.Close())

	cfg := config.Default()
	mc, conn, err = ParseConnectionString(raw, cfg.Connection)
	require.NoError(t, err)
	adapter, err := NewAdapter(ctx, mc, conn, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func TestAdapter_TestConnection(t *testing.T) {
	adapter := newTestAdapter(t)
	require.NoError(t, adapter.TestConnection(context.Background()))
	assert.NotContains(t, adapter.ConnectionConfig().Redacted(), os.Getenv("MSSQL_PASSWORD"))
}

func TestAdapter_TestConnection_FailsWithWrongDatabaseName(t *testing.T) {
	raw := testURL(t)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	q.Set("database", "nonexistent_database_12345")
	u.RawQuery = q.Encode()

	mc, conn, err := ParseConnectionString(u.String(), config.DefaultConnectionConfig())
	require.NoError(t, err)
	adapter, err := NewAdapter(context.Background(), mc, conn, nil, zaptest.NewLogger(t))
	if err != nil {
		// The login itself is refused for a database that does not exist.
		assert.NotContains(t, err.Error(), os.Getenv("MSSQL_PASSWORD"))
		return
	}
	defer adapter.Close()
	assert.Error(t, adapter.TestConnection(context.Background()))
}

func TestAdapter_CollectSchema(t *testing.T) {
	adapter := newTestAdapter(t)

	schema, err := adapter.CollectSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, os.Getenv("MSSQL_DATABASE"), schema.DatabaseInfo.Name)
	assert.NotEmpty(t, schema.DatabaseInfo.Version)

	customers := schema.FindTable("dbo", "customers")
	require.NotNil(t, customers)
	assert.Equal(t, "people who buy things", customers.Comment)
	require.Len(t, customers.Columns, 5)
	assert.Equal(t, models.IntegerType(64, true), customers.Columns[0].DataType)
	assert.True(t, customers.Columns[0].IsAutoIncrement)
	assert.True(t, customers.Columns[0].IsPrimaryKey)
	assert.Equal(t, models.StringType(models.IntPtr(255)), customers.Columns[1].DataType)
	assert.Equal(t, models.BooleanType(), customers.Columns[2].DataType)
	require.NotNil(t, customers.Columns[2].DefaultValue)
	assert.Contains(t, *customers.Columns[2].DefaultValue, "1")
	assert.Equal(t, models.UUIDType(), customers.Columns[3].DataType)
	require.NotNil(t, customers.PrimaryKey)
	assert.Equal(t, "customers_pk", customers.PrimaryKey.Name)
	require.NotNil(t, customers.RowCount)
	assert.Equal(t, int64(3), *customers.RowCount)

	orders := schema.FindTable("dbo", "orders")
	require.NotNil(t, orders)
	assert.Equal(t, models.IntegerType(32, true), orders.Columns[0].DataType)
	require.Len(t, orders.ForeignKeys, 1)
	fk := orders.ForeignKeys[0]
	assert.Equal(t, "orders_customer_fk", fk.Name)
	assert.Equal(t, "customers", fk.ReferencedTable)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	assert.Equal(t, models.ActionCascade, fk.OnDelete)

	var check *models.Constraint
	for i := range orders.Constraints {
		if orders.Constraints[i].Name == "orders_total_chk" {
			check = &orders.Constraints[i]
		}
	}
	require.NotNil(t, check)
	assert.Equal(t, models.ConstraintCheck, check.Type)
	assert.Equal(t, []string{"total"}, check.Columns)

	var idx *models.Index
	for i := range orders.Indexes {
		if orders.Indexes[i].Name == "orders_customer_idx" {
			idx = &orders.Indexes[i]
		}
	}
	require.NotNil(t, idx)
	assert.Equal(t, "nonclustered", idx.IndexType)
	assert.Equal(t, []models.IndexColumn{{Name: "customer_id", Direction: models.Descending}}, idx.Columns)

	audit := schema.FindTable("dbo", "audit_log")
	require.NotNil(t, audit)
	assert.Equal(t, models.StringType(nil), audit.Columns[0].DataType)

	var view *models.View
	for i := range schema.Views {
		if schema.Views[i].Name == "big_orders" {
			view = &schema.Views[i]
		}
	}
	require.NotNil(t, view)
	assert.Len(t, view.Columns, 2)
	assert.Contains(t, view.Definition, "total > 100")

	var fn *models.Routine
	for i := range schema.Functions {
		if schema.Functions[i].Name == "order_count" {
			fn = &schema.Functions[i]
		}
	}
	require.NotNil(t, fn)
	assert.Equal(t, "int", fn.ReturnType)
	require.Len(t, fn.Parameters, 1)
	assert.Equal(t, models.Parameter{Name: "cust", DataType: "bigint", Direction: "IN"}, fn.Parameters[0])

	var trig *models.Trigger
	for i := range schema.Triggers {
		if schema.Triggers[i].Name == "orders_touch" {
			trig = &schema.Triggers[i]
		}
	}
	require.NotNil(t, trig)
	assert.Equal(t, "AFTER", trig.Timing)
	assert.Equal(t, "INSERT OR UPDATE", trig.Event)

	for _, tbl := range schema.Tables {
		assert.NoError(t, tbl.Validate())
	}
}

func TestAdapter_DetectOrderingStrategy(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	tests := []struct {
		table string
		want  models.OrderingStrategy
	}{
		{"customers", models.PrimaryKeyOrdering("id")},
		{"audit_log", models.TimestampOrdering("inserted_at", models.Descending)},
		{"notes", models.SystemRowIDOrdering("%%physloc%%")},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			got, err := adapter.DetectOrderingStrategy(ctx, "", tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := adapter.DetectOrderingStrategy(ctx, "dbo", "missing")
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameters)
}

func TestAdapter_SampleTables(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	schema, err := adapter.CollectSchema(ctx)
	require.NoError(t, err)

	samplingCfg := config.DefaultSamplingConfig()
	samplingCfg.SampleSize = 3
	samples, err := adapter.SampleTables(ctx, schema, samplingCfg)
	require.NoError(t, err)

	byName := make(map[string]models.TableSample)
	for _, s := range samples {
		byName[s.TableName] = s
	}

	customers := byName["customers"]
	require.Len(t, customers.Rows, 3)
	assert.EqualValues(t, 3, customers.Rows[0]["id"])
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", customers.Rows[2]["external_id"])
	assert.Nil(t, customers.Rows[0]["external_id"])
	assert.Contains(t, customers.Warnings, "column customers.email may contain sensitive data (email address)")

	notes := byName["notes"]
	assert.Equal(t, models.SystemRowIDOrdering("%%physloc%%"), notes.Ordering)
	assert.Len(t, notes.Rows, 2)

	assert.Empty(t, schema.CollectionMetadata.Warnings)
}
