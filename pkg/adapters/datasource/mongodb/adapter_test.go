//go:build integration

package mongodb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/testhelpers"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	db := testhelpers.GetMongo(t)

	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	testhelpers.InsertMongo(t, db, "users",
		bson.D{{Key: "_id", Value: 1}, {Key: "email", Value: "a@example.com"}, {Key: "age", Value: 31}, {Key: "address", Value: bson.D{{Key: "city", Value: "Oslo"}}}},
		bson.D{{Key: "_id", Value: 2}, {Key: "email", Value: "b@example.com"}, {Key: "age", Value: "unknown"}},
		bson.D{{Key: "_id", Value: 3}, {Key: "email", Value: "c@example.com"}, {Key: "age", Value: nil}},
	)
	testhelpers.InsertMongo(t, db, "events",
		bson.D{{Key: "kind", Value: "login"}, {Key: "createdAt", Value: day(1)}},
		bson.D{{Key: "kind", Value: "logout"}, {Key: "createdAt", Value: day(2)}},
	)
	testhelpers.InsertMongo(t, db, "adult_users")
	testhelpers.RunMongo(t, db, bson.D{
		{Key: "create", Value: "adult_users"},
		{Key: "viewOn", Value: "users"},
		{Key: "pipeline", Value: bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18}}}}}}}},
	})
	testhelpers.RunMongo(t, db, bson.D{
		{Key: "createIndexes", Value: "users"},
		{Key: "indexes", Value: bson.A{bson.D{
			{Key: "key", Value: bson.D{{Key: "email", Value: 1}, {Key: "age", Value: -1}}},
			{Key: "name", Value: "email_age"},
			{Key: "unique", Value: true},
		}}},
	})

	cfg := config.Default()
	opts, conn, err := ParseConnectionString(db.URL, cfg.Connection)
	require.NoError(t, err)

	adapter, err := NewAdapter(context.Background(), opts, conn, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func column(t *testing.T, table *models.Table, name string) models.Column {
	t.Helper()
	for _, c := range table.Columns {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %s not found in %s", name, table.Name)
	return models.Column{}
}

func TestAdapter_TestConnection(t *testing.T) {
	adapter := newTestAdapter(t)
	require.NoError(t, adapter.TestConnection(context.Background()))
	assert.NotContains(t, adapter.ConnectionConfig().Redacted(), testhelpers.TestPassword)
	assert.Equal(t, testhelpers.TestDatabase, adapter.ConnectionConfig().Database)
}

func TestAdapter_CollectSchema(t *testing.T) {
	adapter := newTestAdapter(t)

	schema, err := adapter.CollectSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DatabaseTypeMongoDB, schema.DatabaseInfo.DatabaseType)
	assert.NotEmpty(t, schema.DatabaseInfo.Version)
	assert.NotNil(t, schema.DatabaseInfo.SizeBytes)

	users := schema.FindTable(testhelpers.TestDatabase, "users")
	require.NotNil(t, users)
	id := column(t, users, "_id")
	assert.True(t, id.IsPrimaryKey)
	assert.False(t, id.IsNullable)
	require.NotNil(t, users.PrimaryKey)
	assert.Equal(t, []string{"_id"}, users.PrimaryKey.Columns)

	assert.Equal(t, models.StringType(nil), column(t, users, "email").DataType)
	assert.True(t, column(t, users, "address").IsNullable)
	assert.Equal(t, models.StringType(nil), column(t, users, "address.city").DataType)
	require.NotNil(t, users.RowCount)
	assert.EqualValues(t, 3, *users.RowCount)

	var mixed bool
	for _, w := range schema.CollectionMetadata.Warnings {
		if strings.HasPrefix(w, "field users.age has mixed types") {
			mixed = true
		}
		assert.NotContains(t, w, "example.com")
	}
	assert.True(t, mixed, "warnings: %v", schema.CollectionMetadata.Warnings)

	var idx *models.Index
	for i := range users.Indexes {
		if users.Indexes[i].Name == "email_age" {
			idx = &users.Indexes[i]
		}
	}
	require.NotNil(t, idx)
	assert.True(t, idx.IsUnique)
	assert.Equal(t, []models.IndexColumn{
		{Name: "email", Direction: models.Ascending},
		{Name: "age", Direction: models.Descending},
	}, idx.Columns)

	var view *models.View
	for i := range schema.Views {
		if schema.Views[i].Name == "adult_users" {
			view = &schema.Views[i]
		}
	}
	require.NotNil(t, view)
	assert.Contains(t, view.Definition, "viewOn: users")
	assert.Nil(t, schema.FindTable(testhelpers.TestDatabase, "adult_users"))
}

func TestAdapter_DetectOrderingStrategy(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	tests := []struct {
		collection string
		want       models.OrderingStrategy
	}{
		{"users", models.PrimaryKeyOrdering("_id")},
		{"events", models.TimestampOrdering("createdAt", models.Descending)},
	}
	for _, tt := range tests {
		t.Run(tt.collection, func(t *testing.T) {
			got, err := adapter.DetectOrderingStrategy(ctx, "", tt.collection)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := adapter.DetectOrderingStrategy(ctx, "", "missing")
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameters)
}

func TestAdapter_SampleTables(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	schema, err := adapter.CollectSchema(ctx)
	require.NoError(t, err)

	samplingCfg := config.DefaultSamplingConfig()
	samplingCfg.SampleSize = 2
	samples, err := adapter.SampleTables(ctx, schema, samplingCfg)
	require.NoError(t, err)

	byName := make(map[string]models.TableSample)
	for _, s := range samples {
		byName[s.TableName] = s
	}

	users := byName["users"]
	require.Len(t, users.Rows, 2)
	assert.EqualValues(t, 3, users.Rows[0]["_id"])
	assert.EqualValues(t, 2, users.Rows[1]["_id"])
	assert.Contains(t, users.Warnings, "column users.email may contain sensitive data (email address)")

	events := byName["events"]
	require.Len(t, events.Rows, 2)
	assert.Equal(t, "logout", events.Rows[0]["kind"])
	assert.Equal(t, models.TimestampOrdering("createdAt", models.Descending), events.Ordering)
}
