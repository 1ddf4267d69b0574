package sql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"we""ird"`, Postgres.QuoteIdentifier(`we"ird`))
	assert.Equal(t, "`we``ird`", MySQL.QuoteIdentifier("we`ird"))
	assert.Equal(t, "[we]]ird]", SQLServer.QuoteIdentifier("we]ird"))
	assert.Equal(t, `"main"."t"`, SQLite.QualifiedName("main", "t"))
	assert.Equal(t, `"t"`, SQLite.QualifiedName("", "t"))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor(models.DatabaseTypeSQLServer)
	require.NoError(t, err)
	assert.Equal(t, SQLServer, d)

	_, err = DialectFor(models.DatabaseTypeMongoDB)
	assert.Error(t, err)
}

func TestBuildSampleQuery(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   SampleQuery
		want    string
	}{
		{
			name:    "postgres primary key",
			dialect: Postgres,
			query:   SampleQuery{Schema: "public", Table: "users", Ordering: models.PrimaryKeyOrdering("id"), Strategy: models.MostRecent(10)},
			want:    `SELECT * FROM "public"."users" ORDER BY "id" DESC LIMIT 10`,
		},
		{
			name:    "postgres composite key",
			dialect: Postgres,
			query:   SampleQuery{Schema: "public", Table: "line_items", Ordering: models.PrimaryKeyOrdering("order_id", "line_no"), Strategy: models.MostRecent(5)},
			want:    `SELECT * FROM "public"."line_items" ORDER BY "order_id" DESC, "line_no" DESC LIMIT 5`,
		},
		{
			name:    "postgres ctid",
			dialect: Postgres,
			query:   SampleQuery{Schema: "public", Table: "heap", Ordering: models.SystemRowIDOrdering("ctid"), Strategy: models.MostRecent(3)},
			want:    `SELECT * FROM "public"."heap" ORDER BY ctid DESC LIMIT 3`,
		},
		{
			name:    "mysql timestamp",
			dialect: MySQL,
			query:   SampleQuery{Schema: "shop", Table: "orders", Ordering: models.TimestampOrdering("created_at", models.Descending), Strategy: models.MostRecent(5)},
			want:    "SELECT * FROM `shop`.`orders` ORDER BY `created_at` DESC LIMIT 5",
		},
		{
			name:    "mysql random",
			dialect: MySQL,
			query:   SampleQuery{Schema: "shop", Table: "orders", Ordering: models.Unordered(), Strategy: models.Random(20)},
			want:    "SELECT * FROM `shop`.`orders` ORDER BY RAND() LIMIT 20",
		},
		{
			name:    "sqlite rowid",
			dialect: SQLite,
			query:   SampleQuery{Table: "events", Ordering: models.SystemRowIDOrdering("rowid"), Strategy: models.MostRecent(3)},
			want:    `SELECT * FROM "events" ORDER BY rowid DESC LIMIT 3`,
		},
		{
			name:    "sqlite explicit columns",
			dialect: SQLite,
			query:   SampleQuery{Table: "events", Columns: []string{"id", "kind"}, Ordering: models.AutoIncrementOrdering("id"), Strategy: models.MostRecent(2)},
			want:    `SELECT "id", "kind" FROM "events" ORDER BY "id" DESC LIMIT 2`,
		},
		{
			name:    "sqlserver random",
			dialect: SQLServer,
			query:   SampleQuery{Schema: "dbo", Table: "logs", Ordering: models.Unordered(), Strategy: models.Random(7)},
			want:    "SELECT TOP (7) * FROM [dbo].[logs] ORDER BY NEWID()",
		},
		{
			name:    "sqlserver physloc",
			dialect: SQLServer,
			query:   SampleQuery{Schema: "dbo", Table: "heap", Ordering: models.SystemRowIDOrdering("%%physloc%%"), Strategy: models.MostRecent(2)},
			want:    "SELECT TOP (2) * FROM [dbo].[heap] ORDER BY %%physloc%% DESC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildSampleQuery(tt.dialect, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSampleQuery_Errors(t *testing.T) {
	_, err := BuildSampleQuery(Postgres, SampleQuery{Table: "users", Ordering: models.PrimaryKeyOrdering("id"), Strategy: models.MostRecent(0)})
	assert.Error(t, err)

	_, err = BuildSampleQuery(Postgres, SampleQuery{Table: "' OR '1'='1", Ordering: models.Unordered(), Strategy: models.Random(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSuspiciousIdentifier))
	assert.NotContains(t, err.Error(), "'1'='1")
}

func TestBuildCountQuery(t *testing.T) {
	got, err := BuildCountQuery(SQLite, "", "events")
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "events"`, got)
}

func TestCheckIdentifier(t *testing.T) {
	for _, name := range []string{"users", "order_items", "created_at", "CustomerID"} {
		assert.NoError(t, CheckIdentifier(name), name)
	}
	assert.Error(t, CheckIdentifier(""))
	assert.ErrorIs(t, CheckIdentifier("'; DROP TABLE users--"), ErrSuspiciousIdentifier)
}
