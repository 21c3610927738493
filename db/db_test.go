package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"

	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/db"
	"github.com/ceyewan/dealflow/testkit"
	"github.com/ceyewan/dealflow/xerrors"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

func TestTransactionRollback(t *testing.T) {
	conn := testkit.NewSQLiteConnector(t)
	database, err := db.New(conn, nil, db.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	assert.Equal(t, connector.DriverSQLite, database.Driver())

	ctx := context.Background()
	require.NoError(t, database.AutoMigrate(ctx, &note{}))

	boom := errors.New("boom")
	err = database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		require.NoError(t, tx.Create(&note{Body: "discarded"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(&note{Body: "kept"}).Error
	}))

	var notes []note
	require.NoError(t, database.DB(ctx).Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, "kept", notes[0].Body)
}

func TestTracingPlugin(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))

	conn := testkit.NewSQLiteConnector(t)
	database, err := db.New(conn, &db.Config{Tracing: true}, db.WithTracerProvider(tp))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, database.AutoMigrate(ctx, &note{}))
	require.NoError(t, database.DB(ctx).Create(&note{Body: "traced"}).Error)

	assert.NotEmpty(t, recorder.Ended(), "otelgorm records a span per statement")
}

func TestNewErrors(t *testing.T) {
	_, err := db.New(nil, nil)
	assert.True(t, xerrors.IsValidation(err))

	conn, err := connector.NewDatabase(testkit.NewSQLiteConfig())
	require.NoError(t, err)
	_, err = db.New(conn, nil)
	assert.ErrorIs(t, err, connector.ErrNotConnected)

	live := testkit.NewSQLiteConnector(t)
	_, err = db.New(live, &db.Config{Sharding: []db.ShardingRule{{ShardingKey: "opportunity_id"}}})
	assert.True(t, xerrors.IsValidation(err))
}
