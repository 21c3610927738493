package connector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/testkit"
	"github.com/ceyewan/dealflow/xerrors"
)

func TestConfigValidation(t *testing.T) {
	_, err := connector.NewRedis(&connector.RedisConfig{})
	require.Error(t, err)
	assert.True(t, xerrors.IsValidation(err))

	_, err = connector.NewRedis(nil)
	require.Error(t, err)

	_, err = connector.NewNATS(&connector.NATSConfig{})
	assert.True(t, xerrors.IsValidation(err))

	_, err = connector.NewKafka(&connector.KafkaConfig{})
	assert.True(t, xerrors.IsValidation(err))

	_, err = connector.NewDatabase(&connector.DatabaseConfig{Driver: "oracle", Path: "x"})
	assert.True(t, xerrors.IsValidation(err))

	_, err = connector.NewDatabase(&connector.DatabaseConfig{Driver: "mysql"})
	assert.True(t, xerrors.IsValidation(err))

	_, err = connector.NewDatabase(&connector.DatabaseConfig{Driver: "mysql", DSN: "u:p@tcp(db:3306)/x"})
	assert.NoError(t, err)
}

func TestDialDefaults(t *testing.T) {
	cfg := &connector.RedisConfig{Addr: "127.0.0.1:6379"}
	_, err := connector.NewRedis(cfg)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryInterval)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestSQLiteLifecycle(t *testing.T) {
	ctx := context.Background()
	conn, err := connector.NewDatabase(testkit.NewSQLiteConfig(), connector.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	assert.Nil(t, conn.GetClient())
	assert.ErrorIs(t, conn.HealthCheck(ctx), connector.ErrNotConnected)

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())
	assert.Equal(t, "sqlite", conn.Driver())
	assert.Equal(t, "sqlite:test-sqlite", conn.Name())
	require.NoError(t, conn.HealthCheck(ctx))

	var one int
	require.NoError(t, conn.GetClient().WithContext(ctx).Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsHealthy())
	assert.Nil(t, conn.GetClient())
}

func TestRedisConnectRetriesThenFails(t *testing.T) {
	clk := clock.NewFake(testkit.Epoch)
	conn, err := connector.NewRedis(&connector.RedisConfig{
		Addr: "127.0.0.1:1",
		Dial: connector.Dial{
			MaxRetries:     2,
			RetryInterval:  time.Second,
			ConnectTimeout: 200 * time.Millisecond,
		},
	}, connector.WithClock(clk))
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, connector.ErrConnection)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clk.Sleeps())
	assert.False(t, conn.IsHealthy())
}

func TestConnectStopsOnCancel(t *testing.T) {
	conn, err := connector.NewRedis(&connector.RedisConfig{
		Addr: "127.0.0.1:1",
		Dial: connector.Dial{MaxRetries: 5, RetryInterval: time.Hour, ConnectTimeout: 100 * time.Millisecond},
	})
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = conn.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRedisContainer(t *testing.T) {
	conn := testkit.NewRedisConnector(t)
	ctx := context.Background()

	require.NoError(t, conn.HealthCheck(ctx))
	require.NoError(t, conn.GetClient().Set(ctx, "dealflow:"+testkit.NewID(), "ok", time.Minute).Err())
}

func TestNATSContainer(t *testing.T) {
	conn := testkit.NewNATSConnector(t)
	require.NoError(t, conn.HealthCheck(context.Background()))
	assert.True(t, conn.GetClient().IsConnected())
}

func TestKafkaContainer(t *testing.T) {
	conn := testkit.NewKafkaConnector(t)
	require.NoError(t, conn.HealthCheck(context.Background()))
}
