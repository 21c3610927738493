package testkit

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/ceyewan/dealflow/connector"
)

// NewMySQLContainerConfig 启动 MySQL 容器并返回连接配置
func NewMySQLContainerConfig(t *testing.T) *connector.DatabaseConfig {
	t.Helper()
	RequireDocker(t)
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("dealflow"),
		mysql.WithUsername("dealflow"),
		mysql.WithPassword("dealflow"),
	)
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	return &connector.DatabaseConfig{
		Name:         "testcontainer-mysql",
		Driver:       connector.DriverMySQL,
		Host:         host,
		Port:         port,
		Username:     "dealflow",
		Password:     "dealflow",
		Database:     "dealflow",
		MaxIdleConns: 2,
		MaxOpenConns: 5,
	}
}

// NewMySQLConnector 启动 MySQL 容器并返回已连接的连接器
func NewMySQLConnector(t *testing.T) connector.DatabaseConnector {
	t.Helper()
	conn, err := connector.NewDatabase(NewMySQLContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create mysql connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to mysql")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
