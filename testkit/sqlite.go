package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/connector"
)

// NewSQLiteConfig 返回内存 SQLite 配置
func NewSQLiteConfig() *connector.DatabaseConfig {
	return &connector.DatabaseConfig{
		Name:   "test-sqlite",
		Driver: connector.DriverSQLite,
		Path:   ":memory:",
	}
}

// NewSQLiteConnector 返回已连接的内存 SQLite 连接器，不依赖 Docker
func NewSQLiteConnector(t *testing.T) connector.DatabaseConnector {
	t.Helper()
	conn, err := connector.NewDatabase(NewSQLiteConfig(), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// NewFileSQLiteConnector 返回 t.TempDir() 下文件型 SQLite 的连接器
func NewFileSQLiteConnector(t *testing.T) connector.DatabaseConnector {
	t.Helper()
	cfg := NewSQLiteConfig()
	cfg.Path = t.TempDir() + "/dealflow.db"
	conn, err := connector.NewDatabase(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
