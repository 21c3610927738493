package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// Dial 建立连接时的重试参数，各连接器共用
type Dial struct {
	// MaxRetries 首次失败后的重试次数 (默认: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// RetryInterval 重试间隔，固定不退避 (默认: 1s)
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	// ConnectTimeout 单次连接尝试的超时 (默认: 5s)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func (d *Dial) setDefaults() {
	if d.MaxRetries <= 0 {
		d.MaxRetries = 3
	}
	if d.RetryInterval <= 0 {
		d.RetryInterval = time.Second
	}
	if d.ConnectTimeout <= 0 {
		d.ConnectTimeout = 5 * time.Second
	}
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name string `mapstructure:"name"` // 默认 "default"
	Dial `mapstructure:",squash"`

	Addr     string `mapstructure:"addr"` // [必填] 如 "127.0.0.1:6379"
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`      // 默认 10
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 默认 0
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 默认 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 默认 3s

	// Instrument 启用 redisotel 链路与指标
	Instrument bool `mapstructure:"instrument"`
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.Dial.setDefaults()
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	if c == nil {
		return xerrors.NewConfiguration("redis", "config is nil")
	}
	c.setDefaults()
	if c.Addr == "" {
		return xerrors.NewConfiguration("redis.addr", "is required")
	}
	if c.DB < 0 {
		return xerrors.NewConfiguration("redis.db", fmt.Sprintf("must be >= 0, got %d", c.DB))
	}
	return nil
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	Name string `mapstructure:"name"`
	Dial `mapstructure:",squash"`

	URL      string `mapstructure:"url"` // [必填] 如 "nats://127.0.0.1:4222"
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`

	MaxReconnects int           `mapstructure:"max_reconnects"` // 默认 60
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"` // 默认 2s
	PingInterval  time.Duration `mapstructure:"ping_interval"`  // 默认 2m
}

func (c *NATSConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.Dial.setDefaults()
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 2 * time.Minute
	}
}

func (c *NATSConfig) validate() error {
	if c == nil {
		return xerrors.NewConfiguration("nats", "config is nil")
	}
	c.setDefaults()
	if c.URL == "" {
		return xerrors.NewConfiguration("nats.url", "is required")
	}
	return nil
}

// KafkaConfig Kafka 连接配置
type KafkaConfig struct {
	Name string `mapstructure:"name"`
	Dial `mapstructure:",squash"`

	Seed     []string `mapstructure:"seed"` // [必填] broker 列表
	ClientID string   `mapstructure:"client_id"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 默认 10s
}

func (c *KafkaConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.Dial.setDefaults()
	if c.ClientID == "" {
		c.ClientID = "dealflow"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

func (c *KafkaConfig) validate() error {
	if c == nil {
		return xerrors.NewConfiguration("kafka", "config is nil")
	}
	c.setDefaults()
	if len(c.Seed) == 0 {
		return xerrors.NewConfiguration("kafka.seed", "at least one broker is required")
	}
	return nil
}

// 数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DatabaseConfig 关系数据库连接配置
//
// Driver 为 sqlite 时使用 Path（":memory:" 或文件路径）；
// 为 mysql 时优先使用 DSN，否则由 Host/Port/Username/Password/Database 拼接。
type DatabaseConfig struct {
	Name   string `mapstructure:"name"`
	Driver string `mapstructure:"driver"` // mysql | sqlite，默认 sqlite
	Dial   `mapstructure:",squash"`

	Path string `mapstructure:"path"`

	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"` // 默认 3306
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Charset  string `mapstructure:"charset"` // 默认 utf8mb4

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 默认 10
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 默认 100
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 默认 1h

	// SlowThreshold 超过该耗时的 SQL 记录 Warn (默认: 200ms)
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	// LogSQL 以 Debug 级别记录每条 SQL
	LogSQL bool `mapstructure:"log_sql"`
}

func (c *DatabaseConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	c.Dial.setDefaults()
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 100
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
}

func (c *DatabaseConfig) validate() error {
	if c == nil {
		return xerrors.NewConfiguration("database", "config is nil")
	}
	c.setDefaults()
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return xerrors.NewConfiguration("database.path", "is required for sqlite")
		}
	case DriverMySQL:
		if c.DSN != "" {
			return nil
		}
		if c.Host == "" || c.Username == "" || c.Database == "" {
			return xerrors.NewConfiguration("database", "mysql requires dsn or host, username and database")
		}
	default:
		return xerrors.NewConfiguration("database.driver", fmt.Sprintf("unsupported driver %q", c.Driver))
	}
	return nil
}

func (c *DatabaseConfig) mysqlDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
}
