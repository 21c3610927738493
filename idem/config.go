package idem

import (
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// 存储驱动
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config 幂等配置
type Config struct {
	// Driver memory | redis (默认: memory)
	Driver string `mapstructure:"driver"`
	// Prefix 键前缀 (默认: "dealflow:idem:")
	Prefix string `mapstructure:"prefix"`
	// TTL 成功结果的保存时长 (默认: 24h)
	TTL time.Duration `mapstructure:"ttl"`
	// LockTTL 处理锁的有效期，防止进程崩溃后键被永久占用 (默认: 30s)
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// WaitTimeout 锁被占用时等待结果的最长时间，0 表示立即返回 ErrInFlight
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	// WaitInterval 等待期间的轮询间隔 (默认: 50ms)
	WaitInterval time.Duration `mapstructure:"wait_interval"`
}

func (c *Config) validate() error {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Driver != DriverMemory && c.Driver != DriverRedis {
		return xerrors.NewConfiguration("idem.driver", "unsupported driver "+c.Driver)
	}
	if c.Prefix == "" {
		c.Prefix = "dealflow:idem:"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.WaitTimeout < 0 {
		c.WaitTimeout = 0
	}
	if c.WaitInterval <= 0 {
		c.WaitInterval = 50 * time.Millisecond
	}
	return nil
}
