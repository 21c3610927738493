package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// 缓存模式
const (
	ModeLocal = "local"
	ModeRedis = "redis"
)

// Config 缓存配置
type Config struct {
	// Mode local | redis (默认: local)
	Mode string `mapstructure:"mode"`
	// Prefix 全局 Key 前缀，如 "dealflow:"
	Prefix string `mapstructure:"prefix"`
	// Codec json | msgpack (默认: msgpack)
	Codec string `mapstructure:"codec"`
	// Capacity 本地模式的最大条目数 (默认: 10000)
	Capacity int `mapstructure:"capacity"`
	// DefaultTTL Set 未指定 ttl 时使用 (默认: 1h)
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

func (c *Config) validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.Codec == "" {
		c.Codec = codecMsgpack
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = time.Hour
	}
	if c.Mode != ModeLocal && c.Mode != ModeRedis {
		return xerrors.NewConfiguration("cache.mode", fmt.Sprintf("unsupported mode %q", c.Mode))
	}
	return nil
}
