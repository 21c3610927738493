// Package ratelimit 为 dealflow 的 HTTP 入口提供令牌桶限流，支持单机和分布式两种模式。
//
//   - 单机模式：基于 golang.org/x/time/rate 的内存限流
//   - 分布式模式：基于 Redis + Lua 的限流，多个实例共享配额
//
// 基本使用：
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{Mode: ratelimit.ModeStandalone},
//	    ratelimit.WithLogger(logger), ratelimit.WithMeter(meter))
//	defer limiter.Close()
//
//	allowed, _ := limiter.Allow(ctx, "ip:10.0.0.1", ratelimit.Limit{Rate: 10, Burst: 20})
//
// Gin 中间件：
//
//	r.Use(ratelimit.GinMiddleware(limiter, nil, ratelimit.FixedLimit(cfg.Default())))
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// 运行模式
const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// Limit 限流规则（令牌桶）
type Limit struct {
	Rate  float64 // 每秒生成的令牌数
	Burst int     // 桶容量
}

// Valid 速率与容量都为正
func (l Limit) Valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器
type Limiter interface {
	// Allow 尝试获取 1 个令牌，不阻塞
	Allow(ctx context.Context, key string, limit Limit) (bool, error)
	// AllowN 尝试获取 n 个令牌，不阻塞
	AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error)
	// Close 释放后台资源
	Close() error
}

// Config 限流配置
type Config struct {
	// Mode standalone | distributed (默认: standalone)
	Mode string `mapstructure:"mode"`
	// Rate Burst 中间件使用的默认规则 (默认: 20/s, 40)
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
	// Prefix 分布式模式的 Redis key 前缀 (默认: "dealflow:ratelimit:")
	Prefix string `mapstructure:"prefix"`
	// CleanupInterval IdleTimeout 单机模式回收空闲 key (默认: 1m, 5m)
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

// Default 返回默认规则
func (c *Config) Default() Limit {
	return Limit{Rate: c.Rate, Burst: c.Burst}
}

func (c *Config) setDefaults() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.Rate <= 0 {
		c.Rate = 20
	}
	if c.Burst <= 0 {
		c.Burst = 40
	}
	if c.Prefix == "" {
		c.Prefix = "dealflow:ratelimit:"
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// New 按 Mode 创建限流器；cfg 为 nil 时使用单机默认配置
func New(cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	o := applyOptions(opts...)

	switch cfg.Mode {
	case ModeStandalone:
		return newStandalone(cfg, o), nil
	case ModeDistributed:
		if o.redis == nil {
			return nil, xerrors.NewConfiguration("ratelimit.mode", "distributed mode requires a redis connector")
		}
		return newDistributed(cfg, o)
	default:
		return nil, xerrors.NewConfiguration("ratelimit.mode", fmt.Sprintf("unsupported mode %q", cfg.Mode))
	}
}

func checkArgs(key string, limit Limit, n int) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if !limit.Valid() || n <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
