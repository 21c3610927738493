package roi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/dealflow/cache"
	"github.com/ceyewan/dealflow/clog"
)

// Calculator ROI 计算接口，供 HTTP 层与编排器调用
type Calculator interface {
	Compute(ctx context.Context, in Inputs) (Result, error)
}

// Engine 直接调用 Compute 的 Calculator
type Engine struct{}

// NewEngine 创建无缓存的计算引擎
func NewEngine() *Engine { return &Engine{} }

// Compute 实现 Calculator
func (*Engine) Compute(ctx context.Context, in Inputs) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Compute(in)
}

// CachedEngine 在 Calculator 前加一层结果缓存
//
// Compute 是纯函数，相同输入的结果可以直接复用；只缓存成功结果。
// 缓存读写失败只记录日志，不影响计算。
type CachedEngine struct {
	next   Calculator
	cache  cache.Cache
	ttl    time.Duration
	logger clog.Logger
}

// CachedOption CachedEngine 选项
type CachedOption func(*CachedEngine)

// WithTTL 缓存有效期，默认 24h
func WithTTL(ttl time.Duration) CachedOption {
	return func(e *CachedEngine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithLogger 设置 Logger，自动追加 "roi" 命名空间
func WithLogger(l clog.Logger) CachedOption {
	return func(e *CachedEngine) {
		if l != nil {
			e.logger = l.WithNamespace("roi")
		}
	}
}

// NewCachedEngine 用 c 缓存 next 的计算结果
func NewCachedEngine(next Calculator, c cache.Cache, opts ...CachedOption) *CachedEngine {
	e := &CachedEngine{
		next:   next,
		cache:  c,
		ttl:    24 * time.Hour,
		logger: clog.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute 实现 Calculator
func (e *CachedEngine) Compute(ctx context.Context, in Inputs) (Result, error) {
	in.Service = ParseServiceKind(string(in.Service))
	key, err := CacheKey(in)
	if err != nil {
		e.logger.WarnContext(ctx, "roi cache key encoding failed", clog.Error(err))
		return e.next.Compute(ctx, in)
	}

	var cached Result
	switch err := e.cache.Get(ctx, key, &cached); {
	case err == nil:
		e.logger.DebugContext(ctx, "roi cache hit", clog.String("key", key))
		return cached, nil
	case !errors.Is(err, cache.ErrMiss):
		e.logger.WarnContext(ctx, "roi cache read failed", clog.String("key", key), clog.Error(err))
	}

	res, err := e.next.Compute(ctx, in)
	if err != nil {
		return Result{}, err
	}
	if err := e.cache.Set(ctx, key, res, e.ttl); err != nil {
		e.logger.WarnContext(ctx, "roi cache write failed", clog.String("key", key), clog.Error(err))
	}
	return res, nil
}

// CacheKey 输入的稳定缓存键："roi:" + msgpack 编码的 SHA-256
func CacheKey(in Inputs) (string, error) {
	data, err := msgpack.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "roi:" + hex.EncodeToString(sum[:]), nil
}
