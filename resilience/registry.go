package resilience

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/dealflow/breaker"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/retry"
	"github.com/ceyewan/dealflow/xerrors"
)

// Entry 单个 kind 的生效策略
type Entry struct {
	Kind    OperationKind
	Policy  Policy
	Retrier *retry.Retrier
}

// Registry OperationKind 到 Entry 的进程级映射，持有共享的熔断器
//
// Entry 惰性创建并缓存在与配置绑定的 generation 中；Reload 整体替换 generation，
// 因此旧配置构建的 Entry 不会留在新 generation 里。
type Registry struct {
	opts    *options
	current atomic.Pointer[generation]
	breaker breaker.Breaker
	closed  atomic.Bool
}

type generation struct {
	config  Config
	entries sync.Map // OperationKind -> *Entry
}

// NewRegistry 校验配置并创建熔断器
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid resilience config")
	}
	if cfg.Driver == "" {
		cfg.Driver = breaker.DriverWindow
	}

	o := applyOptions(opts...)
	r := &Registry{opts: o}
	r.current.Store(&generation{config: cfg})

	brk, err := breaker.New(cfg.Driver, r.settingsFor,
		breaker.WithLogger(o.logger),
		breaker.WithClock(o.clock),
		breaker.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}
	r.breaker = brk

	o.logger.Info("resilience registry created",
		clog.String("driver", string(cfg.Driver)),
		clog.Int("kinds", len(cfg.Kinds)))
	return r, nil
}

func (r *Registry) settingsFor(kind string) breaker.Settings {
	return r.Config().PolicyFor(OperationKind(kind)).BreakerSettings()
}

// Config 当前生效的配置
func (r *Registry) Config() Config {
	return r.current.Load().config
}

// Breaker 共享熔断器
func (r *Registry) Breaker() breaker.Breaker {
	return r.breaker
}

// Lookup 返回 kind 的 Entry，首次访问时创建
func (r *Registry) Lookup(kind OperationKind) (*Entry, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	kind = kind.Normalize()

	gen := r.current.Load()
	if v, ok := gen.entries.Load(kind); ok {
		return v.(*Entry), nil
	}
	v, _ := gen.entries.LoadOrStore(kind, r.newEntry(gen.config, kind))
	return v.(*Entry), nil
}

func (r *Registry) newEntry(cfg Config, kind OperationKind) *Entry {
	policy := cfg.PolicyFor(kind)
	logger := r.opts.logger.With(clog.String("kind", string(kind)))
	m := r.opts.metrics
	return &Entry{
		Kind:   kind,
		Policy: policy,
		Retrier: retry.New(policy.RetryPolicy(),
			retry.WithClock(r.opts.clock),
			retry.WithLogger(logger),
			retry.WithPredicate(r.opts.predicate),
			retry.WithOnRetry(func(ctx context.Context, a retry.Attempt) {
				m.ObserveRetryDelay(ctx, string(kind), a.DelayBeforeNext)
			})),
	}
}

// Reload 应用新配置。熔断状态保留，窗口大小和阈值在下一次 Acquire 时生效。
// 驱动不能热切换，变更会被忽略并记录警告。
func (r *Registry) Reload(cfg Config) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}
	if err := cfg.Validate(); err != nil {
		return xerrors.Wrap(err, "invalid resilience config")
	}

	current := r.Config()
	if cfg.Driver == "" {
		cfg.Driver = current.Driver
	}
	if !strings.EqualFold(string(cfg.Driver), string(current.Driver)) {
		r.opts.logger.Warn("breaker driver change requires restart, keeping current driver",
			clog.String("current", string(current.Driver)),
			clog.String("requested", string(cfg.Driver)))
		cfg.Driver = current.Driver
	}

	r.current.Store(&generation{config: cfg})
	r.breaker.Reconfigure(r.settingsFor)

	r.opts.logger.Info("resilience config reloaded", clog.Int("kinds", len(cfg.Kinds)))
	return nil
}

// Close 之后 Lookup 与 Execute 返回 ErrRegistryClosed
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.current.Load().entries.Clear()
	r.opts.logger.Info("resilience registry closed")
	return nil
}
