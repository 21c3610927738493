// Package bootstrap 按依赖顺序组装 dealflow 进程：
// 日志、指标、链路 -> 连接器 -> 存储、缓存、消息 -> 弹性编排 -> HTTP 服务。
package bootstrap

import (
	"context"
	"slices"

	"github.com/ceyewan/dealflow/auth"
	"github.com/ceyewan/dealflow/cache"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/config"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/db"
	"github.com/ceyewan/dealflow/dlock"
	"github.com/ceyewan/dealflow/events"
	"github.com/ceyewan/dealflow/history"
	"github.com/ceyewan/dealflow/idem"
	"github.com/ceyewan/dealflow/internal/server"
	"github.com/ceyewan/dealflow/metrics"
	"github.com/ceyewan/dealflow/mq"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/ratelimit"
	"github.com/ceyewan/dealflow/resilience"
	"github.com/ceyewan/dealflow/roi"
	"github.com/ceyewan/dealflow/trace"
	"github.com/ceyewan/dealflow/xerrors"
)

// Shutdown 释放一项资源
type Shutdown func(context.Context) error

// App 组装完成的进程
type App struct {
	Logger   clog.Logger
	Meter    metrics.Meter
	Registry *resilience.Registry
	Server   *server.Server

	shutdowns []Shutdown
}

// New 按 cfg 创建全部组件；任一步失败时释放已创建的资源
func New(ctx context.Context, cfg AppConfig) (_ *App, err error) {
	app := &App{}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	logger, err := clog.New(&cfg.Log, clog.WithTraceContext())
	if err != nil {
		return nil, xerrors.Wrap(err, "init logger")
	}
	app.Logger = logger

	meter, err := metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		return nil, xerrors.Wrap(err, "init metrics")
	}
	app.Meter = meter
	app.onClose(meter.Shutdown)

	traceShutdown, err := trace.Init(&cfg.Trace)
	if err != nil {
		return nil, xerrors.Wrap(err, "init trace")
	}
	app.onClose(traceShutdown)

	var health []connector.Connector

	// 数据库与阶段历史
	dbConn, err := connector.NewDatabase(&cfg.Database, connector.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := dbConn.Connect(ctx); err != nil {
		return nil, err
	}
	app.deferClose(dbConn.Close)
	health = append(health, dbConn)

	database, err := db.New(dbConn, &cfg.DB, db.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	store, err := history.NewStore(ctx, database, cfg.Pipeline.NodeID)
	if err != nil {
		return nil, err
	}

	// 可选连接器
	var redisConn connector.RedisConnector
	if cfg.Redis != nil {
		if redisConn, err = connector.NewRedis(cfg.Redis, connector.WithLogger(logger)); err != nil {
			return nil, err
		}
		if err := redisConn.Connect(ctx); err != nil {
			return nil, err
		}
		app.deferClose(redisConn.Close)
		health = append(health, redisConn)
	}
	var natsConn connector.NATSConnector
	if cfg.NATS != nil {
		if natsConn, err = connector.NewNATS(cfg.NATS, connector.WithLogger(logger)); err != nil {
			return nil, err
		}
		if err := natsConn.Connect(ctx); err != nil {
			return nil, err
		}
		app.deferClose(natsConn.Close)
		health = append(health, natsConn)
	}
	var kafkaConn connector.KafkaConnector
	if cfg.Kafka != nil {
		if kafkaConn, err = connector.NewKafka(cfg.Kafka, connector.WithLogger(logger)); err != nil {
			return nil, err
		}
		if err := kafkaConn.Connect(ctx); err != nil {
			return nil, err
		}
		app.deferClose(kafkaConn.Close)
		health = append(health, kafkaConn)
	}

	// 缓存
	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if redisConn != nil {
		cacheOpts = append(cacheOpts, cache.WithRedisConnector(redisConn))
	}
	resultCache, err := cache.New(&cfg.Cache, cacheOpts...)
	if err != nil {
		return nil, err
	}
	app.deferClose(resultCache.Close)

	// 消息
	mqOpts := []mq.Option{mq.WithLogger(logger)}
	if natsConn != nil {
		mqOpts = append(mqOpts, mq.WithNATSConnector(natsConn))
	}
	if kafkaConn != nil {
		mqOpts = append(mqOpts, mq.WithKafkaConnector(kafkaConn))
	}
	bus, err := mq.New(&cfg.MQ, mqOpts...)
	if err != nil {
		return nil, err
	}
	app.deferClose(bus.Close)

	auditLog := logger.WithNamespace("audit")
	if _, err := events.SubscribeStageChanged(ctx, bus, "audit", func(ctx context.Context, u pipeline.CRMUpdate) error {
		auditLog.InfoContext(ctx, "stage change delivered",
			clog.String("opportunity_id", u.OpportunityID),
			clog.String("from", string(u.PreviousStage)),
			clog.String("to", string(u.InternalStage)),
			clog.String("warning", u.Warning))
		return nil
	}, events.WithLogger(logger)); err != nil {
		return nil, err
	}

	// 弹性编排
	resilienceMetrics, err := metrics.NewResilienceMetrics(meter)
	if err != nil {
		return nil, err
	}
	registry, err := resilience.NewRegistry(cfg.Resilience,
		resilience.WithLogger(logger), resilience.WithMetrics(resilienceMetrics))
	if err != nil {
		return nil, err
	}
	app.Registry = registry
	app.deferClose(registry.Close)
	orch := resilience.NewOrchestrator(registry)

	// 限流与认证
	limitOpts := []ratelimit.Option{ratelimit.WithLogger(logger), ratelimit.WithMeter(meter)}
	if redisConn != nil {
		limitOpts = append(limitOpts, ratelimit.WithRedisConnector(redisConn))
	}
	limiter, err := ratelimit.New(&cfg.RateLimit, limitOpts...)
	if err != nil {
		return nil, err
	}
	app.deferClose(limiter.Close)

	// 幂等与按商机加锁
	idemOpts := []idem.Option{idem.WithLogger(logger)}
	lockOpts := []dlock.Option{dlock.WithLogger(logger)}
	if redisConn != nil {
		idemOpts = append(idemOpts, idem.WithRedisConnector(redisConn))
		lockOpts = append(lockOpts, dlock.WithRedisConnector(redisConn))
	}
	guard, err := idem.New(&cfg.Idem, idemOpts...)
	if err != nil {
		return nil, err
	}
	locker, err := dlock.New(&cfg.Lock, lockOpts...)
	if err != nil {
		return nil, err
	}

	var authn *auth.Authenticator
	if cfg.Auth != nil {
		if authn, err = auth.New(cfg.Auth, auth.WithLogger(logger), auth.WithMeter(meter)); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("auth not configured, breaker reset endpoint disabled")
	}

	validatorOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Pipeline.Strict {
		validatorOpts = append(validatorOpts, pipeline.WithStrict())
	}
	roiOpts := []roi.CachedOption{roi.WithLogger(logger)}
	if cfg.Pipeline.ROICacheTTL > 0 {
		roiOpts = append(roiOpts, roi.WithTTL(cfg.Pipeline.ROICacheTTL))
	}

	publisher := events.NewPublisher(bus, events.WithLogger(logger))
	srv, err := server.New(cfg.Server, server.Deps{
		Logger:       logger,
		Meter:        meter,
		Orchestrator: orch,
		Validator:    pipeline.NewValidator(validatorOpts...),
		ROI:          roi.NewCachedEngine(roi.NewEngine(), resultCache, roiOpts...),
		History:      store,
		Syncer:       events.NewStageSyncer(publisher, orch, cfg.Pipeline.SyncTimeout),
		Limiter:      limiter,
		Limit:        ratelimit.FixedLimit(cfg.RateLimit.Default()),
		Idempotency:  guard,
		Locker:       locker,
		Auth:         authn,
		Health:       health,
	})
	if err != nil {
		return nil, err
	}
	app.Server = srv

	logger.Info("dealflow assembled",
		clog.String("database", dbConn.Name()),
		clog.String("mq_driver", cfg.MQ.Driver),
		clog.String("cache_mode", cfg.Cache.Mode),
		clog.String("breaker_driver", string(cfg.Resilience.Driver)))
	return app, nil
}

// WatchResilience 配置文件中 resilience 变化时重新加载策略
func (a *App) WatchResilience(ctx context.Context, loader config.Loader) error {
	ch, err := loader.Watch(ctx, "resilience")
	if err != nil {
		return err
	}
	go func() {
		for range ch {
			var next resilience.Config
			if err := loader.UnmarshalKey("resilience", &next); err != nil {
				a.Logger.Error("decode resilience config failed", clog.Error(err))
				continue
			}
			if err := a.Registry.Reload(next); err != nil {
				a.Logger.Error("reload resilience config failed", clog.Error(err))
				continue
			}
			a.Logger.Info("resilience config reloaded", clog.Int("kinds", len(next.Kinds)))
		}
	}()
	return nil
}

// Run 运行 HTTP 服务直到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx)
}

// Close 逆序释放资源
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	for _, fn := range slices.Backward(a.shutdowns) {
		errs = append(errs, fn(ctx))
	}
	a.shutdowns = nil
	return xerrors.Combine(errs...)
}

func (a *App) onClose(fn Shutdown) {
	a.shutdowns = append(a.shutdowns, fn)
}

func (a *App) deferClose(fn func() error) {
	a.onClose(func(context.Context) error { return fn() })
}
