// Package server 暴露 dealflow 的 HTTP 接口：阶段迁移、ROI 计算、MEDDIC 评分以及熔断器运维。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/dealflow/auth"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/dlock"
	"github.com/ceyewan/dealflow/events"
	"github.com/ceyewan/dealflow/history"
	"github.com/ceyewan/dealflow/idem"
	"github.com/ceyewan/dealflow/metrics"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/ratelimit"
	"github.com/ceyewan/dealflow/resilience"
	"github.com/ceyewan/dealflow/roi"
	"github.com/ceyewan/dealflow/trace"
	"github.com/ceyewan/dealflow/xerrors"
)

// Config HTTP 服务配置
type Config struct {
	// Addr 监听地址 (默认: ":8080")
	Addr string `mapstructure:"addr"`
	// ServiceName 用于 trace 与 HTTP 指标 (默认: "dealflow")
	ServiceName string `mapstructure:"service_name"`
	// ROITimeout ROI 计算的单次尝试时限，0 使用 roi-calculation 的策略
	ROITimeout time.Duration `mapstructure:"roi_timeout"`
	// ReadHeaderTimeout (默认: 5s)
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// ShutdownTimeout (默认: 10s)
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ServiceName == "" {
		c.ServiceName = "dealflow"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Deps 处理器依赖；Orchestrator 之外都可以为 nil
type Deps struct {
	Logger       clog.Logger
	Meter        metrics.Meter
	Orchestrator *resilience.Orchestrator
	Validator    *pipeline.Validator
	ROI          roi.Calculator
	History      history.Store
	Syncer       *events.StageSyncer
	Limiter      ratelimit.Limiter
	Limit        ratelimit.LimitFunc
	// Idempotency 保护 POST /v1/stage-transitions，请求头 Idempotency-Key
	Idempotency *idem.Guard
	// Locker 串行化同一商机的阶段迁移
	Locker dlock.Locker
	// Auth 为 nil 时不注册熔断器重置接口
	Auth *auth.Authenticator
	// Health /healthz 检查的连接器
	Health []connector.Connector
}

// Server HTTP 服务
type Server struct {
	cfg    Config
	deps   Deps
	logger clog.Logger
	engine *gin.Engine
}

// New 组装路由与中间件
func New(cfg Config, deps Deps) (*Server, error) {
	cfg.setDefaults()
	if deps.Orchestrator == nil {
		return nil, xerrors.NewConfiguration("server.orchestrator", "orchestrator is required")
	}
	if deps.Validator == nil {
		deps.Validator = pipeline.NewValidator()
	}
	if deps.ROI == nil {
		deps.ROI = roi.NewEngine()
	}
	if deps.Logger == nil {
		deps.Logger = clog.Discard()
	}
	if deps.Meter == nil {
		deps.Meter = metrics.Discard()
	}

	httpMetrics, err := metrics.NewHTTPServerMetrics(deps.Meter, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.WithNamespace("server"),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(trace.GinMiddleware(cfg.ServiceName))
	r.Use(metrics.GinHTTPMiddleware(httpMetrics))

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(deps.Meter.Handler()))

	v1 := r.Group("/v1")
	if deps.Limiter != nil {
		limit := deps.Limit
		if limit == nil {
			limit = ratelimit.FixedLimit(ratelimit.Limit{Rate: 20, Burst: 40})
		}
		v1.Use(ratelimit.GinMiddleware(deps.Limiter, nil, limit))
	}
	transition := []gin.HandlerFunc{s.stageTransition}
	if deps.Idempotency != nil {
		transition = append([]gin.HandlerFunc{deps.Idempotency.GinMiddleware()}, transition...)
	}
	v1.POST("/stage-transitions", transition...)
	v1.GET("/opportunities/:id/history", s.stageHistory)
	v1.POST("/roi", s.computeROI)
	v1.POST("/qualification", s.qualify)
	v1.GET("/breakers", s.listBreakers)
	if deps.Auth != nil {
		v1.POST("/breakers/:kind/reset", deps.Auth.GinMiddleware(), auth.RequireRoles(auth.RoleAdmin), s.resetBreaker)
	}

	s.engine = r
	return s, nil
}

// Handler 返回根 http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听直到 ctx 取消，然后在 ShutdownTimeout 内优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", clog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return xerrors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return xerrors.Wrap(err, "shutdown http server")
	}
	return <-errCh
}
