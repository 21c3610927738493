// Package testkit 为 dealflow 的测试提供公共依赖：日志、指标、假时钟，
// 以及基于 testcontainers 的 Redis、NATS、Kafka、MySQL 容器。
//
// 容器类辅助函数在 testing.Short() 下或 Docker 不可用时跳过测试。
package testkit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/metrics"
)

// Epoch 假时钟的默认起点
var Epoch = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
	Clock  *clock.Fake
}

// NewKit 返回一个包含默认依赖的测试工具包
func NewKit(t *testing.T) *Kit {
	t.Helper()
	return &Kit{
		Ctx:    t.Context(),
		Logger: NewLogger(),
		Meter:  NewMeter(),
		Clock:  clock.NewFake(Epoch),
	}
}

// NewLogger 返回开发格式的测试 logger
func NewLogger() clog.Logger {
	logger, err := clog.New(clog.NewDevDefaultConfig("dealflow-test"))
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewBufferLogger 返回写入 buf 的 JSON logger，用于断言日志内容
func NewBufferLogger(t *testing.T, buf *bytes.Buffer) clog.Logger {
	t.Helper()
	logger, err := clog.New(&clog.Config{Level: "debug", Format: "json", Output: "buffer"}, clog.WithBuffer(buf))
	if err != nil {
		t.Fatalf("failed to create buffer logger: %v", err)
	}
	return logger
}

// NewMeter 返回 Prometheus 后端的测试 meter，不启动 HTTP 端口
func NewMeter() metrics.Meter {
	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "dealflow-test", Version: "test"})
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewResilienceMetrics 在新的 meter 上注册弹性调用指标
func NewResilienceMetrics(t *testing.T) (*metrics.ResilienceMetrics, metrics.Meter) {
	t.Helper()
	meter := NewMeter()
	m, err := metrics.NewResilienceMetrics(meter)
	if err != nil {
		t.Fatalf("failed to register resilience metrics: %v", err)
	}
	return m, meter
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(t.Context(), timeout)
}

// NewID 返回一个短的唯一 ID，用于 Key、Topic 或表名后缀
func NewID() string {
	return uuid.New().String()[0:8]
}

// RequireDocker 在 -short 模式下或没有可用的容器运行时时跳过测试
func RequireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}
