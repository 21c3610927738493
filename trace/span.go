package trace

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ceyewan/dealflow"

const (
	// 远程调用语义属性键
	AttrOperationKind = "dealflow.operation.kind"
	AttrCallID        = "dealflow.call.id"
	AttrAttempt       = "dealflow.attempt"
	AttrAttempts      = "dealflow.attempts"
	AttrFallback      = "dealflow.fallback"
	AttrCircuitOpen   = "dealflow.circuit_open"
)

// SpanNameRemoteCall 返回远程调用的标准 Span Name
func SpanNameRemoteCall(kind string) string {
	if kind == "" {
		return "remote.call"
	}
	return "remote.call " + kind
}

// StartSpan 使用全局 TracerProvider 启动一个内部 Span
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer(instrumentationName).Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// MarkSpanError 记录错误并将 Span 状态置为 Error
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GinMiddleware 返回 Gin 链路追踪中间件
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}
