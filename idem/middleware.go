package idem

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/dealflow/clog"
)

const (
	// HeaderKey 默认的幂等键请求头
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed 重放响应时附带的响应头
	HeaderReplayed = "Idempotent-Replayed"
)

// MiddlewareOption 中间件选项
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	header string
}

// WithHeader 自定义幂等键请求头
func WithHeader(name string) MiddlewareOption {
	return func(o *middlewareOptions) {
		if name != "" {
			o.header = name
		}
	}
}

type cachedResponse struct {
	Status int         `msgpack:"status"`
	Header http.Header `msgpack:"header"`
	Body   []byte      `msgpack:"body"`
}

// GinMiddleware 按请求头中的幂等键保护路由
//
// 没有幂等键的请求直接放行。键按 "方法 路由" 隔离，只有 2xx 响应会被保存；
// 其他响应释放锁，调用方可以用同一个键重试。
func (g *Guard) GinMiddleware(opts ...MiddlewareOption) gin.HandlerFunc {
	o := middlewareOptions{header: HeaderKey}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		raw := c.GetHeader(o.header)
		if raw == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := c.Request.Method + " " + c.FullPath() + " " + raw

		cached, token, err := g.acquire(ctx, key)
		switch {
		case errors.Is(err, ErrInFlight):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"code":    "idempotency_in_flight",
				"message": "a request with the same idempotency key is still being processed",
			})
			return
		case err != nil:
			g.logger.ErrorContext(ctx, "idempotency check failed", clog.String("key", key), clog.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "internal", "message": "idempotency check failed"})
			return
		case token == "":
			if g.replay(c, cached) {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "internal", "message": "corrupted idempotent response"})
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			g.release(ctx, key, token)
			return
		}
		header := w.Header().Clone()
		header.Del("Content-Length")
		val, err := msgpack.Marshal(cachedResponse{Status: status, Header: header, Body: w.body.Bytes()})
		if err != nil {
			g.logger.ErrorContext(ctx, "failed to encode idempotent response", clog.String("key", key), clog.Error(err))
			g.release(ctx, key, token)
			return
		}
		if err := g.store.SetResult(ctx, key, val, g.cfg.TTL, token); err != nil {
			g.logger.ErrorContext(ctx, "failed to save idempotent response", clog.String("key", key), clog.Error(err))
			g.release(ctx, key, token)
		}
	}
}

func (g *Guard) replay(c *gin.Context, raw []byte) bool {
	var resp cachedResponse
	if err := msgpack.Unmarshal(raw, &resp); err != nil {
		g.logger.ErrorContext(c.Request.Context(), "failed to decode idempotent response", clog.Error(err))
		return false
	}
	for name, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Writer.Header().Set(HeaderReplayed, "true")
	c.Status(resp.Status)
	_, _ = c.Writer.Write(resp.Body)
	return true
}

// captureWriter 记录写出的响应体
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
