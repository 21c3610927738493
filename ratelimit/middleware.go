package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// KeyFunc 从请求中提取限流键，返回空字符串时不限流
type KeyFunc func(*gin.Context) string

// LimitFunc 返回请求适用的规则
type LimitFunc func(*gin.Context) Limit

// ClientIP 默认键：客户端 IP
func ClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// FixedLimit 所有请求使用同一规则
func FixedLimit(limit Limit) LimitFunc {
	return func(*gin.Context) Limit { return limit }
}

// PerRoute 按路由模板选择规则，未配置的路由使用 fallback
func PerRoute(routes map[string]Limit, fallback Limit) LimitFunc {
	return func(c *gin.Context) Limit {
		if l, ok := routes[c.FullPath()]; ok {
			return l
		}
		return fallback
	}
}

// GinMiddleware 限流中间件
//
// 被拒绝的请求返回 429 {code, message}；限流器出错时放行。
func GinMiddleware(limiter Limiter, keyFunc KeyFunc, limitFunc LimitFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(c *gin.Context) {
		key := keyFunc(c)
		limit := limitFunc(c)
		if key == "" || !limit.Valid() {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatFloat(limit.Rate, 'f', -1, 64))
		c.Header("X-RateLimit-Burst", strconv.Itoa(limit.Burst))

		allowed, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limited",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
