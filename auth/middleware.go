package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ClaimsKey gin.Context 中保存 Claims 的键
const ClaimsKey = "auth:claims"

// GinMiddleware 校验 Bearer Token，失败返回 401 {code, message}
func (a *Authenticator) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c.Request)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		claims, err := a.Validate(c.Request.Context(), token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireRoles 要求 Claims 包含全部 roles，需在 GinMiddleware 之后使用
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", ErrMissingToken.Error())
			return
		}
		for _, r := range roles {
			if !claims.HasRole(r) {
				abort(c, http.StatusForbidden, "forbidden", "missing role "+r)
				return
			}
		}
		c.Next()
	}
}

// GetClaims 从 gin.Context 读取 Claims
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": msg})
}
