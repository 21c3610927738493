package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims JWT 载荷：标准声明加角色列表
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// HasRole 是否拥有 role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}
