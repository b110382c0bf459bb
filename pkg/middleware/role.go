package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Role 请求方角色，数值越大权限越高.
type Role int

const (
	RoleUser Role = iota + 1
	RoleMember
	RoleEnterprise
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleUser:       "user",
	RoleMember:     "member",
	RoleEnterprise: "enterprise",
	RoleAdmin:      "admin",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}

	return roleNames[RoleUser]
}

// ParseRole 解析角色名，未知值降级为 user.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r
		}
	}

	return RoleUser
}

type roleKey struct{}

// RoleFromContext 从 request context 取角色，供 service 层使用.
func RoleFromContext(ctx context.Context) Role {
	if r, ok := ctx.Value(roleKey{}).(Role); ok {
		return r
	}

	return RoleUser
}

// RoleMiddleware 解析 X-Role 写入 gin 与 request 上下文. 缺省为 user.
func RoleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := ParseRole(c.GetHeader("X-Role"))

		c.Set("role", r)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), roleKey{}, r))
		c.Next()
	}
}

// GetRole 当前请求的角色.
func GetRole(c *gin.Context) Role {
	if r, ok := c.Value("role").(Role); ok {
		return r
	}

	return RoleFromContext(c.Request.Context())
}

// RequireMinRole 角色低于 min 时返回 403.
func RequireMinRole(minRole Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) < minRole {
			abort(c, http.StatusForbidden, "InsufficientRole", "requires role "+minRole.String())
			return
		}

		c.Next()
	}
}
