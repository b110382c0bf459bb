// Package middleware 提供 gin 中间件：认证、日志、追踪、指标、限流、熔断、缓存与依赖注入.
package middleware

import "github.com/gin-gonic/gin"

// abort 以与业务错误一致的 {error, reason} 结构终止请求.
func abort(c *gin.Context, status int, reason, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "reason": reason})
}
