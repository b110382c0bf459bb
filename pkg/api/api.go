// Package api 把各路由组挂载到 gin 引擎的 /api/v1 下.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/mediavault/pkg/internal/handle"
	"github.com/yeisme/mediavault/pkg/internal/router"
)

// Prefix API 版本前缀.
const Prefix = "/api/v1"

// RegisterGroup 注册全部业务路由，mws 作用于整个 /api/v1 组，reads 只作用于资产查询路由.
func RegisterGroup(e *gin.Engine, h *handle.Handlers, reads []gin.HandlerFunc, mws ...gin.HandlerFunc) *gin.RouterGroup {
	v1 := e.Group(Prefix, mws...)

	router.RegisterHealthCheckRoute(v1)
	router.RegisterAssetRoutes(v1, h, reads...)
	router.RegisterSchedulerRoutes(v1, h)

	return v1
}
