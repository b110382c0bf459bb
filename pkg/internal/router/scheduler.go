package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/mediavault/pkg/internal/handle"
	"github.com/yeisme/mediavault/pkg/middleware"
)

// RegisterSchedulerRoutes 注册调度器管理路由，仅管理员可访问.
func RegisterSchedulerRoutes(g *gin.RouterGroup, h *handle.Handlers) {
	sched := g.Group("/scheduler", middleware.RequireMinRole(middleware.RoleAdmin))
	{
		sched.GET("/jobs", h.SchedulerJobs)
		sched.GET("/jobs/:name", h.SchedulerJob)
		sched.POST("/jobs/:name/run", h.SchedulerRunJob)
		sched.POST("/jobs/stop", h.SchedulerStopJobs)
		sched.DELETE("/jobs/:name", h.SchedulerRemoveJob)
		sched.GET("/queue/waiting", h.SchedulerQueueWaiting)
	}
}
