package middleware

import (
	"github.com/gin-gonic/gin"

	mvctx "github.com/yeisme/mediavault/pkg/context"
	"github.com/yeisme/mediavault/pkg/internal/storage"
	"github.com/yeisme/mediavault/pkg/scheduler"
)

const schedulerKey = "mv.scheduler"

// StorageMiddleware 把存储管理器放进 request context，健康检查据此探测各组件.
func StorageMiddleware(manager *storage.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(mvctx.WithStorageManager(c.Request.Context(), manager))
		c.Next()
	}
}

// SchedulerMiddleware 把调度器放进 gin 上下文，供 /scheduler 路由使用.
func SchedulerMiddleware(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sched != nil {
			c.Set(schedulerKey, sched)
		}

		c.Next()
	}
}

// GetScheduler 未注入时返回 nil.
func GetScheduler(c *gin.Context) *scheduler.Scheduler {
	sched, _ := c.Value(schedulerKey).(*scheduler.Scheduler)
	return sched
}
