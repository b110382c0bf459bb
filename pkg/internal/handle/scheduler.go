package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/middleware"
	"github.com/yeisme/mediavault/pkg/scheduler"
)

func (h *Handlers) scheduler(c *gin.Context) (*scheduler.Scheduler, bool) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		h.fail(c, errs.E(errs.StorageUnavailable, "http.scheduler", "SchedulerUnavailable", nil))
		return nil, false
	}

	return sched, true
}

// SchedulerJobs 返回所有定时任务（临时目录清理、滞留任务巡检）的状态.
func (h *Handlers) SchedulerJobs(c *gin.Context) {
	sched, ok := h.scheduler(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": sched.GetJobInfos()})
}

// SchedulerJob 单个任务的状态.
func (h *Handlers) SchedulerJob(c *gin.Context) {
	sched, ok := h.scheduler(c)
	if !ok {
		return
	}

	info, err := sched.GetJobInfoByName(c.Param("name"))
	if err != nil {
		h.fail(c, errs.E(errs.NotFound, "http.scheduler", "JobNotFound", err))
		return
	}

	c.JSON(http.StatusOK, info)
}

// SchedulerRunJob 立即触发一次任务.
func (h *Handlers) SchedulerRunJob(c *gin.Context) {
	sched, ok := h.scheduler(c)
	if !ok {
		return
	}

	name := c.Param("name")

	job, err := sched.GetJobByName(name)
	if err != nil {
		h.fail(c, errs.E(errs.NotFound, "http.scheduler", "JobNotFound", err))
		return
	}

	if err := job.RunNow(); err != nil {
		h.fail(c, errs.Wrap(errs.Unknown, "http.scheduler", err))
		return
	}

	h.log.Info().Str("job", name).Msg("cron job triggered")

	c.JSON(http.StatusAccepted, gin.H{"job": name, "message": "job triggered"})
}

// SchedulerStopJobs 停止所有任务.
func (h *Handlers) SchedulerStopJobs(c *gin.Context) {
	sched, ok := h.scheduler(c)
	if !ok {
		return
	}

	if err := sched.StopJobs(); err != nil {
		h.fail(c, errs.Wrap(errs.Unknown, "http.scheduler", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "jobs stopped"})
}

// SchedulerRemoveJob 按名称删除任务.
func (h *Handlers) SchedulerRemoveJob(c *gin.Context) {
	sched, ok := h.scheduler(c)
	if !ok {
		return
	}

	if err := sched.RemoveJobByName(c.Param("name")); err != nil {
		h.fail(c, errs.E(errs.NotFound, "http.scheduler", "JobNotFound", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job removed"})
}

// SchedulerQueueWaiting 返回等待执行的任务数.
func (h *Handlers) SchedulerQueueWaiting(c *gin.Context) {
	sched, ok := h.scheduler(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"waiting": sched.JobsWaitingInQueue()})
}
