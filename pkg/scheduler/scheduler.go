// Package scheduler 包装 gocron/v2，按名称管理维护类定时任务并记录每次执行的结果.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yeisme/mediavault/pkg/log"
)

// JobStatus 任务状态.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled"
	StatusRunning   JobStatus = "running"
	StatusError     JobStatus = "error"
)

// Task 定时执行的函数. 返回的错误记录到 JobInfo.Error.
type Task func(ctx context.Context) error

// JobInfo 任务的调度与执行情况.
type JobInfo struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	CronExpr     string        `json:"cron_expr"`
	NextRun      time.Time     `json:"next_run"`
	LastRun      time.Time     `json:"last_run"`
	LastSuccess  time.Time     `json:"last_success,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	Status       JobStatus     `json:"status"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Scheduler 定时任务调度器.
type Scheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	infos     map[string]*JobInfo
	mu        sync.RWMutex
	log       zerolog.Logger
}

// NewScheduler 创建调度器. 调用 Start 后任务才会执行.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		infos:     make(map[string]*JobInfo),
		log:       log.Component("scheduler"),
	}, nil
}

// AddCron 注册 cron 任务. 同名任务只能注册一次；上一轮未结束时本轮跳过.
func (s *Scheduler) AddCron(ctx context.Context, name, cronExpr string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	run := func(ctx context.Context) error {
		start := time.Now()
		s.begin(name, start)

		err := task(ctx)
		s.finish(name, time.Since(start), err)

		return err
	}

	j, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(run, ctx),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithEventListeners(
			gocron.AfterJobRunsWithPanic(func(_ uuid.UUID, jobName string, recoverData any) {
				s.finish(jobName, 0, fmt.Errorf("panic: %v", recoverData))
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.jobs[name] = j
	s.infos[name] = &JobInfo{
		ID:        j.ID().String(),
		Name:      name,
		CronExpr:  cronExpr,
		Status:    StatusScheduled,
		CreatedAt: time.Now(),
	}

	s.log.Info().Str("job", name).Str("cron", cronExpr).Msg("cron job added")

	return nil
}

func (s *Scheduler) begin(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.infos[name]; ok {
		info.Status = StatusRunning
		info.LastRun = at
	}
}

func (s *Scheduler) finish(name string, took time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.infos[name]
	if !ok {
		return
	}

	info.Runs++
	info.LastDuration = took

	if err != nil {
		info.Failures++
		info.Status = StatusError
		info.Error = err.Error()

		s.log.Error().Err(err).Str("job", name).Msg("cron job failed")

		return
	}

	info.Status = StatusScheduled
	info.Error = ""
	info.LastSuccess = time.Now()
}

// RemoveJobByName 按名称移除任务.
func (s *Scheduler) RemoveJobByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s does not exist", name)
	}

	if err := s.scheduler.RemoveJob(job.ID()); err != nil {
		return err
	}

	delete(s.jobs, name)
	delete(s.infos, name)

	s.log.Info().Str("job", name).Msg("cron job removed")

	return nil
}

// GetJobByName 按名称取 gocron 任务，可用于 RunNow.
func (s *Scheduler) GetJobByName(name string) (gocron.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s does not exist", name)
	}

	return job, nil
}

// GetJobInfoByName 按名称取任务信息快照.
func (s *Scheduler) GetJobInfoByName(name string) (*JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, exists := s.infos[name]
	if !exists {
		return nil, fmt.Errorf("job %s does not exist", name)
	}

	out := s.snapshot(name, info)

	return &out, nil
}

// GetJobInfos 返回全部任务信息，按名称排序.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.infos))
	for name, info := range s.infos {
		out = append(out, s.snapshot(name, info))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// snapshot 复制信息并补上下一次执行时间. 调用方持有读锁.
func (s *Scheduler) snapshot(name string, info *JobInfo) JobInfo {
	out := *info
	if job, ok := s.jobs[name]; ok {
		if next, err := job.NextRun(); err == nil {
			out.NextRun = next
		}
	}

	return out
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
	s.scheduler.Start()
}

// StopJobs 停止调度但保留任务，Start 可恢复.
func (s *Scheduler) StopJobs() error {
	return s.scheduler.StopJobs()
}

// Shutdown 停止调度并等待执行中的任务结束.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}

// JobsWaitingInQueue 等待执行的任务数.
func (s *Scheduler) JobsWaitingInQueue() int {
	return s.scheduler.JobsWaitingInQueue()
}
