// Package jobs 负责注册与实现业务定时任务（基于 scheduler）。
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/internal/pipeline"
	"github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/metrics"
	"github.com/yeisme/mediavault/pkg/scheduler"
)

// Deps 定时任务依赖.
type Deps struct {
	Files  *pipeline.Workspace
	Ledger *ledger.Ledger
	Config configs.PipelineConfig
}

// RegisterCronJobs 配置业务定时任务：
//   - 按 janitor_cron 清理失败任务遗留的临时文件
//   - 按 stale_report_cron 报告长时间未被消费的 PENDING 任务
func RegisterCronJobs(ctx context.Context, sched *scheduler.Scheduler, deps Deps) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if deps.Files == nil || deps.Ledger == nil {
		return fmt.Errorf("jobs dependencies not initialized")
	}

	if err := sched.AddCron(ctx, JobTempSweep, deps.Config.JanitorCron, func(context.Context) error {
		_, err := SweepTemp(deps.Files, retention(deps.Config))
		return err
	}); err != nil {
		return fmt.Errorf("add %s: %w", JobTempSweep, err)
	}

	if err := sched.AddCron(ctx, JobStaleReport, deps.Config.StaleReportCron, func(ctx context.Context) error {
		_, err := ReportStale(ctx, deps.Ledger, staleAfter(deps.Config))
		return err
	}); err != nil {
		return fmt.Errorf("add %s: %w", JobStaleReport, err)
	}

	return nil
}

// SweepTemp 删除超过保留期的临时文件，返回删除数量. 部分文件删除失败时仍返回已删除数.
func SweepTemp(ws *pipeline.Workspace, olderThan time.Duration) (int, error) {
	l := log.Logger().With().Str("job", JobTempSweep).Logger()

	n, err := ws.Sweep(olderThan)
	if err != nil {
		err = fmt.Errorf("sweep %s: %w", ws.Root(), err)
	}

	if n > 0 {
		metrics.TempFilesSwept.Add(float64(n))
		l.Info().Int("removed", n).Dur("older_than", olderThan).Msg("temp files swept")
	}

	return n, err
}

// ReportStale 记录滞留的 PENDING 任务，返回数量. 只报告不修改账本.
func ReportStale(ctx context.Context, l *ledger.Ledger, olderThan time.Duration) (int, error) {
	lg := log.Logger().With().Str("job", JobStaleReport).Logger()

	jobs, err := l.StalePending(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("query stale jobs: %w", err)
	}

	for _, j := range jobs {
		lg.Warn().
			Str("job_id", j.JobID).
			Str("asset_id", j.AssetID).
			Str("worker", j.WorkerName).
			Time("enqueued_at", j.CreatedAt).
			Msg("job pending too long")
	}

	return len(jobs), nil
}

func retention(cfg configs.PipelineConfig) time.Duration {
	if cfg.TempRetention > 0 {
		return cfg.TempRetention
	}

	return configs.DefaultTempRetention
}

func staleAfter(cfg configs.PipelineConfig) time.Duration {
	if cfg.StalePendingAfter > 0 {
		return cfg.StalePendingAfter
	}

	return configs.DefaultStalePendingAfter
}
