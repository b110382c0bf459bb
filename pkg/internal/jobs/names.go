package jobs

// 调度器中的任务名，也是 /api/v1/scheduler/jobs 中展示的名称.
const (
	JobTempSweep   = "janitor.temp_sweep"
	JobStaleReport = "ledger.stale_report"
)
