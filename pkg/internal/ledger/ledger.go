// Package ledger 记录派生任务的生命周期.
//
// 每个入队的任务对应一行 transcoding_jobs，以 job_id（即消息 UUID）唯一关联.
// 状态只会沿 PENDING → ACTIVE → COMPLETED/FAILED 前进，终态不可改写；
// 同一任务被重投时 ACTIVE → ACTIVE 仅累加 attempts.
//
// 写入是尽力而为的：失败只记录日志与指标，不影响处理链路.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/model"
	dbc "github.com/yeisme/mediavault/pkg/internal/storage/db"
	nlog "github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/metrics"
)

// maxErrorLen last_error 最大保存长度.
const maxErrorLen = 2048

// JobRef 定位一条任务.
type JobRef struct {
	JobID      string
	AssetID    string
	WorkerName string
}

// Ledger 任务账本.
type Ledger struct {
	db  *dbc.Client
	log zerolog.Logger
	now func() time.Time
}

// New 构造账本.
func New(db *dbc.Client) *Ledger {
	return &Ledger{
		db:  db,
		log: nlog.Component("ledger"),
		now: time.Now,
	}
}

// Pending 记录入队.
func (l *Ledger) Pending(ctx context.Context, ref JobRef) {
	l.record(ctx, ref, model.JobPending, "")
}

// Active 记录开始处理.
func (l *Ledger) Active(ctx context.Context, ref JobRef) {
	l.record(ctx, ref, model.JobActive, "")
}

// Completed 记录处理成功.
func (l *Ledger) Completed(ctx context.Context, ref JobRef) {
	l.record(ctx, ref, model.JobCompleted, "")
}

// Failed 记录最终失败.
func (l *Ledger) Failed(ctx context.Context, ref JobRef, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	l.record(ctx, ref, model.JobFailed, msg)
}

func (l *Ledger) record(ctx context.Context, ref JobRef, status model.JobStatus, cause string) {
	applied, err := l.Transition(ctx, ref, status, cause)
	if err != nil {
		metrics.LedgerWriteFailures.WithLabelValues(string(status.Event())).Inc()
		l.log.Warn().
			Err(err).
			Str("job_id", ref.JobID).
			Str("asset_id", ref.AssetID).
			Str("worker", ref.WorkerName).
			Str("status", string(status)).
			Msg("ledger write skipped")

		return
	}

	if applied {
		metrics.JobsTotal.WithLabelValues(ref.WorkerName, string(status.Event())).Inc()
	}
}

// Transition 把任务推进到 status，返回是否有行被写入. 倒退或改写终态不会写入，也不报错.
func (l *Ledger) Transition(ctx context.Context, ref JobRef, status model.JobStatus, cause string) (bool, error) {
	const op = "ledger.transition"

	if ref.JobID == "" {
		return false, errs.E(errs.LedgerWriteFailure, op, "MissingJobID", nil)
	}

	if len(cause) > maxErrorLen {
		cause = cause[:maxErrorLen]
	}

	now := l.now().UTC()
	db := l.db.WithContext(ctx)

	row := model.TranscodingJob{
		JobID:      ref.JobID,
		AssetID:    ref.AssetID,
		WorkerName: ref.WorkerName,
		Status:     status,
		EventName:  status.Event(),
		LastError:  cause,
	}

	switch {
	case status == model.JobActive:
		row.Attempts = 1
		row.StartedAt = &now
	case status.Terminal():
		row.FinishedAt = &now
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, errs.Wrap(errs.LedgerWriteFailure, op, res.Error)
	}

	if res.RowsAffected > 0 {
		return true, nil
	}

	updates := map[string]any{
		"status":     status,
		"event_name": status.Event(),
		"updated_at": now,
	}

	switch {
	case status == model.JobActive:
		updates["attempts"] = gorm.Expr("attempts + 1")
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
	case status.Terminal():
		updates["finished_at"] = now
		updates["last_error"] = cause
	}

	preds := status.Predecessors()
	if len(preds) == 0 {
		return false, nil
	}

	res = db.Model(&model.TranscodingJob{}).
		Where("job_id = ? AND status IN ?", ref.JobID, preds).
		Updates(updates)
	if res.Error != nil {
		return false, errs.Wrap(errs.LedgerWriteFailure, op, res.Error)
	}

	return res.RowsAffected > 0, nil
}

// Get 按 job_id 读取.
func (l *Ledger) Get(ctx context.Context, jobID string) (*model.TranscodingJob, error) {
	var job model.TranscodingJob

	err := l.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.NotFound, "ledger.get", "JobNotFound", err)
	}

	if err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "ledger.get", err)
	}

	return &job, nil
}
