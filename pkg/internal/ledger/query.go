package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/model"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Filter 账本查询条件，零值字段不参与过滤.
type Filter struct {
	Owner      string
	AssetID    string
	WorkerName string
	Status     model.JobStatus
	Since      time.Time
	Limit      int
	Offset     int
}

// WorkerStatusCount 按 worker 与状态的计数.
type WorkerStatusCount struct {
	WorkerName string          `json:"worker_name"`
	Status     model.JobStatus `json:"status"`
	Count      int64           `json:"count"`
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.Owner != "" {
		q = q.Where("asset_id IN (?)",
			q.Session(&gorm.Session{NewDB: true}).Model(&model.Asset{}).Select("id").Where("owner = ?", f.Owner))
	}

	if f.AssetID != "" {
		q = q.Where("asset_id = ?", f.AssetID)
	}

	if f.WorkerName != "" {
		q = q.Where("worker_name = ?", f.WorkerName)
	}

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}

	return q
}

func (f Filter) page() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	limit = min(limit, MaxPageSize)

	return limit, max(f.Offset, 0)
}

// List 分页列出任务，按创建时间倒序. 返回总数.
func (l *Ledger) List(ctx context.Context, f Filter) ([]model.TranscodingJob, int64, error) {
	const op = "ledger.list"

	var total int64
	if err := f.apply(l.db.WithContext(ctx).Model(&model.TranscodingJob{})).Count(&total).Error; err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	limit, offset := f.page()

	var jobs []model.TranscodingJob

	err := f.apply(l.db.WithContext(ctx).Model(&model.TranscodingJob{})).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	return jobs, total, nil
}

// Counts 按 worker 与状态聚合.
func (l *Ledger) Counts(ctx context.Context, f Filter) ([]WorkerStatusCount, error) {
	var out []WorkerStatusCount

	err := f.apply(l.db.WithContext(ctx).Model(&model.TranscodingJob{})).
		Select("worker_name, status, COUNT(*) AS count").
		Group("worker_name, status").
		Order("worker_name, status").
		Scan(&out).Error
	if err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "ledger.counts", err)
	}

	return out, nil
}

// StalePending 返回入队超过 olderThan 仍未被消费的任务.
func (l *Ledger) StalePending(ctx context.Context, olderThan time.Duration) ([]model.TranscodingJob, error) {
	cutoff := l.now().UTC().Add(-olderThan)

	var jobs []model.TranscodingJob

	err := l.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.JobPending, cutoff).
		Order("created_at").
		Limit(MaxPageSize).
		Find(&jobs).Error
	if err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "ledger.stale", err)
	}

	return jobs, nil
}
