package service

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/yeisme/mediavault/pkg/cache"
	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/internal/model"
	"github.com/yeisme/mediavault/pkg/internal/storage/db"
	"github.com/yeisme/mediavault/pkg/internal/types"
	nlog "github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/rule"
)

// JobService 账本与资产的只读视图.
type JobService struct {
	db     *db.Client
	ledger *ledger.Ledger
	cache  *cache.Cache
	ttl    time.Duration
	log    zerolog.Logger
}

// NewJobService 构造 JobService. c 为 nil 时指标不缓存.
func NewJobService(dbc *db.Client, l *ledger.Ledger, c *cache.Cache, ttl time.Duration) *JobService {
	return &JobService{db: dbc, ledger: l, cache: c, ttl: ttl, log: nlog.Component("jobs")}
}

// GetProcessingJobs 分页列出任务. owner 为空表示不限资产属主.
func (s *JobService) GetProcessingJobs(ctx context.Context, owner string, req *types.ListJobsRequest) (*types.ListJobsResponse, error) {
	const op = "jobs.list"

	if err := rule.ValidateStruct(req); err != nil {
		return nil, errs.E(errs.Validation, op, "InvalidQuery", err)
	}

	f := ledger.Filter{
		Owner:      owner,
		AssetID:    req.AssetID,
		WorkerName: req.WorkerName,
		Status:     model.JobStatus(req.Status),
		Limit:      req.Limit,
		Offset:     req.Offset,
	}

	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return nil, errs.E(errs.Validation, op, "InvalidSince", err)
		}

		f.Since = since
	}

	jobs, total, err := s.ledger.List(ctx, f)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = ledger.DefaultPageSize
	}

	return &types.ListJobsResponse{Jobs: jobs, Total: total, Limit: min(limit, ledger.MaxPageSize), Offset: req.Offset}, nil
}

// GetAssetMetrics 资产状态计数、任务计数与总字节数，结果短时缓存.
func (s *JobService) GetAssetMetrics(ctx context.Context, owner string) (*types.AssetMetricsResponse, error) {
	if s.cache == nil {
		return s.computeMetrics(ctx, owner)
	}

	key := "mv:metrics:" + owner
	if owner == "" {
		key = "mv:metrics:*all*"
	}

	resp, err := cache.GetOrSet(ctx, s.cache, key, func() (*types.AssetMetricsResponse, error) {
		return s.computeMetrics(ctx, owner)
	}, s.ttl)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (s *JobService) computeMetrics(ctx context.Context, owner string) (*types.AssetMetricsResponse, error) {
	const op = "jobs.metrics"

	var rows []struct {
		Status model.AssetStatus
		Count  int64
		Bytes  int64
	}

	q := s.db.WithContext(ctx).Model(&model.Asset{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(size), 0) AS bytes").
		Group("status")
	if owner != "" {
		q = q.Where("owner = ?", owner)
	}

	if err := q.Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	jobs, err := s.ledger.Counts(ctx, ledger.Filter{Owner: owner})
	if err != nil {
		return nil, err
	}

	resp := &types.AssetMetricsResponse{
		Assets:      map[model.AssetStatus]int64{},
		Jobs:        jobs,
		GeneratedAt: time.Now().UTC(),
	}

	for _, r := range rows {
		resp.Assets[r.Status] = r.Count
		resp.TotalAssets += r.Count
		resp.TotalBytes += r.Bytes
	}

	for _, j := range jobs {
		switch j.Status {
		case model.JobPending:
			resp.PendingJobs += j.Count
		case model.JobFailed:
			resp.FailedJobs += j.Count
		}
	}

	if resp.TotalAssets > 0 {
		resp.AverageBytes = resp.TotalBytes / resp.TotalAssets
	}

	resp.TotalSize = humanize.IBytes(uint64(max(resp.TotalBytes, 0)))

	s.log.Debug().Str("owner", owner).Int64("assets", resp.TotalAssets).Str("size", resp.TotalSize).Msg("metrics computed")

	return resp, nil
}
