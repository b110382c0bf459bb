package types

import (
	"time"

	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/internal/metadata"
	"github.com/yeisme/mediavault/pkg/internal/model"
)

// PresignUploadRequest 申请上传地址.
type PresignUploadRequest struct {
	FileName string `form:"file_name" json:"file_name" binding:"required" rule:"required,max=255"`
	MimeType string `form:"mime_type" json:"mime_type" rule:"omitempty,max=255"` // 为空时按扩展名推断
	Size     int64  `form:"size"      json:"size"      rule:"min=0"`
}

// PresignUploadResponse 上传地址与对应资产.
type PresignUploadResponse struct {
	AssetID     string    `json:"asset_id"`
	StoragePath string    `json:"storage_path"`
	UploadURL   string    `json:"upload_url"`
	Method      string    `json:"method"`
	ExpiresIn   int       `json:"expires_in"` // 秒
	ExpiresAt   time.Time `json:"expires_at"`
	Reused      bool      `json:"reused"`
}

// CompleteUploadRequest 客户端上传完成后确认.
type CompleteUploadRequest struct {
	AssetID string `json:"asset_id" binding:"required" rule:"required,uuid"`
}

// AssetResponse 资产详情.
type AssetResponse struct {
	model.Asset

	Kind      string                                     `json:"kind"`
	Variants  map[model.MetadataFamily]metadata.Document `json:"variants,omitempty"`
	Downloads map[string]string                          `json:"downloads,omitempty"` // 变体名 -> 下载地址
}

// ListAssetsRequest 资产列表查询.
type ListAssetsRequest struct {
	Status string `form:"status" rule:"omitempty,oneof=START COMPLETED FAILED"`
	Limit  int    `form:"limit"  rule:"omitempty,min=1,max=500"`
	Offset int    `form:"offset" rule:"omitempty,min=0"`
}

// ListAssetsResponse 资产列表.
type ListAssetsResponse struct {
	Assets []model.Asset `json:"assets"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListJobsRequest 任务列表查询. 非管理员只能看到自己的资产.
type ListJobsRequest struct {
	AssetID    string `form:"asset_id"    rule:"omitempty,uuid"`
	Status     string `form:"status"      rule:"omitempty,oneof=PENDING ACTIVE COMPLETED FAILED"`
	WorkerName string `form:"worker_name" rule:"omitempty,max=64"`
	Since      string `form:"since"       rule:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit      int    `form:"limit"       rule:"omitempty,min=1,max=500"`
	Offset     int    `form:"offset"      rule:"omitempty,min=0"`
}

// ListJobsResponse 任务列表.
type ListJobsResponse struct {
	Jobs   []model.TranscodingJob `json:"jobs"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// AssetMetricsResponse 资产与任务的聚合指标.
type AssetMetricsResponse struct {
	Assets       map[model.AssetStatus]int64 `json:"assets"`
	Jobs         []ledger.WorkerStatusCount  `json:"jobs"`
	TotalBytes   int64                       `json:"total_bytes"`
	TotalSize    string                      `json:"total_size"`
	GeneratedAt  time.Time                   `json:"generated_at"`
	PendingJobs  int64                       `json:"pending_jobs"`
	FailedJobs   int64                       `json:"failed_jobs"`
	TotalAssets  int64                       `json:"total_assets"`
	AverageBytes int64                       `json:"average_bytes"`
}

// ErrorResponse 统一错误体.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}
