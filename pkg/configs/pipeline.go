package configs

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultThumbnailWidth     = 320               // 缩略图宽度（像素）
	DefaultPresignUploadTTL   = 15 * time.Minute  // 客户端上传签名有效期
	DefaultPresignDownloadTTL = time.Hour         // 读取接口下载签名有效期
	DefaultWorkerPresignTTL   = time.Hour         // 上传 worker 使用的签名有效期
	DefaultJobTimeout         = 10 * time.Minute  // 单个任务超时
	DefaultCloseTimeout       = 30 * time.Second  // router 关闭时等待在途任务的时长
	DefaultTempRetention      = 24 * time.Hour    // 失败任务遗留的临时文件保留时长
	DefaultStalePendingAfter  = time.Hour         // PENDING 超过该时长视为滞留
	DefaultMetricsCacheTTL    = 10 * time.Second  // 指标接口缓存时长
	DefaultJanitorCron        = "*/30 * * * *"    // 临时目录清理周期
	DefaultStaleReportCron    = "*/10 * * * *"    // 滞留任务巡检周期
	DefaultRetryInitial       = time.Second       // 首次重试间隔
	DefaultRetryMax           = 30 * time.Second  // 最大重试间隔
	DefaultRetryMultiplier    = 2.0               // 重试间隔倍数
	DefaultRetryMaxRetries    = 3                 // 最大重试次数
	DefaultProcessingWorkers  = 2                 // 每种媒体的转码并发
	DefaultThumbnailWorkers   = 4                 // 每种媒体的缩略图并发
	DefaultUploadWorkers      = 4                 // 每种媒体的上传并发
	DefaultFFmpegPath         = "ffmpeg"          // ffmpeg 可执行文件
	DefaultFFprobePath        = "ffprobe"         // ffprobe 可执行文件
	DefaultPoisonQueue        = true              // 是否启用死信队列
	DefaultMaxUploadSize      = 5 << 30           // 单个文件上限 5GiB
	DefaultTempDirName        = "mediavault-work" // 系统临时目录下的工作目录名
)

// DefaultResolutions 默认转码目标高度，降序.
var DefaultResolutions = []int{720, 480}

type (
	// PipelineConfig 媒体处理流水线配置.
	PipelineConfig struct {
		TempDir            string            `mapstructure:"temp_dir"`
		Resolutions        []int             `mapstructure:"resolutions"          rule:"min=1,dive,min=16,max=4320"`
		ThumbnailWidth     int               `mapstructure:"thumbnail_width"      rule:"min=16,max=4096"`
		PresignUploadTTL   time.Duration     `mapstructure:"presign_upload_ttl"`
		PresignDownloadTTL time.Duration     `mapstructure:"presign_download_ttl"`
		WorkerPresignTTL   time.Duration     `mapstructure:"worker_presign_ttl"`
		JobTimeout         time.Duration     `mapstructure:"job_timeout"`
		CloseTimeout       time.Duration     `mapstructure:"close_timeout"`
		Concurrency        ConcurrencyConfig `mapstructure:"concurrency"`
		Retry              RetryPolicyConfig `mapstructure:"retry"`
		PoisonQueue        bool              `mapstructure:"poison_queue"`
		TempRetention      time.Duration     `mapstructure:"temp_retention"`
		JanitorCron        string            `mapstructure:"janitor_cron"         rule:"required"`
		StaleReportCron    string            `mapstructure:"stale_report_cron"    rule:"required"`
		StalePendingAfter  time.Duration     `mapstructure:"stale_pending_after"`
		MetricsCacheTTL    time.Duration     `mapstructure:"metrics_cache_ttl"`
		MaxUploadSize      int64             `mapstructure:"max_upload_size"      rule:"min=1"`
		FFmpegPath         string            `mapstructure:"ffmpeg_path"          rule:"required"`
		FFprobePath        string            `mapstructure:"ffprobe_path"         rule:"required"`
	}

	// ConcurrencyConfig 每个主题上并行的 handler 数.
	ConcurrencyConfig struct {
		Processing int `mapstructure:"processing" rule:"min=1,max=64"`
		Thumbnail  int `mapstructure:"thumbnail"  rule:"min=1,max=64"`
		Upload     int `mapstructure:"upload"     rule:"min=1,max=64"`
	}

	// RetryPolicyConfig 队列重试策略.
	RetryPolicyConfig struct {
		MaxRetries      int           `mapstructure:"max_retries"      rule:"min=0,max=50"`
		InitialInterval time.Duration `mapstructure:"initial_interval"`
		MaxInterval     time.Duration `mapstructure:"max_interval"`
		Multiplier      float64       `mapstructure:"multiplier"       rule:"min=1"`
	}
)

// GetTempDir 返回工作目录，未配置时落在系统临时目录下.
func (p *PipelineConfig) GetTempDir() string {
	if p.TempDir != "" {
		return p.TempDir
	}

	return filepath.Join(os.TempDir(), DefaultTempDirName)
}

// GetResolutions 返回降序排列且去重的目标高度.
func (p *PipelineConfig) GetResolutions() []int {
	res := slices.Clone(p.Resolutions)
	if len(res) == 0 {
		res = slices.Clone(DefaultResolutions)
	}

	slices.Sort(res)
	res = slices.Compact(res)
	slices.Reverse(res)

	return res
}

// GetJobTimeout 返回单个任务的超时，非正值时使用默认值.
func (p *PipelineConfig) GetJobTimeout() time.Duration {
	return orDefault(p.JobTimeout, DefaultJobTimeout)
}

// GetCloseTimeout 返回 router 关闭等待时长.
func (p *PipelineConfig) GetCloseTimeout() time.Duration {
	return orDefault(p.CloseTimeout, DefaultCloseTimeout)
}

// GetWorkerPresignTTL 返回 worker 侧签名有效期.
func (p *PipelineConfig) GetWorkerPresignTTL() time.Duration {
	return orDefault(p.WorkerPresignTTL, DefaultWorkerPresignTTL)
}

// GetPresignUploadTTL 返回客户端上传签名有效期.
func (p *PipelineConfig) GetPresignUploadTTL() time.Duration {
	return orDefault(p.PresignUploadTTL, DefaultPresignUploadTTL)
}

// GetPresignDownloadTTL 返回下载签名有效期.
func (p *PipelineConfig) GetPresignDownloadTTL() time.Duration {
	return orDefault(p.PresignDownloadTTL, DefaultPresignDownloadTTL)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}

	return d
}

// setDefaults 设置流水线配置的默认值.
func (p *PipelineConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.temp_dir", "")
	v.SetDefault("pipeline.resolutions", DefaultResolutions)
	v.SetDefault("pipeline.thumbnail_width", DefaultThumbnailWidth)
	v.SetDefault("pipeline.presign_upload_ttl", DefaultPresignUploadTTL)
	v.SetDefault("pipeline.presign_download_ttl", DefaultPresignDownloadTTL)
	v.SetDefault("pipeline.worker_presign_ttl", DefaultWorkerPresignTTL)
	v.SetDefault("pipeline.job_timeout", DefaultJobTimeout)
	v.SetDefault("pipeline.close_timeout", DefaultCloseTimeout)
	v.SetDefault("pipeline.concurrency.processing", DefaultProcessingWorkers)
	v.SetDefault("pipeline.concurrency.thumbnail", DefaultThumbnailWorkers)
	v.SetDefault("pipeline.concurrency.upload", DefaultUploadWorkers)
	v.SetDefault("pipeline.retry.max_retries", DefaultRetryMaxRetries)
	v.SetDefault("pipeline.retry.initial_interval", DefaultRetryInitial)
	v.SetDefault("pipeline.retry.max_interval", DefaultRetryMax)
	v.SetDefault("pipeline.retry.multiplier", DefaultRetryMultiplier)
	v.SetDefault("pipeline.poison_queue", DefaultPoisonQueue)
	v.SetDefault("pipeline.temp_retention", DefaultTempRetention)
	v.SetDefault("pipeline.janitor_cron", DefaultJanitorCron)
	v.SetDefault("pipeline.stale_report_cron", DefaultStaleReportCron)
	v.SetDefault("pipeline.stale_pending_after", DefaultStalePendingAfter)
	v.SetDefault("pipeline.metrics_cache_ttl", DefaultMetricsCacheTTL)
	v.SetDefault("pipeline.max_upload_size", DefaultMaxUploadSize)
	v.SetDefault("pipeline.ffmpeg_path", DefaultFFmpegPath)
	v.SetDefault("pipeline.ffprobe_path", DefaultFFprobePath)
}
