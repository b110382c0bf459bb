package queue

import (
	"time"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/media"
	"github.com/yeisme/mediavault/pkg/rule"
)

// EventHeader 定义所有事件的通用头部元数据.
// 建议在发布消息时填充 TraceID、OccurredAt、Producer 等，便于追踪链路与审计.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// JobID 任务 ID，与消息 UUID 一致.
	JobID string `json:"job_id"`
	// TraceID 分布式追踪/关联 ID，可来自中间件或业务生成.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本，便于向后兼容演进.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
// T 即不同主题对应的负载结构体.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// LocalFile 在阶段间移交的本地临时文件. Release 为 true 时接收方负责在处理成功后删除它.
type LocalFile struct {
	Path    string `json:"path"    rule:"required"`
	Release bool   `json:"release"`
}

// ProcessPayload 处理队列负载：下载原始文件、探测并扇出.
type ProcessPayload struct {
	AssetID     string     `json:"asset_id"     rule:"required,uuid"`
	StoragePath string     `json:"storage_path" rule:"required,storagekey"`
	MimeType    string     `json:"mime_type"`
	Kind        media.Kind `json:"kind"         rule:"oneof=video image"`
}

// ThumbnailPayload 缩略图队列负载.
type ThumbnailPayload struct {
	AssetID     string     `json:"asset_id"     rule:"required,uuid"`
	StoragePath string     `json:"storage_path" rule:"required,storagekey"`
	Source      LocalFile  `json:"source"`
	Kind        media.Kind `json:"kind"         rule:"oneof=video image"`
}

// UploadPayload 上传队列负载：把本地派生文件推送到预签名地址并登记元数据.
type UploadPayload struct {
	AssetID        string     `json:"asset_id"        rule:"required,uuid"`
	Family         string     `json:"family"          rule:"required"`
	Variant        string     `json:"variant"         rule:"required"`
	Source         LocalFile  `json:"source"`
	DestinationKey string     `json:"destination_key" rule:"required,storagekey"`
	PresignedURL   string     `json:"presigned_url"   rule:"required,url"`
	ContentType    string     `json:"content_type"    rule:"required"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	Size           int64      `json:"size,omitempty"`
	Duration       float64    `json:"duration,omitempty"` // 秒
	Kind           media.Kind `json:"kind"            rule:"oneof=video image"`
}

// Validate 校验负载，失败为不可重试的 Validation 错误.
func Validate(op string, payload any) error {
	if err := rule.ValidateStruct(payload); err != nil {
		return errs.E(errs.Validation, op, "InvalidPayload", err)
	}

	return nil
}
