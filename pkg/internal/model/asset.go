package model

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// AssetStatus 资产状态.
type AssetStatus string

const (
	AssetStart     AssetStatus = "START"     // 已签发上传地址，等待客户端上传
	AssetCompleted AssetStatus = "COMPLETED" // 上传已确认，派生任务已入队
	AssetFailed    AssetStatus = "FAILED"
)

// Valid 判断状态值是否合法.
func (s AssetStatus) Valid() bool {
	switch s {
	case AssetStart, AssetCompleted, AssetFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo 只允许 START 向终态迁移，终态不可再变.
func (s AssetStatus) CanTransitionTo(next AssetStatus) bool {
	return s == AssetStart && (next == AssetCompleted || next == AssetFailed)
}

// Asset 用户上传的媒体资产.
type Asset struct {
	ID          string      `gorm:"primaryKey;size:36"                       json:"id"`
	FileName    string      `gorm:"size:512;not null"                        json:"file_name"`
	MimeType    string      `gorm:"size:255"                                 json:"mime_type"`
	StoragePath string      `gorm:"size:1024;not null"                       json:"storage_path"`
	Owner       string      `gorm:"size:255;not null;index:idx_owner_status" json:"owner"`
	Size        int64       `json:"size"`
	Status      AssetStatus `gorm:"size:16;not null;index:idx_owner_status"  json:"status"`
	// PendingKey 仅在 START 状态下等于 owner|file_name，唯一索引保证同一用户同名文件最多一个待上传资产.
	// 两段均不超过 255 字符，utf8mb4 下索引键不能超过 3072 字节.
	PendingKey  *string    `gorm:"size:512;uniqueIndex" json:"-"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index"                json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Metadata []AssetMetadata  `gorm:"foreignKey:AssetID;constraint:OnDelete:CASCADE" json:"metadata,omitempty"`
	Jobs     []TranscodingJob `gorm:"foreignKey:AssetID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 表名.
func (Asset) TableName() string { return "assets" }

// StoragePathFor 原始文件的对象键: assets/{asset_id}/{filename}.
func StoragePathFor(assetID, fileName string) string {
	return path.Join("assets", assetID, fileName)
}

// NewAsset 构造 START 状态的新资产.
func NewAsset(owner, fileName, mimeType string, size int64) *Asset {
	id := uuid.NewString()

	return &Asset{
		ID:          id,
		FileName:    fileName,
		MimeType:    mimeType,
		StoragePath: StoragePathFor(id, fileName),
		Owner:       owner,
		Size:        size,
		Status:      AssetStart,
		PendingKey:  PendingKeyFor(owner, fileName),
	}
}

// PendingKeyFor 构造 START 资产的唯一键.
func PendingKeyFor(owner, fileName string) *string {
	k := owner + "|" + fileName
	return &k
}
