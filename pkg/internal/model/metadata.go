package model

import (
	"time"

	"gorm.io/datatypes"
)

// MetadataFamily 元数据族，每个资产每个族一行.
type MetadataFamily string

const (
	FamilyVideoVariants MetadataFamily = "video_variants"
	FamilyImageVariants MetadataFamily = "image_variants"
)

// Valid 判断族名是否已知.
func (f MetadataFamily) Valid() bool {
	return f == FamilyVideoVariants || f == FamilyImageVariants
}

// AssetMetadata 资产派生产物的元数据文档.
type AssetMetadata struct {
	ID            uint           `gorm:"primaryKey"                                  json:"-"`
	AssetID       string         `gorm:"size:36;not null;uniqueIndex:idx_asset_family" json:"asset_id"`
	Family        MetadataFamily `gorm:"size:64;not null;uniqueIndex:idx_asset_family" json:"family"`
	Value         datatypes.JSON `json:"value"`
	SchemaVersion int            `gorm:"not null;default:1"                          json:"schema_version"`
	// Revision 每次合并写入自增，便于排查并发写
	Revision  int64     `gorm:"not null;default:0" json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 表名.
func (AssetMetadata) TableName() string { return "asset_metadata" }
