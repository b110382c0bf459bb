// Package model 定义持久化到关系库的 GORM 模型.
package model

// All 返回需要迁移的全部模型，顺序满足外键依赖.
func All() []any {
	return []any{
		&Asset{},
		&AssetMetadata{},
		&TranscodingJob{},
	}
}
