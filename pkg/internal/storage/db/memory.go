package db

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"

	"github.com/yeisme/mediavault/pkg/configs"
)

// NewMemory 打开一个独立的纯 Go 内存 SQLite 并完成迁移，供测试与本地调试使用.
// name 区分不同实例，同名实例共享数据.
func NewMemory(ctx context.Context, name string) (*Client, error) {
	cfg := configs.DBConfig{
		Type:        configs.SQLite,
		Database:    name,
		LogLevel:    "silent",
		AutoMigrate: true,
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)

	gdb, err := Open(sqlite.Open(dsn), &cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(1)

	c := Wrap(gdb, cfg)
	if err := c.Migrate(ctx); err != nil {
		return nil, err
	}

	return c, nil
}
