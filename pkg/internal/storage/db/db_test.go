package db_test

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/model"
	"github.com/yeisme/mediavault/pkg/internal/storage/db"
)

// TestNewMemory 测试内存库可以迁移并读写.
func TestNewMemory(t *testing.T) {
	ctx := context.Background()

	client, err := db.NewMemory(ctx, uuid.NewString())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.HealthCheck(ctx))
	assert.False(t, client.SupportsRowLocks())

	asset := model.Asset{
		ID:          uuid.NewString(),
		FileName:    "a.mp4",
		StoragePath: "assets/x/a.mp4",
		Owner:       "alice",
		Status:      model.AssetStart,
	}
	require.NoError(t, client.Create(&asset).Error)

	var got model.Asset
	require.NoError(t, client.First(&got, "id = ?", asset.ID).Error)
	assert.Equal(t, model.AssetStart, got.Status)
}

// TestNewSQLiteFile 测试按配置打开文件 SQLite 并自动迁移.
func TestNewSQLiteFile(t *testing.T) {
	ctx := context.Background()

	cfg := &configs.DBConfig{
		Type:        configs.SQLite,
		Database:    filepath.Join(t.TempDir(), "mediavault"),
		LogLevel:    "silent",
		AutoMigrate: true,
	}

	client, err := db.New(ctx, cfg, false)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.HealthCheck(ctx))
	assert.FileExists(t, cfg.Database+".db")
	assert.True(t, client.Migrator().HasTable(&model.Asset{}))
}

// TestRegisteredTypes 测试方言注册表.
func TestRegisteredTypes(t *testing.T) {
	types := db.GetRegisteredDBTypes()
	for _, want := range []configs.DBType{configs.SQLite, configs.PostgreSQL, configs.MySQL} {
		assert.True(t, slices.Contains(types, want), want)
	}
}
