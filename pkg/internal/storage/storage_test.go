package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/storage"
)

// TestNewManager 测试按选项初始化资源，未初始化的组件在 Checks 中为 nil.
func TestNewManager(t *testing.T) {
	ctx := context.Background()

	cfg := &configs.AppConfig{
		DB: configs.DBConfig{
			Type:        configs.SQLite,
			Database:    filepath.Join(t.TempDir(), "mv"),
			LogLevel:    "silent",
			AutoMigrate: true,
		},
		MQ: configs.MQConfig{Type: configs.MQTypeMemory},
		KV: configs.KVConfig{Type: "memory"},
	}

	mgr, err := storage.New(ctx, cfg, storage.WithoutS3(), storage.WithMQ(), storage.WithKV())
	require.NoError(t, err)

	t.Cleanup(func() { _ = mgr.Close() })

	checks := mgr.Checks()
	assert.Len(t, checks, 4)
	assert.Nil(t, checks["s3"])

	for _, name := range []string{"db", "mq", "kv"} {
		require.NotNil(t, checks[name], name)
		assert.NoError(t, checks[name].HealthCheck(ctx), name)
	}
}

// TestNilManager 测试空 Manager 的 Checks 与 Close.
func TestNilManager(t *testing.T) {
	var mgr *storage.Manager

	assert.Len(t, mgr.Checks(), 4)
	assert.NoError(t, mgr.Close())
}
