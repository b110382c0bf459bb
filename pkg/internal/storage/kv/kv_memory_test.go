package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/storage/kv"
)

// TestMemoryKVDefault 测试空类型回落到内存实现.
func TestMemoryKVDefault(t *testing.T) {
	ctx := context.Background()

	client, err := kv.NewKVClient(ctx, &configs.KVConfig{})
	require.NoError(t, err)
	assert.Equal(t, kv.KVTypeMemory, client.Type())
	require.NoError(t, client.HealthCheck(ctx))

	_, err = client.Get(ctx, "missing")
	require.ErrorIs(t, err, kv.ErrKeyNotFound)
}

// TestMemoryKVTTL 测试过期键不可见.
func TestMemoryKVTTL(t *testing.T) {
	ctx := context.Background()

	store, err := kv.NewKVStore(ctx, kv.KVTypeMemory, nil)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "metrics:a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "metrics:b", []byte("2"), time.Hour))
	require.NoError(t, store.Set(ctx, "other", []byte("3"), 0))

	got, err := store.Get(ctx, "metrics:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	keys, err := store.Keys(ctx, "metrics:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"metrics:a", "metrics:b"}, keys)

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Second))
	require.Eventually(t, func() bool {
		ok, _ := store.Exists(ctx, "short")
		return !ok
	}, 3*time.Second, 50*time.Millisecond)
}

// TestRegisteredKVTypes 测试注册表包含全部实现.
func TestRegisteredKVTypes(t *testing.T) {
	types := kv.GetRegisteredKVTypes()
	assert.Contains(t, types, kv.KVTypeMemory)
	assert.Contains(t, types, kv.KVTypeGroupcache)
	assert.Contains(t, types, kv.KVTypeNATS)
}
