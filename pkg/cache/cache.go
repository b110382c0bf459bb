// Package cache 在 KV 存储之上提供带类型的短时缓存，用于资产指标与读接口响应.
//
//	c := cache.NewCache(kvClient)
//	m, err := cache.GetOrSet(ctx, c, "mv:metrics:"+owner, func() (*Metrics, error) {
//		return compute(ctx, owner)
//	}, 10*time.Second)
//
// 值用 sonic 编码. 同一进程内对同一个键的并发 GetOrSet 只会调用一次 getter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/mediavault/pkg/internal/storage/kv"
)

// Cache 基于 KV 存储的缓存.
type Cache struct {
	kvStore kv.KVStore
	group   singleflight.Group
}

// NewCache 创建缓存实例.
func NewCache(kvStore kv.KVStore) *Cache {
	return &Cache{kvStore: kvStore}
}

// Get 读取并解码. 未命中时返回底层存储的错误.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var value T

	data, err := c.kvStore.Get(ctx, key)
	if err != nil {
		return value, err
	}

	if err := sonic.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("unmarshal cache value %q: %w", key, err)
	}

	return value, nil
}

// Set 编码并写入.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value %q: %w", key, err)
	}

	return c.kvStore.Set(ctx, key, data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.kvStore.Delete(ctx, key)
}

// GetOrSet 未命中时调用 getter 并回写. 回写失败不影响返回值.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (T, error) {
	if value, err := Get[T](ctx, c, key); err == nil {
		return value, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := getter()
		if err != nil {
			return nil, err
		}

		_ = Set(ctx, c, key, value, ttl)

		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}
