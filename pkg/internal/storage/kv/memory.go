package kv

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"
)

// MemoryKV 进程内 KV，过期键在读取时惰性删除. 未配置 kv.type 时的默认实现.
// 值以 *[]byte 存放，使 CompareAndDelete 只删除读到的那一版.
type MemoryKV struct {
	data sync.Map
}

// NewMemoryKV 创建内存 KV 实例，不需要配置.
func NewMemoryKV(_ context.Context, _ any) (KVStore, error) {
	return &MemoryKV{}, nil
}

func (m *MemoryKV) load(key string) ([]byte, bool) {
	raw, ok := m.data.Load(key)
	if !ok {
		return nil, false
	}

	b, _ := raw.(*[]byte)
	if b == nil {
		return nil, false
	}

	value, live := unseal(*b, time.Now())
	if !live {
		m.data.CompareAndDelete(key, raw)
		return nil, false
	}

	return value, true
}

// Get 获取键的值，返回副本.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return bytes.Clone(value), nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	sealed := seal(value, ttl)
	m.data.Store(key, &sealed)
	return nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

// Exists 检查键是否存在且未过期.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.load(key)
	return ok, nil
}

// Keys 返回匹配 glob 模式的键，空模式返回全部.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	var keys []string

	m.data.Range(func(k, _ any) bool {
		key, _ := k.(string)
		if !matchKey(pattern, key) {
			return true
		}

		if _, live := m.load(key); live {
			keys = append(keys, key)
		}

		return true
	})

	return keys, nil
}

// Close 内存实现无需释放.
func (m *MemoryKV) Close() error {
	return nil
}

// matchKey 按 glob 匹配键，空模式匹配全部.
func matchKey(pattern, key string) bool {
	if pattern == "" {
		return true
	}

	ok, _ := path.Match(pattern, key)

	return ok
}

func init() {
	RegisterKVFactory(KVTypeMemory, NewMemoryKV)
}
