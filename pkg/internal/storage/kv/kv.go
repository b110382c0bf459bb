// Package kv 是缓存与上传去重使用的键值存储. 所有实现对过期键的行为一致：
// 过期后 Get 返回 ErrKeyNotFound，Exists 返回 false，Keys 不再列出.
package kv

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/yeisme/mediavault/pkg/configs"
)

// ErrKeyNotFound 键不存在或已过期.
var ErrKeyNotFound = errors.New("key not found")

// KVStore 键值存储. ttl 为 0 表示永不过期.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 按 path.Match 风格的 pattern 列出键，pattern 为空时列出全部. 仅用于调试.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// KVType 后端类型.
type KVType string

const (
	KVTypeMemory     KVType = "memory"
	KVTypeRedis      KVType = "redis"
	KVTypeNATS       KVType = "nats"
	KVTypeGroupcache KVType = "groupcache"
)

// KVFactory 由各后端在 init 中注册. config 为该后端自己的子配置，memory 为 nil.
type KVFactory func(ctx context.Context, config any) (KVStore, error)

var kvFactories = map[KVType]KVFactory{}

func RegisterKVFactory(kvType KVType, factory KVFactory) {
	kvFactories[kvType] = factory
}

// GetRegisteredKVTypes 已注册的后端，按名称排序.
func GetRegisteredKVTypes() []KVType {
	return slices.Sorted(maps.Keys(kvFactories))
}

// NewKVStore 直接按类型创建后端.
func NewKVStore(ctx context.Context, kvType KVType, config any) (KVStore, error) {
	factory, ok := kvFactories[kvType]
	if !ok {
		return nil, fmt.Errorf("unsupported kv type: %s", kvType)
	}

	return factory(ctx, config)
}

// Client 按配置选出的后端.
type Client struct {
	KVStore

	typ KVType
}

// NewKVClient 按 cfg.Type 选择后端，空值视为 memory.
func NewKVClient(ctx context.Context, cfg *configs.KVConfig) (*Client, error) {
	typ := KVType(cfg.Type)

	var sub any

	switch typ {
	case "":
		typ = KVTypeMemory
	case KVTypeRedis:
		sub = &cfg.Redis
	case KVTypeNATS:
		sub = &cfg.NATS
	case KVTypeGroupcache:
		sub = &cfg.Groupcache
	}

	store, err := NewKVStore(ctx, typ, sub)
	if err != nil {
		return nil, err
	}

	return &Client{KVStore: store, typ: typ}, nil
}

func (c *Client) Type() KVType { return c.typ }

// HealthCheck 写入并删除一个探测键.
func (c *Client) HealthCheck(ctx context.Context) error {
	const probe = "mediavault:health:probe"
	if err := c.Set(ctx, probe, []byte("1"), time.Minute); err != nil {
		return err
	}

	return c.Delete(ctx, probe)
}
