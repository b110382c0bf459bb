package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache"

	"github.com/yeisme/mediavault/pkg/configs"
)

// GroupcacheKV 用 groupcache 做读缓存，本地 map 是数据源.
//
// groupcache 中的条目不可失效，所以每次 Set 递增代号，
// 读取时以 key#代号 访问，覆盖与删除后旧条目不会再被命中.
type GroupcacheKV struct {
	group *groupcache.Group
	pool  *groupcache.HTTPPool

	mu   sync.RWMutex
	gen  uint64
	data map[string]gcEntry
}

// groupcache 的组是进程级全局的，同名组复用同一个实例.
var (
	gcMu     sync.Mutex
	gcStores = map[string]*GroupcacheKV{}
)

type gcEntry struct {
	gen   uint64
	value []byte
}

// NewGroupcacheKV 创建 groupcache 组；配置了 peers 时启用 HTTP 节点池.
func NewGroupcacheKV(_ context.Context, config any) (KVStore, error) {
	cfg, ok := config.(*configs.GroupcacheKVConfig)
	if !ok {
		return nil, fmt.Errorf("invalid groupcache kv config %T", config)
	}

	gcMu.Lock()
	defer gcMu.Unlock()

	if g, ok := gcStores[cfg.Name]; ok {
		return g, nil
	}

	g := &GroupcacheKV{data: make(map[string]gcEntry)}
	g.group = groupcache.NewGroup(cfg.Name, cfg.CacheBytes, groupcache.GetterFunc(g.fill))

	if len(cfg.Peers) > 0 {
		g.pool = groupcache.NewHTTPPoolOpts(cfg.Self, &groupcache.HTTPPoolOptions{BasePath: "/_mvcache/"})
		g.pool.Set(cfg.Peers...)
	}

	gcStores[cfg.Name] = g

	return g, nil
}

// fill 是 groupcache 的回源函数，versioned 形如 key#gen.
func (g *GroupcacheKV) fill(_ context.Context, versioned string, dest groupcache.Sink) error {
	i := strings.LastIndexByte(versioned, '#')
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, versioned)
	}

	key := versioned[:i]

	gen, err := strconv.ParseUint(versioned[i+1:], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, versioned)
	}

	g.mu.RLock()
	e, ok := g.data[key]
	g.mu.RUnlock()

	if !ok || e.gen != gen {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return dest.SetBytes(e.value)
}

func (g *GroupcacheKV) current(key string) (uint64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.data[key]

	return e.gen, ok
}

// Get 获取键的值.
func (g *GroupcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	gen, ok := g.current(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	var raw []byte
	if err := g.group.Get(ctx, key+"#"+strconv.FormatUint(gen, 10), groupcache.AllocatingByteSliceSink(&raw)); err != nil {
		return nil, fmt.Errorf("groupcache get %s: %w", key, err)
	}

	value, live := unseal(raw, time.Now())
	if !live {
		_ = g.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return value, nil
}

// Set 写入本地数据源并换一个新代号.
func (g *GroupcacheKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gen++
	g.data[key] = gcEntry{gen: g.gen, value: seal(value, ttl)}

	return nil
}

// Delete 删除键.
func (g *GroupcacheKV) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.data, key)

	return nil
}

// Exists 检查键是否存在且未过期.
func (g *GroupcacheKV) Exists(_ context.Context, key string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.data[key]
	if !ok {
		return false, nil
	}

	_, live := unseal(e.value, time.Now())

	return live, nil
}

// Keys 返回本节点上匹配 glob 模式的键.
func (g *GroupcacheKV) Keys(_ context.Context, pattern string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := time.Now()

	var keys []string

	for key, e := range g.data {
		if _, live := unseal(e.value, now); live && matchKey(pattern, key) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close groupcache 没有可释放的资源.
func (g *GroupcacheKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeGroupcache, NewGroupcacheKV)
}
