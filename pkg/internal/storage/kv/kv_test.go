package kv_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/storage/kv"
)

// stores 返回本地可用的实现；设置 REDIS_ADDR 或 NATS_URL 时加入对应后端.
func stores(tb testing.TB) map[string]kv.KVStore {
	tb.Helper()

	ctx := context.Background()
	out := map[string]kv.KVStore{}

	add := func(name string, typ kv.KVType, cfg any) {
		s, err := kv.NewKVStore(ctx, typ, cfg)
		if err != nil {
			tb.Logf("skip %s: %v", name, err)
			return
		}

		tb.Cleanup(func() { _ = s.Close() })
		out[name] = s
	}

	add("memory", kv.KVTypeMemory, nil)
	add("groupcache", kv.KVTypeGroupcache, &configs.GroupcacheKVConfig{
		Name:       "kv-test",
		CacheBytes: 8 << 20,
		Self:       "http://127.0.0.1:0",
	})

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		add("redis", kv.KVTypeRedis, &configs.RedisKVConfig{Addr: addr})
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		add("nats", kv.KVTypeNATS, &configs.NATSKVConfig{URL: url, Bucket: "mediavault-test"})
	}

	return out
}

// TestStoreContract 测试各实现的读写、覆盖、删除与过期行为一致.
func TestStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "mv:test:" + name

			_, err := store.Get(ctx, key)
			require.ErrorIs(t, err, kv.ErrKeyNotFound)

			require.NoError(t, store.Set(ctx, key, []byte("v1"), 0))
			require.NoError(t, store.Set(ctx, key, []byte("v2"), time.Hour))

			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)

			keys, err := store.Keys(ctx, "mv:test:*")
			require.NoError(t, err)
			assert.Contains(t, keys, key)

			require.NoError(t, store.Delete(ctx, key))

			ok, err := store.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, key, []byte("short"), 200*time.Millisecond))
			require.Eventually(t, func() bool {
				_, err := store.Get(ctx, key)
				return err != nil
			}, 3*time.Second, 50*time.Millisecond)
		})
	}
}

// BenchmarkStores 对每个可用实现执行 Set/Get/Delete.
func BenchmarkStores(b *testing.B) {
	ctx := context.Background()
	payload := make([]byte, 1024)

	for name, store := range stores(b) {
		for _, ttl := range []time.Duration{0, 5 * time.Second} {
			b.Run(fmt.Sprintf("%s/ttl=%s", name, ttl), func(b *testing.B) {
				b.ReportAllocs()

				for i := 0; b.Loop(); i++ {
					key := fmt.Sprintf("bench-%s-%d", name, i)

					if err := store.Set(ctx, key, payload, ttl); err != nil {
						b.Fatal(err)
					}

					if _, err := store.Get(ctx, key); err != nil {
						b.Fatal(err)
					}

					if err := store.Delete(ctx, key); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
