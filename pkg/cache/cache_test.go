package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/cache"
	"github.com/yeisme/mediavault/pkg/internal/storage/kv"
)

type snapshot struct {
	Assets map[string]int64 `json:"assets"`
	Bytes  int64            `json:"bytes"`
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()

	store, err := kv.NewMemoryKV(context.Background(), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return cache.NewCache(store)
}

// TestSetGet 测试写入后按类型读取.
func TestSetGet(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	want := snapshot{Assets: map[string]int64{"COMPLETED": 2}, Bytes: 2048}
	require.NoError(t, cache.Set(ctx, c, "mv:metrics:alice", want, time.Minute))

	got, err := cache.Get[snapshot](ctx, c, "mv:metrics:alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, c.Delete(ctx, "mv:metrics:alice"))

	_, err = cache.Get[snapshot](ctx, c, "mv:metrics:alice")
	assert.Error(t, err)
}

// TestGetOrSet 测试未命中时调用 getter，命中后不再调用.
func TestGetOrSet(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	var calls atomic.Int32

	getter := func() (snapshot, error) {
		calls.Add(1)
		return snapshot{Bytes: 1}, nil
	}

	for range 3 {
		v, err := cache.GetOrSet(ctx, c, "k", getter, time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 1, v.Bytes)
	}

	assert.EqualValues(t, 1, calls.Load())
}

// TestGetOrSetError 测试 getter 失败时不写缓存.
func TestGetOrSetError(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	boom := errors.New("db down")

	_, err := cache.GetOrSet(ctx, c, "k", func() (int, error) { return 0, boom }, time.Minute)
	require.ErrorIs(t, err, boom)

	v, err := cache.GetOrSet(ctx, c, "k", func() (int, error) { return 7, nil }, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

// TestGetOrSetConcurrent 测试并发未命中只计算一次.
func TestGetOrSetConcurrent(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	var (
		calls atomic.Int32
		wg    sync.WaitGroup
	)

	release := make(chan struct{})

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := cache.GetOrSet(ctx, c, "slow", func() (int, error) {
				calls.Add(1)
				<-release

				return 42, nil
			}, time.Minute)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}
