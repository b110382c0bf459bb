package metadata_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/metadata"
	"github.com/yeisme/mediavault/pkg/internal/model"
	"github.com/yeisme/mediavault/pkg/internal/storage/db"
)

func newStore(t *testing.T) (*metadata.Store, *db.Client, string) {
	t.Helper()

	ctx := context.Background()

	client, err := db.NewMemory(ctx, uuid.NewString())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	asset := model.Asset{
		ID:          uuid.NewString(),
		FileName:    "clip.mp4",
		StoragePath: "assets/x/clip.mp4",
		Owner:       "alice@example.com",
		Status:      model.AssetCompleted,
	}
	require.NoError(t, client.Create(&asset).Error)

	return metadata.NewStore(client), client, asset.ID
}

// TestMergeCommutative 测试不同变体名的合并与顺序无关.
func TestMergeCommutative(t *testing.T) {
	a := metadata.Variant{Path: "a-720p.mp4", Height: 720}
	b := metadata.Variant{Path: "a-480p.mp4", Height: 480}

	left := metadata.NewDocument().Merge("720p", a).Merge("480p", b)
	right := metadata.NewDocument().Merge("480p", b).Merge("720p", a)

	assert.Equal(t, left, right)
	assert.Equal(t, []string{"480p", "720p"}, left.Names())
}

// TestMergePure 测试合并不修改原文档.
func TestMergePure(t *testing.T) {
	base := metadata.NewDocument().Merge(metadata.NameThumbnails, metadata.Variant{Path: "t1", JobID: "j1"})
	_ = base.Merge(metadata.NameThumbnails, metadata.Variant{Path: "t2", JobID: "j2"})
	_ = base.Merge(metadata.NameOriginal, metadata.Variant{Path: "o"})

	assert.Len(t, base.List(metadata.NameThumbnails), 1)
	assert.Equal(t, 1, base.Len())
}

// TestMergeSticky 测试 uploaded 不会被清除.
func TestMergeSticky(t *testing.T) {
	doc := metadata.NewDocument().
		Merge("720p", metadata.Variant{Path: "k", Uploaded: true}).
		Merge("720p", metadata.Variant{Path: "k", Width: 1280, Uploaded: false})

	v, ok := doc.Single("720p")
	require.True(t, ok)
	assert.True(t, v.Uploaded)
	assert.Equal(t, 1280, v.Width)
}

// TestMergeRepeatedDedupe 测试同一任务重复追加只保留一项.
func TestMergeRepeatedDedupe(t *testing.T) {
	doc := metadata.NewDocument()
	for range 3 {
		doc = doc.Merge(metadata.NameThumbnails, metadata.Variant{Path: "t", JobID: "same"})
	}

	doc = doc.Merge(metadata.NameThumbnails, metadata.Variant{Path: "t2", JobID: "other"})
	doc = doc.Merge(metadata.NameThumbnails, metadata.Variant{Path: "t3"})
	doc = doc.Merge(metadata.NameThumbnails, metadata.Variant{Path: "t3"})

	assert.Len(t, doc.List(metadata.NameThumbnails), 4)
}

// TestDocumentJSON 测试扁平 JSON 结构.
func TestDocumentJSON(t *testing.T) {
	doc := metadata.NewDocument().
		Merge(metadata.NameOriginal, metadata.Variant{Path: "o", Width: 10}).
		Merge(metadata.NameThumbnails, metadata.Variant{Path: "t", JobID: "j"})

	raw, err := sonic.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"original":{"path":"o","width":10,"uploaded":false},"thumbnails":[{"path":"t","uploaded":false,"job_id":"j"}]}`,
		string(raw))

	var back metadata.Document
	require.NoError(t, sonic.Unmarshal(raw, &back))
	assert.Equal(t, doc.Names(), back.Names())
	assert.Equal(t, doc.List(metadata.NameThumbnails), back.List(metadata.NameThumbnails))
}

// TestStoreUpsert 测试持久化合并与 revision 自增.
func TestStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store, client, assetID := newStore(t)

	_, err := store.Upsert(ctx, assetID, model.FamilyVideoVariants, metadata.NameOriginal, metadata.Variant{Path: "o", Uploaded: true})
	require.NoError(t, err)

	doc, err := store.Upsert(ctx, assetID, model.FamilyVideoVariants, "720p", metadata.Variant{Path: "k"})
	require.NoError(t, err)
	assert.Equal(t, []string{"720p", metadata.NameOriginal}, doc.Names())

	got, err := store.Get(ctx, assetID, model.FamilyVideoVariants)
	require.NoError(t, err)
	assert.Equal(t, doc.Names(), got.Names())

	var row model.AssetMetadata
	require.NoError(t, client.Where("asset_id = ?", assetID).First(&row).Error)
	assert.EqualValues(t, 2, row.Revision)

	all, err := store.ListForAsset(ctx, assetID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = store.Get(ctx, assetID, model.FamilyImageVariants)
	assert.True(t, errs.Is(err, errs.NotFound))

	_, err = store.Upsert(ctx, assetID, "bogus", "x", metadata.Variant{})
	assert.True(t, errs.Is(err, errs.Validation))
}

// TestStoreConcurrentWriters 测试并发写入不丢变体.
func TestStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store, _, assetID := newStore(t)

	const n = 16

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)

		go func() {
			defer wg.Done()

			_, err := store.Upsert(ctx, assetID, model.FamilyImageVariants, metadata.NameThumbnails,
				metadata.Variant{Path: fmt.Sprintf("t%d", i), JobID: fmt.Sprintf("job-%d", i)})
			assert.NoError(t, err)
		}()

		go func() {
			defer wg.Done()

			_, err := store.Upsert(ctx, assetID, model.FamilyImageVariants, fmt.Sprintf("v%d", i), metadata.Variant{Path: "p"})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	doc, err := store.Get(ctx, assetID, model.FamilyImageVariants)
	require.NoError(t, err)
	assert.Len(t, doc.List(metadata.NameThumbnails), n)
	assert.Equal(t, n+1, doc.Len())
}
