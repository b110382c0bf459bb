package model_test

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"

	"github.com/yeisme/mediavault/pkg/internal/model"
)

// TestAssetTransitions 测试资产状态只能从 START 进入终态.
func TestAssetTransitions(t *testing.T) {
	cases := []struct {
		from, to model.AssetStatus
		want     bool
	}{
		{model.AssetStart, model.AssetCompleted, true},
		{model.AssetStart, model.AssetFailed, true},
		{model.AssetStart, model.AssetStart, false},
		{model.AssetCompleted, model.AssetStart, false},
		{model.AssetCompleted, model.AssetFailed, false},
		{model.AssetFailed, model.AssetCompleted, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

// TestJobRank 测试账本状态序.
func TestJobRank(t *testing.T) {
	if model.JobPending.Rank() >= model.JobActive.Rank() {
		t.Error("PENDING must rank below ACTIVE")
	}

	if model.JobCompleted.Rank() != model.JobFailed.Rank() {
		t.Error("terminal states must share a rank")
	}

	if !model.JobFailed.Terminal() || model.JobActive.Terminal() {
		t.Error("unexpected terminal flags")
	}

	if model.JobPending.Predecessors() != nil {
		t.Error("PENDING has no predecessors")
	}
}

// TestStoragePathFor 测试对象键格式.
func TestStoragePathFor(t *testing.T) {
	got := model.StoragePathFor("0b5c", "clip.mp4")
	if got != "assets/0b5c/clip.mp4" {
		t.Errorf("unexpected path %q", got)
	}

	if k := model.PendingKeyFor("alice", "clip.mp4"); *k != "alice|clip.mp4" {
		t.Errorf("unexpected pending key %q", *k)
	}
}

// TestPendingKeyIndexSize 测试待上传唯一键既容纳最长的 owner|file_name，又不超过 InnoDB 索引上限.
func TestPendingKeyIndexSize(t *testing.T) {
	s, err := schema.Parse(&model.Asset{}, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatal(err)
	}

	f := s.LookUpField("PendingKey")
	if f == nil {
		t.Fatal("PendingKey field not found")
	}

	if f.Size < 255+1+255 {
		t.Errorf("pending key size %d cannot hold owner|file_name", f.Size)
	}

	// utf8mb4 每字符 4 字节
	if f.Size*4 > 3072 {
		t.Errorf("pending key size %d exceeds the 3072-byte index limit", f.Size)
	}
}
