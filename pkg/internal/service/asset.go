package service

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/internal/metadata"
	"github.com/yeisme/mediavault/pkg/internal/model"
	"github.com/yeisme/mediavault/pkg/internal/pipeline"
	"github.com/yeisme/mediavault/pkg/internal/storage/db"
	"github.com/yeisme/mediavault/pkg/internal/types"
	nlog "github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/media"
	"github.com/yeisme/mediavault/pkg/metrics"
	"github.com/yeisme/mediavault/pkg/queue"
	"github.com/yeisme/mediavault/pkg/rule"
)

// BlobStore 请求路径需要的对象存储能力.
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	PresignUpload(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// AssetService 资产状态机：创建、签发上传地址、确认上传并触发流水线.
type AssetService struct {
	db       *db.Client
	blob     BlobStore
	enqueuer *pipeline.Enqueuer
	metadata *metadata.Store
	cfg      configs.PipelineConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewAssetService 构造 AssetService.
func NewAssetService(dbc *db.Client, blob BlobStore, enq *pipeline.Enqueuer, md *metadata.Store, cfg configs.PipelineConfig) *AssetService {
	return &AssetService{
		db:       dbc,
		blob:     blob,
		enqueuer: enq,
		metadata: md,
		cfg:      cfg,
		log:      nlog.Component("asset"),
		now:      time.Now,
	}
}

// CreateAssetInput 创建资产的参数.
type CreateAssetInput struct {
	FileName string `rule:"required,max=255,filename"`
	Owner    string `rule:"required,max=255"`
	MimeType string `rule:"omitempty,max=255"`
	Size     int64  `rule:"min=0"`
}

// CreateOrReuseAsset 同一用户同名文件存在 START 资产时复用，否则新建.
// pending_key 唯一索引保证并发调用只产生一行.
func (s *AssetService) CreateOrReuseAsset(ctx context.Context, in CreateAssetInput) (*model.Asset, bool, error) {
	const op = "asset.create"

	name, err := cleanFileName(in.FileName)
	if err != nil {
		return nil, false, errs.E(errs.Validation, op, "InvalidFileName", err)
	}

	in.FileName = name
	if err := rule.ValidateStruct(in); err != nil {
		return nil, false, errs.E(errs.Validation, op, "InvalidInput", err)
	}

	if s.cfg.MaxUploadSize > 0 && in.Size > s.cfg.MaxUploadSize {
		return nil, false, errs.E(errs.Validation, op, "FileTooLarge", nil)
	}

	if in.MimeType == "" {
		in.MimeType = media.GuessMime(in.FileName)
	}

	key := model.PendingKeyFor(in.Owner, in.FileName)

	if existing, err := s.findPending(ctx, key); err != nil {
		return nil, false, errs.Wrap(errs.StorageUnavailable, op, err)
	} else if existing != nil {
		return existing, true, nil
	}

	asset := model.NewAsset(in.Owner, in.FileName, in.MimeType, in.Size)

	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		// 并发创建时唯一索引冲突，对方的行即为结果
		existing, ferr := s.findPending(ctx, key)
		if ferr == nil && existing != nil {
			return existing, true, nil
		}

		return nil, false, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	s.log.Info().Str("asset_id", asset.ID).Str("owner", asset.Owner).Str("file_name", asset.FileName).Msg("asset created")

	return asset, false, nil
}

func (s *AssetService) findPending(ctx context.Context, key *string) (*model.Asset, error) {
	var asset model.Asset

	err := s.db.WithContext(ctx).
		Where("pending_key = ? AND status = ?", *key, model.AssetStart).
		Take(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &asset, nil
}

// PresignUpload 创建或复用资产并签发 PUT 地址.
func (s *AssetService) PresignUpload(ctx context.Context, owner string, req *types.PresignUploadRequest) (*types.PresignUploadResponse, error) {
	asset, reused, err := s.CreateOrReuseAsset(ctx, CreateAssetInput{
		FileName: req.FileName,
		Owner:    owner,
		MimeType: req.MimeType,
		Size:     req.Size,
	})
	if err != nil {
		return nil, err
	}

	ttl := s.cfg.GetPresignUploadTTL()

	url, err := s.blob.PresignUpload(ctx, asset.StoragePath, ttl)
	if err != nil {
		return nil, err
	}

	return &types.PresignUploadResponse{
		AssetID:     asset.ID,
		StoragePath: asset.StoragePath,
		UploadURL:   url,
		Method:      "PUT",
		ExpiresIn:   int(ttl.Seconds()),
		ExpiresAt:   s.now().Add(ttl).UTC(),
		Reused:      reused,
	}, nil
}

// CompleteUpload 确认客户端上传完成. START -> COMPLETED 只发生一次，
// 视频与图片在同一事务内发布处理任务，发布失败时状态回滚.
func (s *AssetService) CompleteUpload(ctx context.Context, assetID, caller string) (*model.Asset, error) {
	const op = "asset.complete"

	if err := rule.ValidateVar(assetID, "required,uuid"); err != nil {
		return nil, errs.E(errs.Validation, op, "InvalidAssetID", err)
	}

	asset, err := s.load(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if asset.Owner != caller {
		return nil, errs.E(errs.Forbidden, op, "NotOwner", nil)
	}

	if asset.Status == model.AssetCompleted {
		return nil, errs.E(errs.Conflict, op, "AlreadyCompleted", nil)
	}

	if !asset.Status.CanTransitionTo(model.AssetCompleted) {
		return nil, errs.E(errs.Conflict, op, "InvalidTransition", nil)
	}

	ok, err := s.blob.Exists(ctx, asset.StoragePath)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errs.E(errs.NotFound, op, "ObjectNotFound", nil)
	}

	kind := media.ClassifyMime(asset.MimeType)
	now := s.now()

	res := s.db.WithContext(ctx).Model(&model.Asset{}).
		Where("id = ? AND status = ?", asset.ID, model.AssetStart).
		Updates(map[string]any{
			"status":       model.AssetCompleted,
			"completed_at": now,
			"pending_key":  nil,
		})
	if res.Error != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, op, res.Error)
	}

	if res.RowsAffected == 0 {
		return nil, errs.E(errs.Conflict, op, "AlreadyCompleted", nil)
	}

	// 状态提交后再发布，发布失败时退回 START 让客户端重试
	var ref ledger.JobRef

	if kind.Processable() {
		ref, err = pipeline.Publish(ctx, s.enqueuer, kind, queue.StageProcessing, asset.ID, queue.ProcessPayload{
			AssetID:     asset.ID,
			StoragePath: asset.StoragePath,
			MimeType:    asset.MimeType,
			Kind:        kind,
		})
		if err != nil {
			s.reopen(ctx, asset)
			return nil, err
		}

		s.enqueuer.Record(ctx, ref)
	}

	metrics.AssetTransitions.WithLabelValues(string(model.AssetCompleted)).Inc()

	asset.Status = model.AssetCompleted
	asset.CompletedAt = &now
	asset.PendingKey = nil

	s.log.Info().
		Str("asset_id", asset.ID).
		Str("kind", string(kind)).
		Str("job_id", ref.JobID).
		Msg("upload completed")

	return asset, nil
}

// reopen 把刚完成的资产退回 START.
func (s *AssetService) reopen(ctx context.Context, asset *model.Asset) {
	res := s.db.WithContext(context.WithoutCancel(ctx)).Model(&model.Asset{}).
		Where("id = ? AND status = ?", asset.ID, model.AssetCompleted).
		Updates(map[string]any{
			"status":       model.AssetStart,
			"completed_at": nil,
			"pending_key":  model.PendingKeyFor(asset.Owner, asset.FileName),
		})
	if res.Error != nil {
		s.log.Error().Err(res.Error).Str("asset_id", asset.ID).Msg("reopen asset after publish failure")
	}
}

// GetAsset 返回资产、派生元数据以及读取时签发的下载地址.
func (s *AssetService) GetAsset(ctx context.Context, assetID, caller string) (*types.AssetResponse, error) {
	const op = "asset.get"

	if err := rule.ValidateVar(assetID, "required,uuid"); err != nil {
		return nil, errs.E(errs.Validation, op, "InvalidAssetID", err)
	}

	asset, err := s.load(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if asset.Owner != caller {
		return nil, errs.E(errs.Forbidden, op, "NotOwner", nil)
	}

	docs, err := s.metadata.ListForAsset(ctx, asset.ID)
	if err != nil {
		return nil, err
	}

	resp := &types.AssetResponse{
		Asset:     *asset,
		Kind:      string(media.ClassifyMime(asset.MimeType)),
		Variants:  docs,
		Downloads: map[string]string{},
	}

	if asset.Status != model.AssetCompleted {
		return resp, nil
	}

	ttl := s.cfg.GetPresignDownloadTTL()
	keys := map[string]string{metadata.NameOriginal: asset.StoragePath}

	for _, doc := range docs {
		for _, name := range doc.Names() {
			if v, ok := doc.Single(name); ok && v.Uploaded && v.Path != "" {
				keys[name] = v.Path
			}

			for i, v := range doc.List(name) {
				if v.Uploaded && v.Path != "" {
					keys[name+"."+strconv.Itoa(i)] = v.Path
				}
			}
		}
	}

	for name, key := range keys {
		url, err := s.blob.PresignDownload(ctx, key, ttl)
		if err != nil {
			s.log.Warn().Err(err).Str("asset_id", asset.ID).Str("key", key).Msg("presign download failed")
			continue
		}

		resp.Downloads[name] = url
	}

	return resp, nil
}

// ListAssets 列出调用方的资产，按创建时间倒序.
func (s *AssetService) ListAssets(ctx context.Context, caller string, req *types.ListAssetsRequest) (*types.ListAssetsResponse, error) {
	const op = "asset.list"

	if err := rule.ValidateStruct(req); err != nil {
		return nil, errs.E(errs.Validation, op, "InvalidQuery", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = ledger.DefaultPageSize
	}

	q := s.db.WithContext(ctx).Model(&model.Asset{}).Where("owner = ?", caller)
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	assets := make([]model.Asset, 0, limit)
	if err := q.Order("created_at DESC").Limit(limit).Offset(req.Offset).Find(&assets).Error; err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	return &types.ListAssetsResponse{Assets: assets, Total: total, Limit: limit, Offset: req.Offset}, nil
}

func (s *AssetService) load(ctx context.Context, assetID string) (*model.Asset, error) {
	var asset model.Asset

	err := s.db.WithContext(ctx).Where("id = ?", assetID).Take(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.NotFound, "asset.load", "AssetNotFound", nil)
	}

	if err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "asset.load", err)
	}

	return &asset, nil
}

// cleanFileName 只保留最后一段，拒绝空名与目录名.
func cleanFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := path.Base(name)

	switch base {
	case "", ".", "..", "/":
		return "", errors.New("file name is empty")
	}

	return base, nil
}
