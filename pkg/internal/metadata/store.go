package metadata

import (
	"context"
	"errors"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/model"
	dbc "github.com/yeisme/mediavault/pkg/internal/storage/db"
	nlog "github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/metrics"
)

const stripes = 64

// Store 以读-改-写方式合并变体. 同进程内按 (asset, family) 分段加锁，
// 跨进程依赖事务内的行锁.
type Store struct {
	db    *dbc.Client
	locks [stripes]sync.Mutex
	log   zerolog.Logger
}

// NewStore 构造元数据存储.
func NewStore(db *dbc.Client) *Store {
	return &Store{
		db:  db,
		log: nlog.Component("metadata"),
	}
}

func (s *Store) stripe(assetID string, family model.MetadataFamily) *sync.Mutex {
	h := xxhash.New()
	_, _ = h.WriteString(assetID)
	_, _ = h.WriteString("/")
	_, _ = h.WriteString(string(family))

	return &s.locks[h.Sum64()%stripes]
}

// Upsert 把变体合并进文档并返回合并后的文档.
func (s *Store) Upsert(ctx context.Context, assetID string, family model.MetadataFamily, name string, v Variant) (Document, error) {
	const op = "metadata.upsert"

	if assetID == "" || name == "" || !family.Valid() {
		return Document{}, errs.Newf(errs.Validation, op, "invalid metadata key %q/%q/%q", assetID, family, name)
	}

	mu := s.stripe(assetID, family)
	mu.Lock()
	defer mu.Unlock()

	empty := model.AssetMetadata{
		AssetID:       assetID,
		Family:        family,
		Value:         datatypes.JSON("{}"),
		SchemaVersion: SchemaVersion,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset_id"}, {Name: "family"}},
			DoNothing: true,
		}).
		Create(&empty).Error
	if err != nil {
		return Document{}, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	var merged Document

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("asset_id = ? AND family = ?", assetID, family)
		if s.db.SupportsRowLocks() {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var row model.AssetMetadata
		if err := q.First(&row).Error; err != nil {
			return err
		}

		doc, err := decode(row)
		if err != nil {
			return err
		}

		merged = doc.Merge(name, v)

		raw, err := sonic.Marshal(merged)
		if err != nil {
			return err
		}

		return tx.Model(&model.AssetMetadata{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"value":          datatypes.JSON(raw),
				"schema_version": SchemaVersion,
				"revision":       gorm.Expr("revision + 1"),
			}).Error
	})
	if err != nil {
		return Document{}, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	metrics.MetadataMerges.WithLabelValues(string(family)).Inc()
	s.log.Debug().
		Str("asset_id", assetID).
		Str("family", string(family)).
		Str("variant", name).
		Bool("uploaded", v.Uploaded).
		Msg("metadata merged")

	return merged, nil
}

// Get 读取一份文档，不存在时返回 NotFound.
func (s *Store) Get(ctx context.Context, assetID string, family model.MetadataFamily) (Document, error) {
	const op = "metadata.get"

	var row model.AssetMetadata

	err := s.db.WithContext(ctx).
		Where("asset_id = ? AND family = ?", assetID, family).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewDocument(), errs.E(errs.NotFound, op, "MetadataNotFound", err)
	}

	if err != nil {
		return Document{}, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	doc, err := decode(row)
	if err != nil {
		return Document{}, errs.Wrap(errs.Unknown, op, err)
	}

	return doc, nil
}

// ListForAsset 返回资产的全部文档.
func (s *Store) ListForAsset(ctx context.Context, assetID string) (map[model.MetadataFamily]Document, error) {
	var rows []model.AssetMetadata
	if err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "metadata.list", err)
	}

	out := make(map[model.MetadataFamily]Document, len(rows))

	for _, row := range rows {
		doc, err := decode(row)
		if err != nil {
			return nil, errs.Wrap(errs.Unknown, "metadata.list", err)
		}

		out[row.Family] = doc
	}

	return out, nil
}

func decode(row model.AssetMetadata) (Document, error) {
	doc := NewDocument()
	if len(row.Value) > 0 {
		if err := sonic.Unmarshal(row.Value, &doc); err != nil {
			return Document{}, err
		}
	}

	if row.SchemaVersion != 0 {
		doc.SchemaVersion = row.SchemaVersion
	}

	return doc, nil
}
