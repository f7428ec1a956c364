package repository

import (
	"context"

	"Sonara/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheEntryRepository 转码产物登记的数据访问接口
// (track_id, quality) 上有唯一索引，重新生成产物时覆盖旧行而不是新增
type CacheEntryRepository interface {
	Upsert(ctx context.Context, entry *model.CacheEntry) error
	GetByTrackAndQuality(ctx context.Context, trackID, quality string) (*model.CacheEntry, error)
	Delete(ctx context.Context, trackID, quality string) error
}

// gormCacheEntryRepository GORM 实现
type gormCacheEntryRepository struct {
	db *gorm.DB
}

// NewGormCacheEntryRepository 创建 GORM 产物仓库
func NewGormCacheEntryRepository(db *gorm.DB) CacheEntryRepository {
	return &gormCacheEntryRepository{db: db}
}

// Upsert 写入或覆盖 (track, quality) 的产物记录
func (r *gormCacheEntryRepository) Upsert(ctx context.Context, entry *model.CacheEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "track_id"}, {Name: "quality"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"format", "file_path", "file_size", "created_at", "expires_at",
		}),
	}).Create(entry).Error
}

// GetByTrackAndQuality 查询单条产物记录，未找到返回 (nil, nil)
func (r *gormCacheEntryRepository) GetByTrackAndQuality(ctx context.Context, trackID, quality string) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	err := r.db.WithContext(ctx).
		Where("track_id = ? AND quality = ?", trackID, quality).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Delete 删除产物记录（过期清理时调用）
func (r *gormCacheEntryRepository) Delete(ctx context.Context, trackID, quality string) error {
	return r.db.WithContext(ctx).
		Where("track_id = ? AND quality = ?", trackID, quality).
		Delete(&model.CacheEntry{}).Error
}
