package model

import "time"

// CacheEntry 一个 (track, quality) 组合的可独立服务的转码产物
// 同一组合同一时间最多存在一条未过期记录，重新生成时覆盖而不是新增
type CacheEntry struct {
	ID        uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID   string     `json:"trackId" gorm:"size:36;uniqueIndex:idx_track_quality;not null"`
	Quality   string     `json:"quality" gorm:"size:16;uniqueIndex:idx_track_quality;not null"`
	Format    string     `json:"format" gorm:"size:16"` // 产物容器格式，例如 "m4a"、"flac"、"hls"
	FilePath  string     `json:"filePath" gorm:"size:512;not null"`
	FileSize  int64      `json:"fileSize"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"` // nil 表示永不过期（HLS 树）
}

// TableName 指定表名
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry has an expiry in the past.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}
