package cache

import (
	"context"
	"fmt"
	"time"

	"Sonara/db"
	"Sonara/logger"
)

// entryKey 缓存产物路径索引的键：cache:{trackId}:{quality}
func entryKey(trackID, quality string) string {
	return fmt.Sprintf("cache:%s:%s", trackID, quality)
}

// SetEntryPath 写入 (track, quality) 产物路径索引
// Redis 未初始化时静默跳过，索引只是加速，真实来源是数据库和磁盘
func SetEntryPath(trackID, quality, path string, expiration time.Duration) error {
	if db.RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := entryKey(trackID, quality)
	if err := db.RedisClient.Set(ctx, key, path, expiration).Err(); err != nil {
		logger.Error("设置缓存索引失败",
			logger.String("key", key),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("缓存索引写入成功",
		logger.String("key", key),
		logger.Duration("expiration", expiration))
	return nil
}

// GetEntryPath 读取产物路径索引
// 未命中或 Redis 故障都返回空串不报错，调用方回落到数据库查询
func GetEntryPath(trackID, quality string) string {
	if db.RedisClient == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := entryKey(trackID, quality)
	path, err := db.RedisClient.Get(ctx, key).Result()
	if err != nil {
		if err.Error() != "redis: nil" {
			logger.Warn("读取缓存索引失败",
				logger.String("key", key),
				logger.ErrorField(err))
		}
		return ""
	}
	return path
}

// DeleteEntryPath 删除产物路径索引
func DeleteEntryPath(trackID, quality string) error {
	if db.RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := entryKey(trackID, quality)
	if err := db.RedisClient.Del(ctx, key).Err(); err != nil {
		logger.Error("删除缓存索引失败",
			logger.String("key", key),
			logger.ErrorField(err))
		return err
	}
	return nil
}
