package cache

import (
	"context"
	"fmt"
	"time"

	"Sonara/db"
	"Sonara/logger"
)

// playlistTTL 播放列表内容在 Redis 的保留时长
// 播放列表是只读小文件且请求极热，缓存半小时足够
const playlistTTL = 1800 * time.Second

// playlistKey 播放列表缓存键：hls:{trackId}:{file}
// file 形如 "master.m3u8" 或 "cd/cd.m3u8"
func playlistKey(trackID, file string) string {
	return fmt.Sprintf("hls:%s:%s", trackID, file)
}

// SetPlaylistCache 缓存播放列表内容
func SetPlaylistCache(trackID, file string, data []byte) error {
	if db.RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := playlistKey(trackID, file)
	if err := db.RedisClient.Set(ctx, key, data, playlistTTL).Err(); err != nil {
		logger.Error("设置播放列表缓存失败",
			logger.String("key", key),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("播放列表缓存设置成功",
		logger.String("key", key),
		logger.Int("dataSize", len(data)))
	return nil
}

// GetPlaylistCache 读取播放列表缓存
// 返回 nil 表示未命中（含 Redis 故障），调用方回落到磁盘
func GetPlaylistCache(trackID, file string) []byte {
	if db.RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := playlistKey(trackID, file)
	data, err := db.RedisClient.Get(ctx, key).Bytes()
	if err != nil {
		// 键不存在是正常未命中，其他错误降级为未命中并告警
		if err.Error() != "redis: nil" {
			logger.Warn("读取播放列表缓存失败",
				logger.String("key", key),
				logger.ErrorField(err))
		}
		return nil
	}

	logger.Debug("播放列表缓存命中",
		logger.String("key", key),
		logger.Int("dataSize", len(data)))
	return data
}

// DeletePlaylistPattern 批量删除一个曲目的全部播放列表缓存
// 重新生成 HLS 后调用，避免主播放列表引用到旧档位
func DeletePlaylistPattern(trackID string) error {
	if db.RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pattern := fmt.Sprintf("hls:%s:*", trackID)
	keys, err := db.RedisClient.Keys(ctx, pattern).Result()
	if err != nil {
		logger.Error("查找播放列表缓存键失败",
			logger.String("pattern", pattern),
			logger.ErrorField(err))
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	if err := db.RedisClient.Del(ctx, keys...).Err(); err != nil {
		logger.Error("批量删除播放列表缓存失败",
			logger.String("pattern", pattern),
			logger.Int("keysCount", len(keys)),
			logger.ErrorField(err))
		return err
	}

	logger.Info("播放列表缓存已清理",
		logger.String("trackId", trackID),
		logger.Int("deletedCount", len(keys)))
	return nil
}
