package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"Sonara/cache"
	"Sonara/config"
	"Sonara/logger"
	"Sonara/model"
)

// ErrTranscodeInProgress 缓存文件存在但为空，多半是另一个转码还在写
// 调用方稍后重试即可
var ErrTranscodeInProgress = errors.New("转码可能正在进行中")

// cacheEntryTTL 按需转码单文件产物的保留时长
const cacheEntryTTL = 30 * 24 * time.Hour

// CacheTranscoder 按需转码器
// 为一个 (track, quality) 组合产出单个可直接流式播放的文件，写入
// 缓存目录后交给 range 响应器服务。命中已有产物时完全跳过编码。
type CacheTranscoder struct {
	encoder Invoker
	cfg     *config.Config
	entries CacheEntryStore // 可为 nil（测试场景）
}

// NewCacheTranscoder 创建按需转码器
func NewCacheTranscoder(encoder Invoker, cfg *config.Config, entries CacheEntryStore) *CacheTranscoder {
	return &CacheTranscoder{
		encoder: encoder,
		cfg:     cfg,
		entries: entries,
	}
}

// CachePath 返回 (track, quality) 产物的约定路径
func (t *CacheTranscoder) CachePath(trackID string, quality Quality) string {
	params := quality.Params()
	return filepath.Join(t.cfg.CacheDir, fmt.Sprintf("%s_%s.%s", trackID, quality, params.Extension))
}

// TranscodeToCache 确保 (track, quality) 的缓存产物存在，返回文件路径和 MIME
// ctx 取消（点播客户端断开）会立刻杀掉编码子进程并清掉残缺的输出，
// 半成品绝不会被当成完整产物服务出去。
func (t *CacheTranscoder) TranscodeToCache(ctx context.Context, track *model.Track, quality Quality) (string, string, error) {
	params := quality.Params()
	outputPath := t.CachePath(track.ID, quality)

	if err := os.MkdirAll(t.cfg.CacheDir, 0755); err != nil {
		return "", "", fmt.Errorf("创建缓存目录失败: %w", err)
	}

	// 缓存命中：文件存在且非空
	if info, err := os.Stat(outputPath); err == nil {
		if info.Size() > 0 {
			logger.Debug("按需转码缓存命中",
				logger.String("trackId", track.ID),
				logger.String("quality", string(quality)))
			return outputPath, params.MIME, nil
		}
		return "", "", ErrTranscodeInProgress
	}

	logger.Info("开始按需转码",
		logger.String("trackId", track.ID),
		logger.String("quality", string(quality)),
		logger.String("output", outputPath))

	spec := EncodeSpec{
		InputPath:  track.FilePath,
		Quality:    quality,
		OutputName: outputPath,
	}
	if err := t.encoder.Run(ctx, spec); err != nil {
		// 残缺输出立即清理，避免下次被误判为进行中
		os.Remove(outputPath)

		if ctx.Err() != nil {
			logger.Debug("按需转码被取消",
				logger.String("trackId", track.ID),
				logger.String("quality", string(quality)))
			return "", "", ctx.Err()
		}
		return "", "", err
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		return "", "", fmt.Errorf("转码输出缺失或为空: %s", outputPath)
	}

	t.recordEntry(track.ID, quality, outputPath, info.Size())

	logger.Info("按需转码完成",
		logger.String("trackId", track.ID),
		logger.String("quality", string(quality)),
		logger.Int64("fileSize", info.Size()))

	return outputPath, params.MIME, nil
}

// recordEntry 登记产物：数据库行 + Redis 路径索引
func (t *CacheTranscoder) recordEntry(trackID string, quality Quality, path string, size int64) {
	expiresAt := time.Now().Add(cacheEntryTTL)

	if t.entries != nil {
		entry := &model.CacheEntry{
			TrackID:   trackID,
			Quality:   string(quality),
			Format:    quality.Params().Extension,
			FilePath:  path,
			FileSize:  size,
			ExpiresAt: &expiresAt,
		}
		if err := t.entries.Upsert(context.Background(), entry); err != nil {
			logger.Warn("登记缓存条目失败",
				logger.String("trackId", trackID),
				logger.String("quality", string(quality)),
				logger.ErrorField(err))
		}
	}

	if err := cache.SetEntryPath(trackID, string(quality), path, cacheEntryTTL); err != nil {
		logger.Warn("写入Redis缓存索引失败",
			logger.String("trackId", trackID),
			logger.ErrorField(err))
	}
}

// Sweep 删除一个已过期产物：文件和 Redis 索引一起清
// 惰性调用：查到过期条目的请求顺手清理
func (t *CacheTranscoder) Sweep(trackID string, quality Quality) {
	outputPath := t.CachePath(trackID, quality)
	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("删除过期缓存文件失败",
			logger.String("path", outputPath),
			logger.ErrorField(err))
	}
	if err := cache.DeleteEntryPath(trackID, string(quality)); err != nil {
		logger.Warn("删除Redis缓存索引失败",
			logger.String("trackId", trackID),
			logger.ErrorField(err))
	}
}
