package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"Sonara/cache"
	"Sonara/config"
	"Sonara/core/notify"
	"Sonara/logger"
	"Sonara/model"
	"Sonara/storage"
)

// MasterPlaylistName 每个曲目 HLS 根目录下的主播放列表文件名
const MasterPlaylistName = "master.m3u8"

// CacheEntryStore 转码产物登记接口，由 repository 实现
// 同一 (track, quality) 重新生成时覆盖旧记录
type CacheEntryStore interface {
	Upsert(ctx context.Context, entry *model.CacheEntry) error
}

// HLSPipeline 多档位 HLS 生成流水线
// 对单个曲目：逐档位调用编码器产出分片播放列表，全部成功后写主播放列表。
// 档位串行编码，单曲目的峰值资源占用只有一个 ffmpeg 子进程。
type HLSPipeline struct {
	encoder  Invoker
	cfg      *config.Config
	notifier *notify.Notifier
	entries  CacheEntryStore // 可为 nil（测试场景）
}

// NewHLSPipeline 创建 HLS 流水线
func NewHLSPipeline(encoder Invoker, cfg *config.Config, notifier *notify.Notifier, entries CacheEntryStore) *HLSPipeline {
	return &HLSPipeline{
		encoder:  encoder,
		cfg:      cfg,
		notifier: notifier,
		entries:  entries,
	}
}

// initMapPattern 匹配播放列表中的 fMP4 初始化分片声明
// ffmpeg 某些版本会写入绝对路径或带目录前缀的 URI，必须改写为相对形式
// 播放列表才能跨机器、跨存储迁移
var initMapPattern = regexp.MustCompile(`#EXT-X-MAP:URI="[^"]*init\.m4a"`)

// GenerateHLS 为一个曲目生成全部可用档位的 HLS 输出
// 任一档位失败立即中止后续档位，不写主播放列表；已完成档位的目录留在
// 磁盘上等待外部清理，但不会被任何已发布的主播放列表引用。
func (p *HLSPipeline) GenerateHLS(ctx context.Context, track *model.Track, sessionID string) error {
	sourceQuality := ClassifySourceQuality(track)
	tiers := AvailableQualities(sourceQuality)

	outputDir := filepath.Join(p.cfg.HLSDir, track.ID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("创建HLS输出目录失败: %w", err)
	}

	// 重新生成前先撤下旧的主播放列表和播放列表缓存：
	// 档位目录随后会被逐个覆盖，失败中途的旧主播放列表
	// 可能引用已被部分重写的分片
	if err := os.Remove(filepath.Join(outputDir, MasterPlaylistName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("移除旧主播放列表失败: %w", err)
	}
	if err := cache.DeletePlaylistPattern(track.ID); err != nil {
		logger.Warn("失效播放列表缓存失败",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
	}

	logger.Info("开始HLS生成",
		logger.String("trackId", track.ID),
		logger.String("sourceQuality", string(sourceQuality)),
		logger.Int("tierCount", len(tiers)))

	p.notifier.Emit(sessionID, notify.Event{
		Type:    notify.EventStarted,
		TrackID: track.ID,
	})

	startTime := time.Now()
	for _, tier := range tiers {
		if err := p.generateTier(ctx, track, tier, outputDir, sessionID); err != nil {
			p.notifier.Emit(sessionID, notify.Event{
				Type:    notify.EventFailed,
				TrackID: track.ID,
				Quality: string(tier),
				Error:   err.Error(),
			})
			return fmt.Errorf("档位 %s 编码失败: %w", tier, err)
		}

		p.notifier.Emit(sessionID, notify.Event{
			Type:    notify.EventTierFinished,
			TrackID: track.ID,
			Quality: string(tier),
		})
	}

	if err := p.writeMasterPlaylist(outputDir, tiers); err != nil {
		p.notifier.Emit(sessionID, notify.Event{
			Type:    notify.EventFailed,
			TrackID: track.ID,
			Error:   err.Error(),
		})
		return fmt.Errorf("写主播放列表失败: %w", err)
	}

	// 登记产物，重新生成时覆盖旧记录；生成期间被请求缓存的
	// 中间状态播放列表一并失效
	p.recordEntries(ctx, track, tiers, outputDir)
	if err := cache.DeletePlaylistPattern(track.ID); err != nil {
		logger.Warn("失效播放列表缓存失败",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
	}

	// 异步上传到 MinIO 作为持久备份，失败只告警不影响结果
	go func() {
		if err := storage.UploadHLSTree(context.Background(), p.cfg.MinioBucket, track.ID, outputDir); err != nil {
			logger.Warn("HLS产物上传MinIO失败",
				logger.String("trackId", track.ID),
				logger.ErrorField(err))
		}
	}()

	p.notifier.Emit(sessionID, notify.Event{
		Type:    notify.EventAllFinished,
		TrackID: track.ID,
	})

	logger.Info("HLS生成完成",
		logger.String("trackId", track.ID),
		logger.Int("tierCount", len(tiers)),
		logger.Duration("totalTime", time.Since(startTime)))

	return nil
}

// generateTier 编码单个档位
func (p *HLSPipeline) generateTier(ctx context.Context, track *model.Track, tier Quality, outputDir, sessionID string) error {
	tierDir := filepath.Join(outputDir, string(tier))
	if err := os.MkdirAll(tierDir, 0755); err != nil {
		return fmt.Errorf("创建档位目录失败: %w", err)
	}

	logger.Debug("开始档位编码",
		logger.String("trackId", track.ID),
		logger.String("quality", string(tier)),
		logger.String("tierDir", tierDir))

	// 分片粒度的产出观测
	watcher, err := WatchSegments(tierDir, func(name string) {
		logger.Debug("分片已就绪",
			logger.String("trackId", track.ID),
			logger.String("quality", string(tier)),
			logger.String("segment", name))
	})
	if err != nil {
		logger.Warn("创建分片监听失败，进度观测降级",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
		watcher = nil
	}

	playlistName := string(tier) + ".m3u8"
	spec := EncodeSpec{
		InputPath:  track.FilePath,
		Quality:    tier,
		OutputName: playlistName,
		WorkDir:    tierDir,
		HLS: &HLSOptions{
			SegmentTime: p.cfg.HLSSegmentTime,
			UseFMP4:     p.cfg.HLSUseFMP4,
		},
		OnProgress: func(elapsed time.Duration) {
			p.notifier.Emit(sessionID, notify.Event{
				Type:    notify.EventProgress,
				TrackID: track.ID,
				Quality: string(tier),
				Elapsed: elapsed.Seconds(),
			})
		},
	}

	encodeErr := p.encoder.Run(ctx, spec)

	if watcher != nil {
		segmentCount := watcher.Stop(tierDir, nil)
		logger.Debug("档位编码结束",
			logger.String("trackId", track.ID),
			logger.String("quality", string(tier)),
			logger.Int("segmentCount", segmentCount))
	}

	if encodeErr != nil {
		return encodeErr
	}

	playlistPath := filepath.Join(tierDir, playlistName)
	if _, err := os.Stat(playlistPath); err != nil {
		// ffmpeg 退出码为 0 但播放列表缺失，同样视为失败
		return fmt.Errorf("档位播放列表缺失: %w", err)
	}

	if p.cfg.HLSUseFMP4 {
		if err := rewriteInitSegmentURI(playlistPath); err != nil {
			return fmt.Errorf("修正初始化分片URI失败: %w", err)
		}
	}

	return nil
}

// rewriteInitSegmentURI 把播放列表里的初始化分片 URI 改写为相对形式
func rewriteInitSegmentURI(playlistPath string) error {
	data, err := os.ReadFile(playlistPath)
	if err != nil {
		return err
	}

	fixed := initMapPattern.ReplaceAll(data, []byte(`#EXT-X-MAP:URI="init.m4a"`))
	if string(fixed) == string(data) {
		return nil
	}
	return os.WriteFile(playlistPath, fixed, 0644)
}

// writeMasterPlaylist 写主播放列表，只引用实际生成的档位
func (p *HLSPipeline) writeMasterPlaylist(outputDir string, tiers []Quality) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	for _, tier := range tiers {
		params := tier.Params()
		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,NAME=\"%s\"\n",
			params.Bandwidth, strings.ToUpper(string(tier))))
		b.WriteString(fmt.Sprintf("%s/%s.m3u8\n", tier, tier))
	}

	masterPath := filepath.Join(outputDir, MasterPlaylistName)
	return os.WriteFile(masterPath, []byte(b.String()), 0644)
}

// recordEntries 为每个完成的档位登记缓存条目
func (p *HLSPipeline) recordEntries(ctx context.Context, track *model.Track, tiers []Quality, outputDir string) {
	if p.entries == nil {
		return
	}

	for _, tier := range tiers {
		tierDir := filepath.Join(outputDir, string(tier))
		size := dirSize(tierDir)

		entry := &model.CacheEntry{
			TrackID:  track.ID,
			Quality:  string(tier),
			Format:   "hls",
			FilePath: tierDir,
			FileSize: size,
			// HLS 树永不过期，ExpiresAt 留空
		}
		if err := p.entries.Upsert(ctx, entry); err != nil {
			logger.Warn("登记缓存条目失败",
				logger.String("trackId", track.ID),
				logger.String("quality", string(tier)),
				logger.ErrorField(err))
		}
	}
}

// dirSize 目录下所有文件的字节总数，出错按 0 处理
func dirSize(dir string) int64 {
	var total int64
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
