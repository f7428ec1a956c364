package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Sonara/cache"
	"Sonara/core/audio"
	"Sonara/logger"
	"Sonara/model"
	"Sonara/storage"

	"github.com/gorilla/mux"
)

// lookupTrack 校验曲目ID并查库，出错时已写好响应
func (h *APIHandler) lookupTrack(w http.ResponseWriter, r *http.Request) *model.Track {
	trackID := mux.Vars(r)["track_id"]
	if !isValidTrackID(trackID) {
		writeAPIError(w, http.StatusUnprocessableEntity, "TRACK_002", "曲目ID格式无效")
		return nil
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		logger.Error("查询曲目失败", logger.String("trackId", trackID), logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRACK_001", "查询曲目失败")
		return nil
	}
	if track == nil {
		writeAPIError(w, http.StatusNotFound, "TRACK_001", "曲目不存在")
		return nil
	}
	return track
}

// StreamHandler 按需转码并流式返回单文件产物
// GET /api/stream/{track_id}?quality=high
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	qualityParam := r.URL.Query().Get("quality")
	if qualityParam == "" {
		qualityParam = string(audio.QualityHigh)
	}
	quality, err := audio.ParseQuality(qualityParam)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_QUALITY", fmt.Sprintf("无效的音质档位: %s", qualityParam))
		return
	}

	track := h.lookupTrack(w, r)
	if track == nil {
		return
	}

	// 请求档位不能超过源质量，超出时降到源档位
	source := audio.ClassifySourceQuality(track)
	if quality.Index() > source.Index() {
		quality = source
	}

	// 惰性过期清理：条目过期时删掉旧产物，让下面的转码重新生成
	expired := false
	if entry, err := h.entryRepo.GetByTrackAndQuality(r.Context(), track.ID, string(quality)); err == nil &&
		entry != nil && entry.Expired(time.Now()) {
		h.transcoder.Sweep(track.ID, quality)
		if err := h.entryRepo.Delete(r.Context(), track.ID, string(quality)); err != nil {
			logger.Warn("删除过期产物记录失败",
				logger.String("trackId", track.ID),
				logger.ErrorField(err))
		}
		expired = true
	}

	// Redis 路径索引命中且文件完好时跳过数据库与转码路径
	if !expired {
		if path := cache.GetEntryPath(track.ID, string(quality)); path != "" {
			if info, err := os.Stat(path); err == nil && info.Size() > 0 {
				serveFileRange(w, r, path, quality.Params().MIME)
				return
			}
		}
	}

	path, mime, err := h.transcoder.TranscodeToCache(r.Context(), track, quality)
	if err != nil {
		if errors.Is(err, audio.ErrTranscodeInProgress) {
			w.Header().Set("Retry-After", "2")
			writeAPIError(w, http.StatusServiceUnavailable, "TRANSCODE_001", "转码正在进行中，请稍后重试")
			return
		}
		if errors.Is(err, context.Canceled) {
			// 客户端断开，正常情况
			logger.Debug("按需转码被客户端取消", logger.String("trackId", track.ID))
			return
		}
		logger.Error("按需转码失败",
			logger.String("trackId", track.ID),
			logger.String("quality", string(quality)),
			logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRANSCODE_001", "转码失败")
		return
	}

	serveFileRange(w, r, path, mime)
}

// QualityHandler 返回曲目的源质量与可用档位
// GET /api/stream/{track_id}/quality
func (h *APIHandler) QualityHandler(w http.ResponseWriter, r *http.Request) {
	track := h.lookupTrack(w, r)
	if track == nil {
		return
	}

	source := audio.ClassifySourceQuality(track)
	available := audio.AvailableQualities(source)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sourceQuality":      source,
		"availableQualities": available,
		"track": map[string]interface{}{
			"id":         track.ID,
			"format":     track.Format,
			"sampleRate": track.SampleRate,
			"bitDepth":   track.BitDepth,
			"duration":   track.Duration,
		},
	})
}

// MasterPlaylistHandler 返回主播放列表
// GET /api/stream/{track_id}/master.m3u8
func (h *APIHandler) MasterPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	track := h.lookupTrack(w, r)
	if track == nil {
		return
	}
	h.serveHLSFile(w, r, track.ID, audio.MasterPlaylistName)
}

// HLSFileHandler 返回档位播放列表或媒体分片
// GET /api/stream/{track_id}/{quality}/{file}
func (h *APIHandler) HLSFileHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := audio.ParseQuality(vars["quality"]); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_QUALITY", fmt.Sprintf("无效的音质档位: %s", vars["quality"]))
		return
	}

	track := h.lookupTrack(w, r)
	if track == nil {
		return
	}

	file := filepath.Base(vars["file"])
	h.serveHLSFile(w, r, track.ID, filepath.Join(vars["quality"], file))
}

// serveHLSFile 三级查找：Redis播放列表缓存 → 本地HLS目录 → MinIO回源
// 播放列表走缓存，媒体分片走本地文件以保留Range语义
func (h *APIHandler) serveHLSFile(w http.ResponseWriter, r *http.Request, trackID, relPath string) {
	isPlaylist := strings.HasSuffix(relPath, ".m3u8")

	if isPlaylist {
		if data := cache.GetPlaylistCache(trackID, relPath); data != nil {
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			w.Header().Set("Cache-Control", "no-cache")
			w.Write(data)
			return
		}
	}

	localPath := filepath.Join(h.cfg.HLSDir, trackID, relPath)
	if _, err := os.Stat(localPath); err != nil {
		// 本地缺失，尝试从MinIO回源并落盘
		if !h.restoreFromMinio(trackID, relPath, localPath) {
			writeAPIError(w, http.StatusNotFound, "TRANSCODE_002", "流媒体文件不存在")
			return
		}
	}

	if isPlaylist {
		data, err := os.ReadFile(localPath)
		if err != nil {
			writeAPIError(w, http.StatusNotFound, "TRANSCODE_002", "流媒体文件不存在")
			return
		}
		if err := cache.SetPlaylistCache(trackID, relPath, data); err != nil {
			logger.Warn("缓存播放列表失败", logger.ErrorField(err))
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
		return
	}

	serveFileRange(w, r, localPath, segmentContentType(relPath))
}

// restoreFromMinio 从对象存储取回单个HLS文件写到本地
func (h *APIHandler) restoreFromMinio(trackID, relPath, localPath string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, _, err := storage.FetchHLSFile(ctx, h.cfg.MinioBucket, trackID, relPath)
	if err != nil {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		logger.Error("创建回源目录失败", logger.ErrorField(err))
		return false
	}
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		logger.Error("写回源文件失败", logger.ErrorField(err))
		return false
	}
	logger.Info("已从MinIO回源HLS文件",
		logger.String("trackId", trackID),
		logger.String("file", relPath))
	return true
}

func segmentContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(name, ".ts"):
		return "video/MP2T"
	case strings.HasSuffix(name, ".m4s"), strings.HasSuffix(name, ".m4a"):
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
