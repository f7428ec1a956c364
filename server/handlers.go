package server

import (
	"encoding/json"
	"net/http"
	"regexp"

	"Sonara/config"
	"Sonara/core/audio"
	"Sonara/core/notify"
	"Sonara/logger"
	"Sonara/model"
	"Sonara/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	trackRepo  repository.TrackRepository
	jobRepo    repository.JobRepository
	entryRepo  repository.CacheEntryRepository
	pipeline   *audio.HLSPipeline
	transcoder *audio.CacheTranscoder
	scheduler  *audio.Scheduler
	notifier   *notify.Notifier
	cfg        *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	jobRepo repository.JobRepository,
	entryRepo repository.CacheEntryRepository,
	pipeline *audio.HLSPipeline,
	transcoder *audio.CacheTranscoder,
	scheduler *audio.Scheduler,
	notifier *notify.Notifier,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:  trackRepo,
		jobRepo:    jobRepo,
		entryRepo:  entryRepo,
		pipeline:   pipeline,
		transcoder: transcoder,
		scheduler:  scheduler,
		notifier:   notifier,
		cfg:        cfg,
	}
}

// uuidPattern 曲目ID必须是标准UUID，其他形式直接拒绝
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func isValidTrackID(id string) bool {
	return uuidPattern.MatchString(id)
}

// apiError 统一的错误响应体
type apiError struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("写响应失败", logger.ErrorField(err))
	}
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: true, Code: code, Message: message})
}

// GetTracksHandler 返回全部曲目
// GET /api/tracks
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetAllTracks()
	if err != nil {
		logger.Error("查询曲目列表失败", logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRACK_001", "查询曲目列表失败")
		return
	}
	if tracks == nil {
		tracks = []*model.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}
