package server

import (
	"context"
	"encoding/json"
	"net/http"

	"Sonara/core/audio"
	"Sonara/logger"
	"Sonara/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// transcodeRequest POST 请求体，sessionId 也可以走查询参数
type transcodeRequest struct {
	SessionID string `json:"sessionId"`
}

// registerTrackRequest 上传子系统移交的已解析曲目记录
type registerTrackRequest struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
	BitDepth   int    `json:"bitDepth"`
	FileSize   int64  `json:"fileSize"`
	Duration   int    `json:"duration"`
	FilePath   string `json:"filePath"`
	SessionID  string `json:"sessionId"` // 可选，关联进度推送
}

// RegisterTrackHandler 接收上传完成的移交记录，入库并提交整轨HLS生成
// POST /api/tracks
func (h *APIHandler) RegisterTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req registerTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "TRACK_002", "请求体格式无效")
		return
	}
	if !isValidTrackID(req.ID) {
		writeAPIError(w, http.StatusUnprocessableEntity, "TRACK_002", "曲目ID格式无效")
		return
	}
	if req.FilePath == "" {
		writeAPIError(w, http.StatusBadRequest, "TRACK_002", "缺少源文件路径")
		return
	}

	track := &model.Track{
		ID:         req.ID,
		Title:      req.Title,
		Artist:     req.Artist,
		Format:     req.Format,
		SampleRate: req.SampleRate,
		BitDepth:   req.BitDepth,
		FileSize:   req.FileSize,
		Duration:   req.Duration,
		FilePath:   req.FilePath,
	}
	if err := h.trackRepo.CreateTrack(track); err != nil {
		logger.Error("写入曲目失败", logger.String("trackId", req.ID), logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRACK_001", "写入曲目失败")
		return
	}

	// 上传完成即预生成HLS
	jobID := uuid.NewString()
	sourceQuality := audio.ClassifySourceQuality(track)
	sessionID := req.SessionID
	h.scheduler.Enqueue(&audio.Job{
		ID:        jobID,
		TrackID:   track.ID,
		Quality:   string(sourceQuality),
		SessionID: sessionID,
		Run: func(ctx context.Context) error {
			return h.pipeline.GenerateHLS(ctx, track, sessionID)
		},
	})

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"track":  track,
		"jobId":  jobID,
		"status": "queued",
	})
}

// EnqueueTranscodeHandler 提交整轨HLS生成任务，立即返回
// POST /api/transcode/{track_id}?sessionId=xxx
func (h *APIHandler) EnqueueTranscodeHandler(w http.ResponseWriter, r *http.Request) {
	track := h.lookupTrack(w, r)
	if track == nil {
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" && r.Body != nil {
		var req transcodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			sessionID = req.SessionID
		}
	}

	jobID := uuid.NewString()
	sourceQuality := audio.ClassifySourceQuality(track)
	h.scheduler.Enqueue(&audio.Job{
		ID:        jobID,
		TrackID:   track.ID,
		Quality:   string(sourceQuality),
		SessionID: sessionID,
		Run: func(ctx context.Context) error {
			return h.pipeline.GenerateHLS(ctx, track, sessionID)
		},
	})

	logger.Info("已提交转码任务",
		logger.String("jobId", jobID),
		logger.String("trackId", track.ID),
		logger.String("sessionId", sessionID))

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":   jobID,
		"trackId": track.ID,
		"status":  "queued",
	})
}

// JobStatusHandler 返回单个任务的当前状态
// GET /api/transcode/job/{job_id}
func (h *APIHandler) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	if !isValidTrackID(jobID) {
		writeAPIError(w, http.StatusUnprocessableEntity, "TRANSCODE_001", "任务ID格式无效")
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), jobID)
	if err != nil {
		logger.Error("查询任务失败", logger.String("jobId", jobID), logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRANSCODE_001", "查询任务失败")
		return
	}
	if job == nil {
		writeAPIError(w, http.StatusNotFound, "TRANSCODE_001", "任务不存在")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// TrackJobsHandler 返回曲目的历史任务记录，最新在前
// GET /api/transcode/{track_id}/jobs
func (h *APIHandler) TrackJobsHandler(w http.ResponseWriter, r *http.Request) {
	track := h.lookupTrack(w, r)
	if track == nil {
		return
	}

	jobs, err := h.jobRepo.GetByTrackID(r.Context(), track.ID)
	if err != nil {
		logger.Error("查询任务记录失败",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRANSCODE_001", "查询任务记录失败")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trackId": track.ID,
		"jobs":    jobs,
	})
}
