package model

import "time"

// JobStatus 转码任务状态
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"      // 已入队，等待调度
	JobStatusTranscoding JobStatus = "transcoding" // 编码子进程运行中
	JobStatusCompleted   JobStatus = "completed"   // 成功，输出已落盘
	JobStatusFailed      JobStatus = "failed"      // 失败（启动失败、非零退出或输出缺失）
)

// TranscodeJob 一次转码任务的审计记录
// 终态（completed/failed）只写一次，记录永不删除，保留给运维排查
type TranscodeJob struct {
	ID               string     `json:"id" gorm:"primaryKey;size:36"`
	TrackID          string     `json:"trackId" gorm:"size:36;index;not null"`
	RequestedQuality string     `json:"requestedQuality" gorm:"size:16;not null"`
	Status           JobStatus  `json:"status" gorm:"size:16;index;default:'queued'"`
	ErrorMessage     string     `json:"errorMessage,omitempty" gorm:"type:text"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// TableName 指定表名
func (TranscodeJob) TableName() string {
	return "transcode_jobs"
}

// Terminal reports whether the job has reached a final state.
func (j *TranscodeJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
