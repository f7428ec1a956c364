package repository

import (
	"context"
	"time"

	"Sonara/model"

	"gorm.io/gorm"
)

// JobRepository 转码任务记录的数据访问接口
// 终态（completed/failed）只允许写入一次，重复的终态更新会被忽略；
// 记录永不删除，保留给审计和运维排查
type JobRepository interface {
	Create(ctx context.Context, job *model.TranscodeJob) error
	MarkStarted(ctx context.Context, jobID string, at time.Time) error
	MarkCompleted(ctx context.Context, jobID string, at time.Time) error
	MarkFailed(ctx context.Context, jobID string, at time.Time, message string) error
	GetByID(ctx context.Context, jobID string) (*model.TranscodeJob, error)
	GetByTrackID(ctx context.Context, trackID string) ([]*model.TranscodeJob, error)
}

// gormJobRepository GORM 实现
type gormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository 创建 GORM 任务仓库
func NewGormJobRepository(db *gorm.DB) JobRepository {
	return &gormJobRepository{db: db}
}

// Create 写入排队中的任务记录
func (r *gormJobRepository) Create(ctx context.Context, job *model.TranscodeJob) error {
	if job.Status == "" {
		job.Status = model.JobStatusQueued
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// MarkStarted 任务出队、子进程启动时调用
func (r *gormJobRepository) MarkStarted(ctx context.Context, jobID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.TranscodeJob{}).
		Where("id = ? AND status = ?", jobID, model.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":     model.JobStatusTranscoding,
			"started_at": at,
		}).Error
}

// MarkCompleted 写入成功终态；已处于终态的记录不再变更
func (r *gormJobRepository) MarkCompleted(ctx context.Context, jobID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.TranscodeJob{}).
		Where("id = ? AND status NOT IN ?", jobID, terminalStatuses()).
		Updates(map[string]interface{}{
			"status":       model.JobStatusCompleted,
			"completed_at": at,
		}).Error
}

// MarkFailed 写入失败终态；已处于终态的记录不再变更
func (r *gormJobRepository) MarkFailed(ctx context.Context, jobID string, at time.Time, message string) error {
	return r.db.WithContext(ctx).Model(&model.TranscodeJob{}).
		Where("id = ? AND status NOT IN ?", jobID, terminalStatuses()).
		Updates(map[string]interface{}{
			"status":        model.JobStatusFailed,
			"completed_at":  at,
			"error_message": message,
		}).Error
}

// GetByID 根据ID查询任务
func (r *gormJobRepository) GetByID(ctx context.Context, jobID string) (*model.TranscodeJob, error) {
	var job model.TranscodeJob
	err := r.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// GetByTrackID 查询一个曲目的全部任务记录，新的在前
func (r *gormJobRepository) GetByTrackID(ctx context.Context, trackID string) ([]*model.TranscodeJob, error) {
	var jobs []*model.TranscodeJob
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

func terminalStatuses() []model.JobStatus {
	return []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed}
}
