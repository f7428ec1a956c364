package audio

import (
	"context"
	"sync"
	"time"

	"Sonara/logger"
	"Sonara/model"
)

// JobStore 任务状态持久化接口，由 repository 实现
// 终态写入只发生一次；记录永不删除，留作审计
type JobStore interface {
	Create(ctx context.Context, job *model.TranscodeJob) error
	MarkStarted(ctx context.Context, jobID string, at time.Time) error
	MarkCompleted(ctx context.Context, jobID string, at time.Time) error
	MarkFailed(ctx context.Context, jobID string, at time.Time, message string) error
}

// Job 一个待调度的转码任务
type Job struct {
	ID        string // 任务ID（UUID）
	TrackID   string
	Quality   string // 请求的目标档位；整轨HLS任务为源档位
	SessionID string
	Run       func(ctx context.Context) error
}

// Scheduler 有界并发的 FIFO 转码调度器
// 同时运行的任务数不超过 limit，避免编码子进程压垮 CPU 和磁盘。
// 每个进程构造一个实例并显式传递，队列和活跃计数是仅有的共享可变状态，
// 全部在互斥锁内更新。
type Scheduler struct {
	mu      sync.Mutex
	pending []*Job
	active  int
	limit   int
	store   JobStore // 可为 nil（测试场景）
}

// NewScheduler 创建调度器，limit 不合法时退回 1
func NewScheduler(limit int, store JobStore) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{
		limit: limit,
		store: store,
	}
}

// Enqueue 入队并尝试调度
// 不去重：同一曲目提交两次就执行两次，由调用方保证不重复提交
func (s *Scheduler) Enqueue(job *Job) {
	if s.store != nil {
		record := &model.TranscodeJob{
			ID:               job.ID,
			TrackID:          job.TrackID,
			RequestedQuality: job.Quality,
			Status:           model.JobStatusQueued,
		}
		if err := s.store.Create(context.Background(), record); err != nil {
			logger.Warn("写入任务记录失败",
				logger.String("jobId", job.ID),
				logger.ErrorField(err))
		}
	}

	s.mu.Lock()
	s.pending = append(s.pending, job)
	queued := len(s.pending)
	s.mu.Unlock()

	logger.Info("转码任务入队",
		logger.String("jobId", job.ID),
		logger.String("trackId", job.TrackID),
		logger.Int("queueDepth", queued))

	s.drain()
}

// drain 尽可能多地启动队头任务
// 活跃计数在锁内、启动 goroutine 之前递增，任何交错下都不会超过 limit
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.active >= s.limit || len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		job := s.pending[0]
		s.pending = s.pending[1:]
		s.active++
		s.mu.Unlock()

		go s.execute(job)
	}
}

// execute 运行单个任务
// 完成（无论成败）后递减活跃计数并恰好触发一次新的调度；
// 单个任务的失败不影响兄弟任务，也不破坏计数不变量
func (s *Scheduler) execute(job *Job) {
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		s.drain()
	}()

	now := time.Now()
	if s.store != nil {
		if err := s.store.MarkStarted(context.Background(), job.ID, now); err != nil {
			logger.Warn("更新任务状态失败",
				logger.String("jobId", job.ID),
				logger.ErrorField(err))
		}
	}

	logger.Info("转码任务开始",
		logger.String("jobId", job.ID),
		logger.String("trackId", job.TrackID))

	// 预生成任务一旦开始就跑到底：产物是持久的，客户端断开不取消
	err := job.Run(context.Background())

	finished := time.Now()
	if err != nil {
		logger.Error("转码任务失败",
			logger.String("jobId", job.ID),
			logger.String("trackId", job.TrackID),
			logger.ErrorField(err))
		if s.store != nil {
			if serr := s.store.MarkFailed(context.Background(), job.ID, finished, err.Error()); serr != nil {
				logger.Warn("更新任务状态失败",
					logger.String("jobId", job.ID),
					logger.ErrorField(serr))
			}
		}
		return
	}

	logger.Info("转码任务完成",
		logger.String("jobId", job.ID),
		logger.String("trackId", job.TrackID),
		logger.Duration("elapsed", finished.Sub(now)))
	if s.store != nil {
		if serr := s.store.MarkCompleted(context.Background(), job.ID, finished); serr != nil {
			logger.Warn("更新任务状态失败",
				logger.String("jobId", job.ID),
				logger.ErrorField(serr))
		}
	}
}

// ActiveCount 当前运行中的任务数
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// PendingCount 当前排队中的任务数
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
