package audio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Sonara/model"
)

// recordingJobStore 记录状态转移，供断言
type recordingJobStore struct {
	mu        sync.Mutex
	created   []string
	started   []string
	completed []string
	failed    map[string]string
}

func newRecordingJobStore() *recordingJobStore {
	return &recordingJobStore{failed: make(map[string]string)}
}

func (s *recordingJobStore) Create(_ context.Context, job *model.TranscodeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, job.ID)
	return nil
}

func (s *recordingJobStore) MarkStarted(_ context.Context, jobID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, jobID)
	return nil
}

func (s *recordingJobStore) MarkCompleted(_ context.Context, jobID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, jobID)
	return nil
}

func (s *recordingJobStore) MarkFailed(_ context.Context, jobID string, _ time.Time, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[jobID] = msg
	return nil
}

func TestSchedulerNeverExceedsLimit(t *testing.T) {
	for _, limit := range []int{1, 2, 4} {
		limit := limit
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			s := NewScheduler(limit, nil)
			rng := rand.New(rand.NewSource(42))

			var running int32
			var peak int32
			var wg sync.WaitGroup

			const jobCount = 40
			for i := 0; i < jobCount; i++ {
				dur := time.Duration(rng.Intn(5)) * time.Millisecond
				wg.Add(1)
				s.Enqueue(&Job{
					ID:      fmt.Sprintf("job-%d", i),
					TrackID: fmt.Sprintf("track-%d", i),
					Run: func(ctx context.Context) error {
						defer wg.Done()
						n := atomic.AddInt32(&running, 1)
						for {
							p := atomic.LoadInt32(&peak)
							if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
								break
							}
						}
						time.Sleep(dur)
						atomic.AddInt32(&running, -1)
						return nil
					},
				})
			}

			wg.Wait()
			if got := atomic.LoadInt32(&peak); got > int32(limit) {
				t.Errorf("peak concurrency = %d, limit = %d", got, limit)
			}
		})
	}
}

func TestSchedulerLiveness(t *testing.T) {
	store := newRecordingJobStore()
	s := NewScheduler(2, store)

	const jobCount = 20
	var wg sync.WaitGroup
	for i := 0; i < jobCount; i++ {
		i := i
		wg.Add(1)
		s.Enqueue(&Job{
			ID:      fmt.Sprintf("job-%d", i),
			TrackID: "t",
			Run: func(ctx context.Context) error {
				defer wg.Done()
				if i%3 == 0 {
					return errors.New("encode failed")
				}
				return nil
			},
		})
	}
	wg.Wait()

	// 等终态写入完成
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		done := len(store.completed) + len(store.failed)
		store.mu.Unlock()
		if done == jobCount {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.created) != jobCount {
		t.Errorf("created = %d, want %d", len(store.created), jobCount)
	}
	if len(store.started) != jobCount {
		t.Errorf("started = %d, want %d", len(store.started), jobCount)
	}
	if got := len(store.completed) + len(store.failed); got != jobCount {
		t.Errorf("terminal transitions = %d, want %d", got, jobCount)
	}
}

func TestSchedulerFIFOWhenSerial(t *testing.T) {
	s := NewScheduler(1, nil)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("job-%d", i)
		wg.Add(1)
		s.Enqueue(&Job{
			ID:      id,
			TrackID: "t",
			Run: func(ctx context.Context) error {
				defer wg.Done()
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				return nil
			},
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, id := range order {
		want := fmt.Sprintf("job-%d", i)
		if id != want {
			t.Fatalf("execution order[%d] = %s, want %s (full order %v)", i, id, want, order)
		}
	}
}

func TestSchedulerFailureIsolation(t *testing.T) {
	store := newRecordingJobStore()
	s := NewScheduler(2, store)

	var wg sync.WaitGroup
	wg.Add(3)
	s.Enqueue(&Job{ID: "bad", TrackID: "t", Run: func(ctx context.Context) error {
		defer wg.Done()
		return errors.New("exit status 1")
	}})
	s.Enqueue(&Job{ID: "good-1", TrackID: "t", Run: func(ctx context.Context) error {
		defer wg.Done()
		return nil
	}})
	s.Enqueue(&Job{ID: "good-2", TrackID: "t", Run: func(ctx context.Context) error {
		defer wg.Done()
		return nil
	}})
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		done := len(store.completed)+len(store.failed) == 3
		store.mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if msg, ok := store.failed["bad"]; !ok || msg == "" {
		t.Errorf("bad job not marked failed with message, failed = %v", store.failed)
	}
	if len(store.completed) != 2 {
		t.Errorf("completed = %v, want the two good jobs", store.completed)
	}
	if s.ActiveCount() != 0 {
		t.Errorf("active count = %d after all jobs done", s.ActiveCount())
	}
	if s.PendingCount() != 0 {
		t.Errorf("pending count = %d after all jobs done", s.PendingCount())
	}
}

func TestSchedulerLimitFallback(t *testing.T) {
	s := NewScheduler(0, nil)
	if s.limit != 1 {
		t.Errorf("limit = %d, want fallback to 1", s.limit)
	}
	s = NewScheduler(-3, nil)
	if s.limit != 1 {
		t.Errorf("limit = %d, want fallback to 1", s.limit)
	}
}
