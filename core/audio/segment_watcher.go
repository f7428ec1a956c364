package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"Sonara/logger"

	"github.com/fsnotify/fsnotify"
)

// SegmentWatcher 监听编码输出目录，统计落盘完成的分片
// 编码期间分片逐个产出，监听到稳定的分片文件后通过回调上报，
// 用于分片粒度的进度观测
type SegmentWatcher struct {
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc
	done      chan struct{}
	processed sync.Map
	count     int32
}

// segmentExts 关心的输出文件扩展名
func isSegmentFile(name string) bool {
	switch filepath.Ext(name) {
	case ".ts", ".m4s", ".m4a":
		return true
	default:
		return false
	}
}

// WatchSegments 开始监听目录，每个新分片稳定后调用一次 onSegment
// 返回的 SegmentWatcher 必须 Stop，Stop 会做一次兜底扫描补上遗漏的分片
func WatchSegments(dir string, onSegment func(name string)) (*SegmentWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sw := &SegmentWatcher{
		watcher: watcher,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go sw.loop(ctx, dir, onSegment)
	return sw, nil
}

// loop 事件循环
// ffmpeg 写分片不是原子的，收到事件后等文件大小稳定再上报
func (sw *SegmentWatcher) loop(ctx context.Context, dir string, onSegment func(string)) {
	defer close(sw.done)

	pendingFiles := make(map[string]time.Time)
	checkTicker := time.NewTicker(50 * time.Millisecond)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isSegmentFile(event.Name) {
				pendingFiles[event.Name] = time.Now()
			}

		case <-checkTicker.C:
			now := time.Now()
			for filePath, lastEvent := range pendingFiles {
				// 100ms 内还有写入事件，文件可能没写完
				if now.Sub(lastEvent) < 100*time.Millisecond {
					continue
				}
				if !isFileStable(filePath) {
					continue
				}

				delete(pendingFiles, filePath)
				sw.report(filePath, onSegment)
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("分片目录监听错误", logger.ErrorField(err))
		}
	}
}

// report 上报单个分片，LoadOrStore 保证每个分片只上报一次
func (sw *SegmentWatcher) report(filePath string, onSegment func(string)) {
	name := filepath.Base(filePath)
	if _, loaded := sw.processed.LoadOrStore(name, true); loaded {
		return
	}
	atomic.AddInt32(&sw.count, 1)
	if onSegment != nil {
		onSegment(name)
	}
}

// isFileStable 检查文件是否写入完成：非空且短暂等待后大小不变
func isFileStable(path string) bool {
	info1, err := os.Stat(path)
	if err != nil || info1.Size() == 0 {
		return false
	}

	time.Sleep(30 * time.Millisecond)

	info2, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info1.Size() == info2.Size()
}

// Stop 停止监听并做最终扫描，返回分片总数
// 编码结束瞬间落盘的分片可能赶不上事件循环，扫描目录兜底
func (sw *SegmentWatcher) Stop(dir string, onSegment func(name string)) int {
	sw.cancel()
	sw.watcher.Close()
	<-sw.done

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !isSegmentFile(entry.Name()) {
				continue
			}
			// 扫描阶段文件一定已写完，不再做稳定性检查
			if strings.HasPrefix(entry.Name(), "segment_") || entry.Name() == "init.m4a" {
				sw.report(filepath.Join(dir, entry.Name()), onSegment)
			}
		}
	}

	return int(atomic.LoadInt32(&sw.count))
}
