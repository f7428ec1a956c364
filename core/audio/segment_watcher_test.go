package audio

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSegmentWatcherCountsSegments(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	seen := make(map[string]int)
	watcher, err := WatchSegments(dir, func(name string) {
		mu.Lock()
		seen[name]++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("WatchSegments() error = %v", err)
	}

	for _, name := range []string{"segment_0000.m4s", "segment_0001.m4s", "init.m4a"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("segment-data"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// 播放列表不算分片
	if err := os.WriteFile(filepath.Join(dir, "high.m3u8"), []byte("#EXTM3U\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// 给事件循环留出稳定性窗口
	time.Sleep(300 * time.Millisecond)

	count := watcher.Stop(dir, func(name string) {
		mu.Lock()
		seen[name]++
		mu.Unlock()
	})
	if count != 3 {
		t.Errorf("segment count = %d, want 3", count)
	}

	mu.Lock()
	defer mu.Unlock()
	for name, times := range seen {
		if times != 1 {
			t.Errorf("segment %s reported %d times, want exactly once", name, times)
		}
	}
	if _, ok := seen["high.m3u8"]; ok {
		t.Error("playlist reported as a segment")
	}
}

func TestSegmentWatcherStopScanCatchesLateFiles(t *testing.T) {
	dir := t.TempDir()
	watcher, err := WatchSegments(dir, nil)
	if err != nil {
		t.Fatalf("WatchSegments() error = %v", err)
	}

	// 事件循环来不及处理的文件由 Stop 的最终扫描兜底
	if err := os.WriteFile(filepath.Join(dir, "segment_0000.ts"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if count := watcher.Stop(dir, nil); count != 1 {
		t.Errorf("segment count = %d, want 1", count)
	}
}
