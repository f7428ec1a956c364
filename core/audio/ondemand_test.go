package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"Sonara/config"
	"Sonara/model"
)

// cancellingInvoker 模拟被取消的编码：留下半成品文件并返回 ctx 错误
type cancellingInvoker struct{}

func (cancellingInvoker) Run(ctx context.Context, spec EncodeSpec) error {
	os.WriteFile(spec.OutputName, []byte("partial"), 0644)
	return context.Canceled
}

func newTestTranscoder(t *testing.T, inv Invoker) (*CacheTranscoder, *config.Config) {
	t.Helper()
	cfg := &config.Config{CacheDir: t.TempDir()}
	return NewCacheTranscoder(inv, cfg, nil), cfg
}

func TestTranscodeToCacheProducesArtifact(t *testing.T) {
	inv := &fakeInvoker{}
	tr, cfg := newTestTranscoder(t, inv)
	track := highQualityTrack("track-od-1")

	path, mime, err := tr.TranscodeToCache(context.Background(), track, QualityHigh)
	if err != nil {
		t.Fatalf("TranscodeToCache() error = %v", err)
	}
	if want := filepath.Join(cfg.CacheDir, "track-od-1_high.m4a"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	if mime != "audio/aac" {
		t.Errorf("mime = %s, want audio/aac", mime)
	}
	if info, statErr := os.Stat(path); statErr != nil || info.Size() == 0 {
		t.Errorf("artifact missing or empty: %v", statErr)
	}
}

func TestTranscodeToCacheHitSkipsEncoder(t *testing.T) {
	inv := &fakeInvoker{}
	tr, _ := newTestTranscoder(t, inv)
	track := highQualityTrack("track-od-2")

	// 预置非空产物
	cached := tr.CachePath(track.ID, QualityEfficiency)
	if err := os.WriteFile(cached, []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	path, mime, err := tr.TranscodeToCache(context.Background(), track, QualityEfficiency)
	if err != nil {
		t.Fatalf("TranscodeToCache() error = %v", err)
	}
	if path != cached {
		t.Errorf("path = %s, want cached %s", path, cached)
	}
	if mime != "audio/aac" {
		t.Errorf("mime = %s, want audio/aac", mime)
	}
	if len(inv.callQualities()) != 0 {
		t.Error("encoder invoked despite cache hit")
	}
}

func TestTranscodeToCacheEmptyFileMeansInProgress(t *testing.T) {
	inv := &fakeInvoker{}
	tr, _ := newTestTranscoder(t, inv)
	track := highQualityTrack("track-od-3")

	// 空文件表示另一个转码正在写
	if err := os.WriteFile(tr.CachePath(track.ID, QualityHigh), nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := tr.TranscodeToCache(context.Background(), track, QualityHigh)
	if !errors.Is(err, ErrTranscodeInProgress) {
		t.Fatalf("error = %v, want ErrTranscodeInProgress", err)
	}
	if len(inv.callQualities()) != 0 {
		t.Error("encoder invoked despite in-progress marker")
	}
}

func TestTranscodeToCacheCancellationRemovesPartialOutput(t *testing.T) {
	tr, _ := newTestTranscoder(t, cancellingInvoker{})
	track := highQualityTrack("track-od-4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := tr.TranscodeToCache(ctx, track, QualityHigh)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	// 半成品必须被清掉，否则下次请求会误判为进行中
	if _, statErr := os.Stat(tr.CachePath(track.ID, QualityHigh)); !os.IsNotExist(statErr) {
		t.Error("partial output left on disk after cancellation")
	}
}

func TestTranscodeToCacheEncodeFailureRemovesOutput(t *testing.T) {
	inv := &fakeInvoker{failOn: map[Quality]error{
		QualityCD: &EncodeError{ExitCode: 1, Err: errors.New("exit status 1")},
	}}
	tr, _ := newTestTranscoder(t, inv)
	track := &model.Track{ID: "track-od-5", Format: "flac", BitDepth: 16, FilePath: "/in/a.flac"}

	_, _, err := tr.TranscodeToCache(context.Background(), track, QualityCD)
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("error = %v, want EncodeError", err)
	}
	if encErr.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", encErr.ExitCode)
	}
	if _, statErr := os.Stat(tr.CachePath(track.ID, QualityCD)); !os.IsNotExist(statErr) {
		t.Error("output left on disk after encode failure")
	}
}

func TestSweepRemovesArtifact(t *testing.T) {
	tr, _ := newTestTranscoder(t, &fakeInvoker{})
	path := tr.CachePath("track-od-6", QualityHigh)
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	tr.Sweep("track-od-6", QualityHigh)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expired artifact survived sweep")
	}

	// 目标不存在时必须静默
	tr.Sweep("track-od-6", QualityHigh)
}

func TestCachePathNaming(t *testing.T) {
	tr, cfg := newTestTranscoder(t, &fakeInvoker{})
	tests := []struct {
		quality Quality
		want    string
	}{
		{QualityEfficiency, "t_efficiency.m4a"},
		{QualityHigh, "t_high.m4a"},
		{QualityCD, "t_cd.flac"},
		{QualityHiRes, "t_hires.flac"},
	}
	for _, tt := range tests {
		if got := tr.CachePath("t", tt.quality); got != filepath.Join(cfg.CacheDir, tt.want) {
			t.Errorf("CachePath(t, %s) = %s, want %s", tt.quality, got, tt.want)
		}
	}
}
