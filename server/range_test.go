package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "artifact.m4a")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func doRangeRequest(t *testing.T, path, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	serveFileRange(w, req, path, "audio/aac")
	return w
}

func TestServeFileRangeFullContent(t *testing.T) {
	path := writeTestFile(t, 1000)
	w := doRangeRequest(t, path, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Length"); got != "1000" {
		t.Errorf("Content-Length = %s, want 1000", got)
	}
	if got := w.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %s, want bytes", got)
	}
	if got := w.Header().Get("Content-Type"); got != "audio/aac" {
		t.Errorf("Content-Type = %s", got)
	}
	if w.Body.Len() != 1000 {
		t.Errorf("body length = %d, want 1000", w.Body.Len())
	}
	if !strings.Contains(w.Header().Get("Cache-Control"), "max-age=31536000") {
		t.Errorf("Cache-Control = %s", w.Header().Get("Cache-Control"))
	}
}

func TestServeFileRangePartialContent(t *testing.T) {
	path := writeTestFile(t, 1000)

	tests := []struct {
		name        string
		header      string
		wantRange   string
		wantLen     int
		wantFirstAt int // 区间首字节在原文件中的偏移
	}{
		{"explicit span", "bytes=0-99", "bytes 0-99/1000", 100, 0},
		{"interior span", "bytes=500-599", "bytes 500-599/1000", 100, 500},
		{"open-ended", "bytes=900-", "bytes 900-999/1000", 100, 900},
		{"suffix", "bytes=-100", "bytes 900-999/1000", 100, 900},
		{"end clamped to size", "bytes=990-5000", "bytes 990-999/1000", 10, 990},
		{"oversized suffix clamped", "bytes=-5000", "bytes 0-999/1000", 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRangeRequest(t, path, tt.header)
			if w.Code != http.StatusPartialContent {
				t.Fatalf("status = %d, want 206", w.Code)
			}
			if got := w.Header().Get("Content-Range"); got != tt.wantRange {
				t.Errorf("Content-Range = %s, want %s", got, tt.wantRange)
			}
			if w.Body.Len() != tt.wantLen {
				t.Errorf("body length = %d, want %d", w.Body.Len(), tt.wantLen)
			}
			if got := w.Body.Bytes()[0]; got != byte(tt.wantFirstAt%251) {
				t.Errorf("first byte = %d, want %d", got, byte(tt.wantFirstAt%251))
			}
		})
	}
}

func TestServeFileRangeNotSatisfiable(t *testing.T) {
	path := writeTestFile(t, 1000)

	tests := []struct {
		name   string
		header string
	}{
		{"start at size", "bytes=1000-"},
		{"start past size", "bytes=5000-9999"},
		{"unparseable", "bytes=abc-def"},
		{"missing unit", "0-99"},
		{"inverted span", "bytes=200-100"},
		{"multiple ranges", "bytes=0-1,5-9"},
		{"empty spec", "bytes=-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRangeRequest(t, path, tt.header)
			if w.Code != http.StatusRequestedRangeNotSatisfiable {
				t.Fatalf("status = %d, want 416", w.Code)
			}
			if got := w.Header().Get("Content-Range"); got != "bytes */1000" {
				t.Errorf("Content-Range = %s, want bytes */1000", got)
			}
		})
	}
}

func TestServeFileRangeMissingFile(t *testing.T) {
	w := doRangeRequest(t, filepath.Join(t.TempDir(), "missing.m4a"), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "TRANSCODE_002") {
		t.Errorf("body = %s, want TRANSCODE_002 code", w.Body.String())
	}
}

func TestServeFileRangeHeadOmitsBody(t *testing.T) {
	path := writeTestFile(t, 1000)
	req := httptest.NewRequest(http.MethodHead, "/stream", nil)
	req.Header.Set("Range", "bytes=0-99")
	w := httptest.NewRecorder()
	serveFileRange(w, req, path, "audio/aac")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("HEAD response carries %d body bytes", w.Body.Len())
	}
	if got := w.Header().Get("Content-Length"); got != "100" {
		t.Errorf("Content-Length = %s, want 100", got)
	}
}
