package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"Sonara/logger"
)

// byteRange 已经过裁剪的单段字节区间，闭区间
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRangeHeader 解析单段 Range 头
// 只支持 bytes=start-end / bytes=start- / bytes=-suffix 三种形式，
// 多段请求按不可满足处理
func parseRangeHeader(header string, size int64) (byteRange, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return byteRange{}, false
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return byteRange{}, false
	}
	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	// bytes=-N：最后N个字节
	if startStr == "" {
		if endStr == "" {
			return byteRange{}, false
		}
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return byteRange{}, false
		}
		if suffix > size {
			suffix = size
		}
		return byteRange{start: size - suffix, end: size - 1}, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, false
	}
	if start >= size {
		return byteRange{}, false
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return byteRange{}, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return byteRange{start: start, end: end}, true
}

// serveFileRange 带 Range 语义地发送本地文件
// 无 Range 头返回 200 全量；合法区间返回 206；
// 无法满足的区间返回 416 并附 Content-Range: bytes */total
func serveFileRange(w http.ResponseWriter, r *http.Request, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeAPIError(w, http.StatusNotFound, "TRANSCODE_002", "转码产物不存在")
			return
		}
		logger.Error("打开媒体文件失败", logger.String("path", path), logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRANSCODE_002", "读取转码产物失败")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Error("获取文件信息失败", logger.String("path", path), logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRANSCODE_002", "读取转码产物失败")
		return
	}
	size := info.Size()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			if _, err := io.Copy(w, f); err != nil {
				logger.Warn("发送媒体文件中断", logger.ErrorField(err))
			}
		}
		return
	}

	rng, ok := parseRangeHeader(rangeHeader, size)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if _, err := f.Seek(rng.start, io.SeekStart); err != nil {
		logger.Error("定位文件偏移失败", logger.ErrorField(err))
		writeAPIError(w, http.StatusInternalServerError, "TRANSCODE_002", "读取转码产物失败")
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(rng.length(), 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		if _, err := io.CopyN(w, f, rng.length()); err != nil {
			logger.Warn("发送部分内容中断", logger.ErrorField(err))
		}
	}
}
