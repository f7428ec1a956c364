package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Sonara/logger"

	"github.com/minio/minio-go/v7"
)

// contentTypeFor HLS 产物文件的 Content-Type
func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(name, ".ts"):
		return "video/MP2T"
	case strings.HasSuffix(name, ".m4s"), strings.HasSuffix(name, ".m4a"):
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// objectPath MinIO 对象路径：hls/{trackId}/{relPath}
func objectPath(trackID, relPath string) string {
	return "hls/" + trackID + "/" + strings.ReplaceAll(relPath, "\\", "/")
}

// UploadHLSTree 把一个曲目完整的 HLS 目录树上传到 MinIO
// 客户端未初始化时直接跳过；供转码完成后异步调用
func UploadHLSTree(ctx context.Context, bucket, trackID, dir string) error {
	client := GetMinioClient()
	if client == nil {
		return nil
	}

	uploaded := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		opts := minio.PutObjectOptions{
			ContentType:      contentTypeFor(path),
			DisableMultipart: true,
		}

		putCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		_, err = client.PutObject(putCtx, bucket, objectPath(trackID, relPath), file, info.Size(), opts)
		if err != nil {
			return fmt.Errorf("上传 %s 失败: %w", relPath, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("HLS产物上传MinIO完成",
		logger.String("trackId", trackID),
		logger.Int("fileCount", uploaded))
	return nil
}

// FetchHLSFile 从 MinIO 取回单个 HLS 文件
// 本地产物丢失（例如换机、磁盘清理）时的兜底读取路径
func FetchHLSFile(ctx context.Context, bucket, trackID, relPath string) ([]byte, string, error) {
	client := GetMinioClient()
	if client == nil {
		return nil, "", fmt.Errorf("MinIO客户端未初始化")
	}

	getCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	object, err := client.GetObject(getCtx, bucket, objectPath(trackID, relPath), minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}
	defer object.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, object); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), contentTypeFor(relPath), nil
}
