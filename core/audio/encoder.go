package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"Sonara/config"
	"Sonara/logger"
)

// stderrTailLimit ffmpeg 诊断输出保留的尾部字节数，用于失败时的服务端日志
const stderrTailLimit = 4096

// HLSOptions HLS 分片参数，nil 表示输出单个文件
type HLSOptions struct {
	SegmentTime string // -hls_time，秒
	UseFMP4     bool   // fMP4 分片（init.m4a + .m4s），否则 MPEG-TS
}

// EncodeSpec 一次编码调用的全部输入
type EncodeSpec struct {
	InputPath  string      // 源文件绝对路径
	Quality    Quality     // 目标档位，决定编码参数
	OutputName string      // 输出文件名（相对 WorkDir）
	WorkDir    string      // 子进程工作目录；HLS 分片要求 cwd 为档位目录，播放列表内才是相对路径
	HLS        *HLSOptions // 非 nil 时输出 HLS 分片
	// OnProgress 尽力而为的进度回调，参数为已编码的媒体时长。
	// 解析不到进度标记只是跳过本次回调，绝不导致任务失败。
	OnProgress func(elapsed time.Duration)
}

// EncodeError 编码子进程失败
type EncodeError struct {
	ExitCode int    // 进程退出码；启动失败时为 -1
	Stderr   string // 诊断输出尾部
	Err      error
}

func (e *EncodeError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("ffmpeg启动失败: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg退出码 %d: %v", e.ExitCode, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Invoker runs one external encode for one (input, tier) pair.
// The pipeline and the on-demand transcoder never touch raw process handles;
// tests substitute a fake.
type Invoker interface {
	Run(ctx context.Context, spec EncodeSpec) error
}

// FFmpegEncoder implements Invoker using the ffmpeg binary.
type FFmpegEncoder struct {
	ffmpegPath string
	threads    int
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
func NewFFmpegEncoder(cfg *config.Config) *FFmpegEncoder {
	return &FFmpegEncoder{
		ffmpegPath: cfg.FFmpegPath,
		threads:    cfg.FFmpegThreads,
	}
}

// progressPattern 匹配 ffmpeg 诊断行里的已编码时长，如 time=00:01:23.45
var progressPattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// buildArgs 构建 ffmpeg 命令行参数
// 始终禁用视频流（-vn，封面图会被当成视频流）和交互输入（-nostdin）
func (e *FFmpegEncoder) buildArgs(spec EncodeSpec) []string {
	params := spec.Quality.Params()

	args := []string{
		"-y",
		"-nostdin",
		"-threads", strconv.Itoa(e.threads),
		"-i", spec.InputPath,
		"-vn",
		"-c:a", params.Codec,
	}

	if params.Bitrate != "" {
		args = append(args, "-b:a", params.Bitrate)
	}
	if params.MaxRate != "" {
		args = append(args, "-maxrate", params.MaxRate)
	}
	if params.BufSize != "" {
		args = append(args, "-bufsize", params.BufSize)
	}
	if params.SampleRate != "" {
		args = append(args, "-ar", params.SampleRate)
	}
	if params.Compression != "" {
		args = append(args, "-compression_level", params.Compression)
	}
	if params.SampleFmt != "" {
		args = append(args, "-sample_fmt", params.SampleFmt)
	}

	if spec.HLS != nil {
		args = append(args,
			"-f", "hls",
			"-hls_time", spec.HLS.SegmentTime,
			"-hls_playlist_type", "vod",
			"-hls_list_size", "0",
		)
		if spec.HLS.UseFMP4 {
			args = append(args,
				"-hls_segment_type", "fmp4",
				"-hls_fmp4_init_filename", "init.m4a",
				"-hls_segment_filename", "segment_%04d.m4s",
			)
		} else {
			args = append(args, "-hls_segment_filename", "segment_%04d.ts")
		}
	}

	args = append(args, spec.OutputName)
	return args
}

// Run starts exactly one ffmpeg subprocess and blocks until it exits.
// Success requires exit status 0; cancelling ctx kills the subprocess.
func (e *FFmpegEncoder) Run(ctx context.Context, spec EncodeSpec) error {
	args := e.buildArgs(spec)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.Dir = spec.WorkDir

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &EncodeError{ExitCode: -1, Err: err}
	}

	logger.Debug("执行FFmpeg命令",
		logger.String("input", spec.InputPath),
		logger.String("quality", string(spec.Quality)),
		logger.Any("args", args))

	if err := cmd.Start(); err != nil {
		return &EncodeError{ExitCode: -1, Err: err}
	}

	// 边读诊断输出边解析进度，同时保留尾部供失败时记录
	tail := consumeStderr(stderr, spec.OnProgress)

	if err := cmd.Wait(); err != nil {
		// 调用方取消时优先报告取消，而不是被 SIGKILL 的退出状态
		if ctx.Err() != nil {
			return ctx.Err()
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &EncodeError{ExitCode: exitCode, Stderr: string(tail), Err: err}
	}

	return nil
}

// scanStderrLines 按 \r 或 \n 切分 ffmpeg 诊断输出
// ffmpeg 的进度状态行用 \r 原地刷新而不换行，按换行切分会把整段进度流
// 攒成一个超长"行"：进度读不到，超过缓冲上限后 Scan 还会中止，
// stderr 不再被排空，子进程阻塞在写端永不退出
func scanStderrLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// consumeStderr 持续排空诊断输出直到 EOF：逐行解析进度标记，
// 并保留尾部字节供失败时记录
func consumeStderr(r io.Reader, onProgress func(elapsed time.Duration)) []byte {
	tail := make([]byte, 0, stderrTailLimit)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	scanner.Split(scanStderrLines)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		tail = append(tail, line...)
		tail = append(tail, '\n')
		if len(tail) > stderrTailLimit {
			tail = tail[len(tail)-stderrTailLimit:]
		}

		if onProgress != nil {
			if elapsed, ok := parseProgressLine(string(line)); ok {
				onProgress(elapsed)
			}
		}
	}
	return tail
}

// parseProgressLine 从一行诊断输出解析已编码时长
// 格式不符时返回 false，调用方跳过本次进度
func parseProgressLine(line string) (time.Duration, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hours, err1 := strconv.Atoi(m[1])
	minutes, err2 := strconv.Atoi(m[2])
	seconds, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	elapsed := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return elapsed, true
}
