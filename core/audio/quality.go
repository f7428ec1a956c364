package audio

import (
	"fmt"
	"strings"

	"Sonara/model"
)

// Quality is one of the four ordered delivery tiers.
type Quality string

const (
	QualityEfficiency Quality = "efficiency" // aac 128k
	QualityHigh       Quality = "high"       // aac 320k
	QualityCD         Quality = "cd"         // flac 44.1kHz/16bit
	QualityHiRes      Quality = "hires"      // flac 原始采样率
)

// qualityOrder defines the total order of tiers by increasing fidelity.
var qualityOrder = []Quality{QualityEfficiency, QualityHigh, QualityCD, QualityHiRes}

// qualityIndex maps a tier to its ordinal in qualityOrder.
var qualityIndex = func() map[Quality]int {
	idx := make(map[Quality]int, len(qualityOrder))
	for i, q := range qualityOrder {
		idx[q] = i
	}
	return idx
}()

// ParseQuality validates a client-supplied tier name.
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := qualityIndex[q]; !ok {
		return "", fmt.Errorf("unknown quality tier: %q", s)
	}
	return q, nil
}

// TierParams 单个档位的编码参数
// 同一张表同时服务 HLS 预生成与按需转码两条路径
type TierParams struct {
	Codec       string // -c:a
	Bitrate     string // -b:a，无损档位为空
	MaxRate     string // -maxrate
	BufSize     string // -bufsize
	SampleRate  string // -ar，重采样目标
	Compression string // -compression_level，flac 压缩等级
	SampleFmt   string // -sample_fmt，位深限制
	Extension   string // 按需转码产物扩展名
	MIME        string // 按需转码产物 Content-Type
	Bandwidth   int    // master playlist 的 BANDWIDTH 估算值
}

// tierParams 档位参数表。增删档位必须同步扩展 qualityOrder，
// 两者不一致属于编程错误，由测试兜底。
var tierParams = map[Quality]TierParams{
	QualityEfficiency: {
		Codec:     "aac",
		Bitrate:   "128k",
		MaxRate:   "128k",
		BufSize:   "256k",
		Extension: "m4a",
		MIME:      "audio/aac",
		Bandwidth: 128000,
	},
	QualityHigh: {
		Codec:     "aac",
		Bitrate:   "320k",
		MaxRate:   "320k",
		BufSize:   "640k",
		Extension: "m4a",
		MIME:      "audio/aac",
		Bandwidth: 320000,
	},
	QualityCD: {
		Codec:       "flac",
		SampleRate:  "44100",
		Compression: "5",
		SampleFmt:   "s16",
		Extension:   "flac",
		MIME:        "audio/flac",
		Bandwidth:   1411000, // 16bit/44.1kHz 立体声 PCM 的标称码率
	},
	QualityHiRes: {
		Codec:       "flac",
		Compression: "5",
		Extension:   "flac",
		MIME:        "audio/flac",
		Bandwidth:   5000000, // 高解析无损的固定高估值
	},
}

// Params returns the encoder parameters for a tier.
func (q Quality) Params() TierParams {
	return tierParams[q]
}

// Index returns the tier's ordinal; lower means lower fidelity.
func (q Quality) Index() int {
	return qualityIndex[q]
}

// lossyFormats 按估算码率分档的有损容器
var lossyFormats = map[string]bool{
	"mp3":  true,
	"aac":  true,
	"m4a":  true,
	"ogg":  true,
	"opus": true,
}

// pcmFormats 未压缩 PCM 容器
var pcmFormats = map[string]bool{
	"wav":  true,
	"aiff": true,
}

// ClassifySourceQuality maps a track's technical attributes to the highest
// tier its original encoding honestly supports. Deterministic total function:
// unknown formats fall back to cd, never to hires.
func ClassifySourceQuality(track *model.Track) Quality {
	format := strings.ToLower(track.Format)
	sampleRate := track.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}
	duration := track.Duration
	if duration < 1 {
		duration = 1 // 防止除零
	}
	estimatedBitrate := track.FileSize * 8 / int64(duration)

	switch {
	case format == "flac":
		if track.BitDepth > 16 || sampleRate > 48000 {
			return QualityHiRes
		}
		return QualityCD

	case lossyFormats[format]:
		if estimatedBitrate >= 320000 {
			return QualityHigh
		}
		return QualityEfficiency

	case pcmFormats[format]:
		if sampleRate > 48000 {
			return QualityHiRes
		}
		return QualityCD

	default:
		return QualityCD
	}
}

// AvailableQualities returns the ordered prefix of tiers up to and including
// source. A tier above source fidelity is never offered.
func AvailableQualities(source Quality) []Quality {
	idx, ok := qualityIndex[source]
	if !ok {
		idx = qualityIndex[QualityCD]
	}
	out := make([]Quality, idx+1)
	copy(out, qualityOrder[:idx+1])
	return out
}
