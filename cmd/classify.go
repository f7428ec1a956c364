package cmd

import (
	"fmt"

	"Sonara/core/audio"
	"Sonara/model"

	"github.com/spf13/cobra"
)

var (
	classifyFormat     string
	classifySampleRate int
	classifyBitDepth   int
	classifyFileSize   int64
	classifyDuration   int
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "音质分级诊断",
	Long:  `根据给定的音频技术参数计算源质量档位与可用档位列表，便于排查分级结果。`,
	Run: func(cmd *cobra.Command, args []string) {
		track := &model.Track{
			Format:     classifyFormat,
			SampleRate: classifySampleRate,
			BitDepth:   classifyBitDepth,
			FileSize:   classifyFileSize,
			Duration:   classifyDuration,
		}

		source := audio.ClassifySourceQuality(track)
		fmt.Printf("源质量档位: %s\n", source)
		fmt.Print("可用档位: ")
		for i, q := range audio.AvailableQualities(source) {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Print(q)
		}
		fmt.Println()
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyFormat, "format", "", "容器格式，如 flac / mp3 / wav")
	classifyCmd.Flags().IntVar(&classifySampleRate, "sample-rate", 0, "采样率 (Hz)")
	classifyCmd.Flags().IntVar(&classifyBitDepth, "bit-depth", 0, "位深")
	classifyCmd.Flags().Int64Var(&classifyFileSize, "size", 0, "文件大小（字节）")
	classifyCmd.Flags().IntVar(&classifyDuration, "duration", 0, "时长（秒）")
	rootCmd.AddCommand(classifyCmd)
}
