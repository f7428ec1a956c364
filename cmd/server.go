package cmd

import (
	"Sonara/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动Sonara服务器",
	Long:  `启动Sonara自适应转码服务的HTTP服务器，提供流媒体与转码任务API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
