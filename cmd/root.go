package cmd

import (
	"fmt"
	"log"
	"os"

	"Sonara/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sonara",
	Short: "Sonara is an adaptive audio transcoding and delivery service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting Sonara server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
