package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "medrelief",
	Short: "Medical organization and volunteer team directory",
	Long: `Serves the public directory API of medical organizations and volunteer teams,
reconciling citizen submissions and back office imports.`,
	SilenceUsage: true,
	// serving is the default action
	RunE: serve,
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
