package main

import (
	"github.com/spf13/cobra"

	"medrelief/internal/app"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  serve,
	})
}

func serve(_ *cobra.Command, _ []string) error {
	a, err := app.NewApp()
	if err != nil {
		return err
	}
	return a.Run()
}
