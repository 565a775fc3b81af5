package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "verifier",
		Short:        "Misinformation verdict and moderation routing service",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(), newCheckCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
