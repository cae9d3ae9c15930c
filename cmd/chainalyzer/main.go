package main

import (
	"os"

	"github.com/spf13/cobra"

	"chainalyzer/internal/interfaces/cli/analyze"
	"chainalyzer/internal/interfaces/cli/results"
	"chainalyzer/internal/interfaces/cli/seed"
	"chainalyzer/internal/interfaces/cli/setup"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chainalyzer",
		Short: "Chainalyzer - ticket chain analysis",
		Long:  `Chainalyzer reconstructs chains of linked field-service tickets and produces AI-assisted reports of the full service engagement: timeline, ticket relationships, anomalies and a summary.`,
	}

	rootCmd.AddCommand(
		analyze.NewCommand(),
		setup.NewCommand(),
		results.NewCommand(),
		seed.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
