// Package setup implements the chainalyzer setup command: verify or create
// the provider-side corpus and agent and persist their identifiers.
package setup

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chainalyzer/internal/interfaces/cli/bootstrap"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Provision provider resources",
		Long:  `Verify the configured corpus and agent at the summarization provider, create them if absent, and write the identifiers back to the config file for reuse.`,
		RunE:  run,
	}
}

func run(cmd *cobra.Command, args []string) error {
	comps, err := bootstrap.Setup(bootstrap.Options{})
	if err != nil {
		return err
	}
	defer bootstrap.Teardown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agentID, corpusID, err := comps.Orchestrator.EnsureResources(ctx)
	if err != nil {
		return fmt.Errorf("resource provisioning failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Agent:  %s\nCorpus: %s\n", agentID, corpusID)
	return nil
}
