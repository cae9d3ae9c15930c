// Package analyze implements the chainalyzer analyze command: resolve a
// ticket's chain and run the full analysis pipeline on it.
package analyze

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appanalysis "chainalyzer/internal/application/analysis"
	"chainalyzer/internal/interfaces/cli/bootstrap"
	"chainalyzer/internal/shared/errors"
)

var (
	ticketID    string
	chainHash   string
	question    string
	useFixture  bool
	fixtureSeed int64
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a ticket chain",
		Long:  `Resolve the chain a ticket belongs to, gather every linked ticket's history and produce an AI-assisted analysis report of the whole service engagement.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&ticketID, "ticket", "t", "", "Ticket ID to start from")
	cmd.Flags().StringVar(&chainHash, "chain", "", "Analyze a known chain hash directly")
	cmd.Flags().StringVarP(&question, "question", "q", "", "Optional follow-up question answered after the analysis")
	cmd.Flags().BoolVar(&useFixture, "fixture", false, "Run against a seeded in-memory ticket store")
	cmd.Flags().Int64Var(&fixtureSeed, "seed", 0, "Fixture RNG seed (0 = derived from clock)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	comps, err := bootstrap.Setup(bootstrap.Options{Fixture: useFixture, Seed: fixtureSeed})
	if err != nil {
		return err
	}
	defer bootstrap.Teardown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := ticketID
	if target == "" && comps.Fixture != nil {
		target = comps.Fixture.ExampleTicket
		comps.Logger.Infow("no ticket given, using seeded example", "ticket_id", target)
	}
	if target == "" && chainHash == "" {
		return fmt.Errorf("either --ticket or --chain is required")
	}

	out, err := analyzeTarget(ctx, comps, target)
	if err != nil {
		if errors.IsNotFound(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "Ticket %s is not part of any chain.\n", target)
			return nil
		}
		return err
	}

	w := cmd.OutOrStdout()
	if out.Result != nil {
		fmt.Fprintf(w, "\nChain %s (%d tickets), analysis #%d\n\n", out.Result.ChainHash, out.Result.TicketCount, out.Result.ID)
		fmt.Fprintln(w, out.Result.FullAnalysis)
	}
	if out.FollowUp != "" {
		fmt.Fprintf(w, "\nFOLLOW-UP: %s\n%s\n", question, out.FollowUp)
	}
	return nil
}

func analyzeTarget(ctx context.Context, comps *bootstrap.Components, target string) (*appanalysis.RunOutput, error) {
	if chainHash != "" {
		return comps.Service.AnalyzeChain(ctx, chainHash, question)
	}
	return comps.Service.AnalyzeTicket(ctx, target, question)
}
