// Package results implements the chainalyzer results command: read access to
// the locally stored analysis reports.
package results

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/interfaces/cli/bootstrap"
	"chainalyzer/internal/shared/errors"
)

var (
	ticketID  string
	chainHash string
	skip      int
	limit     int
	full      bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Browse stored analysis results",
		Long:  `List stored chain analyses or show individual reports by ticket or chain hash. Reads only the local result store; no provider access required.`,
	}

	cmd.PersistentFlags().BoolVar(&full, "full", false, "Print the full report text instead of the summary section")

	cmd.AddCommand(
		newListCommand(),
		newGetCommand(),
		newChainCommand(),
	)
	return cmd
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored analyses",
		RunE:  runList,
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "Rows to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to return")
	return cmd
}

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the latest analysis for a ticket",
		RunE:  runGet,
	}
	cmd.Flags().StringVarP(&ticketID, "ticket", "t", "", "Ticket ID (required)")
	cmd.MarkFlagRequired("ticket")
	return cmd
}

func newChainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Show every analysis recorded for a chain",
		RunE:  runChain,
	}
	cmd.Flags().StringVar(&chainHash, "hash", "", "Chain hash (required)")
	cmd.MarkFlagRequired("hash")
	return cmd
}

func setup() (*bootstrap.Components, error) {
	return bootstrap.Setup(bootstrap.Options{SkipProvider: true})
}

func runList(cmd *cobra.Command, args []string) error {
	comps, err := setup()
	if err != nil {
		return err
	}
	defer bootstrap.Teardown()

	rows, err := comps.Results.List(context.Background(), skip, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No analyses stored.")
		return nil
	}
	for _, row := range rows {
		fmt.Fprintf(cmd.OutOrStdout(), "#%d  %s  ticket %s  chain %s  %d tickets\n",
			row.ID, row.CreatedAt.Format("2006-01-02 15:04"), row.TicketID, row.ChainHash, row.TicketCount)
	}
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	comps, err := setup()
	if err != nil {
		return err
	}
	defer bootstrap.Teardown()

	result, err := comps.Results.GetByTicket(context.Background(), ticketID)
	if err != nil {
		if errors.IsNotFound(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "No analysis stored for ticket %s.\n", ticketID)
			return nil
		}
		return err
	}
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func runChain(cmd *cobra.Command, args []string) error {
	comps, err := setup()
	if err != nil {
		return err
	}
	defer bootstrap.Teardown()

	rows, err := comps.Results.GetByChain(context.Background(), chainHash)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No analyses stored for chain %s.\n", chainHash)
		return nil
	}
	for _, row := range rows {
		printResult(cmd.OutOrStdout(), row)
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func printResult(w io.Writer, result *analysis.AnalysisResult) {
	fmt.Fprintf(w, "Analysis #%d  ticket %s  chain %s  %d tickets  %s\n",
		result.ID, result.TicketID, result.ChainHash, result.TicketCount,
		result.CreatedAt.Format("2006-01-02 15:04"))
	if full {
		fmt.Fprintln(w, result.FullAnalysis)
		return
	}
	if result.ServiceSummary != "" {
		fmt.Fprintln(w, result.ServiceSummary)
	} else {
		fmt.Fprintln(w, result.FullAnalysis)
	}
}
