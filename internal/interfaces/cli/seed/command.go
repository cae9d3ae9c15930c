// Package seed implements the chainalyzer seed command: populate the
// configured ticket store with a synthetic, linked ticket chain for
// development and testing.
package seed

import (
	"fmt"

	"github.com/spf13/cobra"

	"chainalyzer/internal/infrastructure/database"
	"chainalyzer/internal/infrastructure/fixture"
	"chainalyzer/internal/interfaces/cli/bootstrap"
)

var (
	numDispatch int
	numTurnup   int
	rngSeed     int64
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a synthetic ticket chain",
		Long:  `Create the ticket schema if needed and insert a synthetic chain of linked dispatch, turnup and project tickets with realistic posts and task records. Intended for development databases only.`,
		RunE:  run,
	}

	cmd.Flags().IntVar(&numDispatch, "dispatch", 2, "Number of dispatch tickets")
	cmd.Flags().IntVar(&numTurnup, "turnup", 3, "Number of turnup tickets")
	cmd.Flags().Int64Var(&rngSeed, "seed", 0, "RNG seed (0 = derived from clock)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	comps, err := bootstrap.Setup(bootstrap.Options{SkipProvider: true})
	if err != nil {
		return err
	}
	defer bootstrap.Teardown()

	seeder := fixture.NewSeeder(database.Ticketing(), rngSeed, comps.Logger)
	if err := seeder.EnsureSchema(); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	result, err := seeder.SeedChain(numDispatch, numTurnup)
	if err != nil {
		return fmt.Errorf("failed to seed chain: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Chain hash: %s\n", result.ChainHash)
	fmt.Fprintf(w, "Dispatch tickets: %v\n", result.DispatchTickets)
	fmt.Fprintf(w, "Turnup tickets:   %v\n", result.TurnupTickets)
	if result.ProjectTicket != "" {
		fmt.Fprintf(w, "Project ticket:   %s\n", result.ProjectTicket)
	}
	fmt.Fprintf(w, "Example ticket for analyze: %s\n", result.ExampleTicket)
	return nil
}
