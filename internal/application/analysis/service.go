// Package analysis wires the chain resolution, ticket fetching and provider
// orchestration stages into the end-to-end analysis pipeline.
package analysis

import (
	"context"
	"fmt"

	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/shared/errors"
	"chainalyzer/internal/shared/logger"
)

// Service runs complete chain analyses: ticket in, persisted report out.
type Service struct {
	chains       chain.Repository
	details      chain.DetailFetcher
	orchestrator *Orchestrator
	batchSize    int
	logger       logger.Interface
}

func NewService(chains chain.Repository, details chain.DetailFetcher, orchestrator *Orchestrator, batchSize int, log logger.Interface) *Service {
	if batchSize < 1 {
		batchSize = 3
	}
	return &Service{
		chains:       chains,
		details:      details,
		orchestrator: orchestrator,
		batchSize:    batchSize,
		logger:       log,
	}
}

// AnalyzeTicket resolves the ticket's chain and runs the full pipeline on it.
// A ticket that belongs to no chain returns a not-found error unchanged so
// callers can treat it as a normal outcome.
func (s *Service) AnalyzeTicket(ctx context.Context, ticketID, question string) (*RunOutput, error) {
	chainHash, err := s.chains.ResolveChain(ctx, ticketID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve chain for ticket %s: %w", ticketID, err)
	}
	s.logger.Infow("resolved chain", "ticket_id", ticketID, "chain_hash", chainHash)

	return s.analyzeChain(ctx, ticketID, chainHash, question)
}

// AnalyzeChain runs the pipeline on an already-known chain hash. The trigger
// ticket recorded on the result is the chain's first ticket.
func (s *Service) AnalyzeChain(ctx context.Context, chainHash, question string) (*RunOutput, error) {
	return s.analyzeChain(ctx, "", chainHash, question)
}

func (s *Service) analyzeChain(ctx context.Context, ticketID, chainHash, question string) (*RunOutput, error) {
	summaries, err := s.chains.ListChainTickets(ctx, chainHash)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets for chain %s: %w", chainHash, err)
	}
	if len(summaries) == 0 {
		return nil, errors.NewNotFoundError("chain has no analyzable tickets", chainHash)
	}

	snapshot := chain.NewSnapshot(chainHash, summaries)
	if ticketID == "" {
		ticketID = snapshot.Tickets[0].TicketID
	}
	s.logger.Infow("chain snapshot built", "chain_hash", chainHash, "tickets", snapshot.Count)

	records, missing, err := s.details.FetchDetails(ctx, snapshot.TicketIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticket details: %w", err)
	}
	if len(missing) > 0 {
		s.logger.Warnw("tickets listed in chain but absent from detail store",
			"chain_hash", chainHash, "missing", missing)
	}
	if len(records) == 0 {
		return nil, errors.NewNotFoundError("no ticket details could be fetched", chainHash)
	}

	input := RunInput{
		TriggerTicketID: ticketID,
		Snapshot:        snapshot,
		Records:         records,
		Pairs:           chain.PlanPairs(records),
		Batches:         chain.PlanBatches(records, s.batchSize),
		Question:        question,
	}
	s.logger.Infow("analysis plan ready",
		"chain_hash", chainHash, "pairs", len(input.Pairs), "batches", len(input.Batches))

	return s.orchestrator.Run(ctx, input)
}
