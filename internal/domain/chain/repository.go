package chain

import "context"

// Repository resolves chain membership against the upstream ticket store.
type Repository interface {
	// ResolveChain returns the chain hash a ticket belongs to. A ticket that
	// is part of no chain yields a not-found error; callers treat that as a
	// normal outcome.
	ResolveChain(ctx context.Context, ticketID string) (string, error)

	// ListChainTickets returns one summary per distinct ticket sharing the
	// chain hash, excluded departments/types filtered out, ordered by
	// category then link time ascending.
	ListChainTickets(ctx context.Context, chainHash string) ([]TicketSummary, error)
}

// DetailFetcher loads full ticket records for a set of identifiers. IDs the
// primary store knows nothing about are returned in the missing slice rather
// than failing the batch.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, ticketIDs []string) (records map[string]*TicketRecord, missing []string, err error)
}

// AuxiliarySource is the read-only cross-system store holding turnup task and
// dispatch records. Enrichment from it is best-effort; implementations return
// errors, callers log and continue.
type AuxiliarySource interface {
	TurnupsForTickets(ctx context.Context, ticketIDs []string) (map[string]*TurnupDetail, error)
	DispatchesForTickets(ctx context.Context, ticketIDs []string) (map[string]*DispatchDetail, error)
}
