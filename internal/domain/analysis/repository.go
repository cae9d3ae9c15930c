package analysis

import "context"

// Repository is the owned result store. Rows are append-only; there is no
// update or delete in the normal flow.
type Repository interface {
	Save(ctx context.Context, result *AnalysisResult) error
	GetByTicket(ctx context.Context, ticketID string) (*AnalysisResult, error)
	GetByChain(ctx context.Context, chainHash string) ([]*AnalysisResult, error)
	List(ctx context.Context, skip, limit int) ([]*AnalysisResult, error)
}
