package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/shared/errors"
	"chainalyzer/internal/shared/logger"
)

type fakeChainRepo struct {
	chains    map[string]string
	summaries map[string][]chain.TicketSummary
}

func (r *fakeChainRepo) ResolveChain(ctx context.Context, ticketID string) (string, error) {
	hash, ok := r.chains[ticketID]
	if !ok {
		return "", errors.NewNotFoundError("ticket is not part of a chain", ticketID)
	}
	return hash, nil
}

func (r *fakeChainRepo) ListChainTickets(ctx context.Context, chainHash string) ([]chain.TicketSummary, error) {
	return r.summaries[chainHash], nil
}

type fakeFetcher struct {
	records map[string]*chain.TicketRecord
}

func (f *fakeFetcher) FetchDetails(ctx context.Context, ticketIDs []string) (map[string]*chain.TicketRecord, []string, error) {
	found := map[string]*chain.TicketRecord{}
	var missing []string
	for _, id := range ticketIDs {
		if rec, ok := f.records[id]; ok {
			found[id] = rec
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

func newTestService(t *testing.T) (*Service, *fakeResultRepo) {
	t.Helper()
	input := testInput()

	chains := &fakeChainRepo{
		chains:    map[string]string{"3000001": input.Snapshot.ChainHash},
		summaries: map[string][]chain.TicketSummary{input.Snapshot.ChainHash: input.Snapshot.Tickets},
	}
	fetcher := &fakeFetcher{records: input.Records}
	results := &fakeResultRepo{}
	orch := NewOrchestrator(newFakeSummarizer(), results, nil, testConfig(), logger.NewLogger())
	return NewService(chains, fetcher, orch, 10, logger.NewLogger()), results
}

func TestServiceAnalyzeTicket(t *testing.T) {
	svc, results := newTestService(t)

	out, err := svc.AnalyzeTicket(context.Background(), "3000001", "")
	require.NoError(t, err)

	assert.Equal(t, StateSaved, out.State)
	require.NotNil(t, out.Result)
	assert.Equal(t, "3000001", out.Result.TicketID)
	assert.Len(t, results.saved, 1)
}

func TestServiceAnalyzeTicket_NotInChain(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AnalyzeTicket(context.Background(), "9999999", "")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestServiceAnalyzeChain_TriggerDefaultsToFirstTicket(t *testing.T) {
	svc, _ := newTestService(t)
	hash := testInput().Snapshot.ChainHash

	out, err := svc.AnalyzeChain(context.Background(), hash, "")
	require.NoError(t, err)
	assert.Equal(t, "2000001", out.Result.TicketID)
}

func TestServiceAnalyzeChain_EmptyChain(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AnalyzeChain(context.Background(), "FFFF000011112222", "")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestServiceAnalyzeTicket_MissingDetailsTolerated(t *testing.T) {
	input := testInput()
	chains := &fakeChainRepo{
		chains:    map[string]string{"3000001": input.Snapshot.ChainHash},
		summaries: map[string][]chain.TicketSummary{input.Snapshot.ChainHash: input.Snapshot.Tickets},
	}
	// One listed ticket has no detail row.
	partial := map[string]*chain.TicketRecord{}
	for id, rec := range input.Records {
		if id != "2000002" {
			partial[id] = rec
		}
	}
	results := &fakeResultRepo{}
	orch := NewOrchestrator(newFakeSummarizer(), results, nil, testConfig(), logger.NewLogger())
	svc := NewService(chains, &fakeFetcher{records: partial}, orch, 10, logger.NewLogger())

	out, err := svc.AnalyzeTicket(context.Background(), "3000001", "")
	require.NoError(t, err)
	assert.Equal(t, StateSaved, out.State)
	// Snapshot still counts all listed tickets; units cover fetched ones only.
	assert.Equal(t, 3, out.Result.TicketCount)
	assert.Len(t, out.Units, 1)
}

func TestNewServiceDefaultsBatchSize(t *testing.T) {
	svc := NewService(nil, nil, nil, 0, logger.NewLogger())
	assert.Equal(t, 3, svc.batchSize)
}
