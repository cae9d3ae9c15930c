package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/shared/errors"
	"chainalyzer/internal/shared/logger"
)

// fakeSummarizer is a scriptable in-memory provider. Every behavior hook is
// optional; the zero value answers everything successfully.
type fakeSummarizer struct {
	mu sync.Mutex

	verifyCorpusErr error
	verifyAgentErr  error
	uploadErr       error
	sendErr         func(text string) error
	pollErr         func(text string) error
	respond         func(text string) string
	failDocs        map[string]bool

	createdCorpora   int
	createdAgents    int
	updateAgentCalls int
	uploads          []string
	sendCalls        int
	requests         map[string]string
	detached         []string
	deletedDocs      []string
	seq              int
}

func newFakeSummarizer() *fakeSummarizer {
	return &fakeSummarizer{requests: map[string]string{}}
}

func (f *fakeSummarizer) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeSummarizer) CreateCorpus(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdCorpora++
	return f.nextID("corpus"), nil
}

func (f *fakeSummarizer) VerifyCorpus(ctx context.Context, corpusID string) error {
	return f.verifyCorpusErr
}

func (f *fakeSummarizer) UploadDocument(ctx context.Context, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, name)
	if f.failDocs[name] {
		return "doc-fail-" + name, nil
	}
	return f.nextID("doc"), nil
}

func (f *fakeSummarizer) Attach(ctx context.Context, corpusID, docID string) error {
	return nil
}

func (f *fakeSummarizer) PollStatus(ctx context.Context, corpusID, docID string) (analysis.DocStatus, error) {
	if strings.HasPrefix(docID, "doc-fail-") {
		return analysis.DocFailed, nil
	}
	return analysis.DocReady, nil
}

func (f *fakeSummarizer) CreateAgent(ctx context.Context, instructions, corpusID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdAgents++
	return f.nextID("agent"), nil
}

func (f *fakeSummarizer) VerifyAgent(ctx context.Context, agentID string) error {
	return f.verifyAgentErr
}

func (f *fakeSummarizer) UpdateAgent(ctx context.Context, agentID, corpusID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateAgentCalls++
	return nil
}

func (f *fakeSummarizer) CreateSession(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextID("session"), nil
}

func (f *fakeSummarizer) Send(ctx context.Context, sessionID, agentID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		if err := f.sendErr(text); err != nil {
			return "", err
		}
	}
	id := f.nextID("req")
	f.requests[id] = text
	return id, nil
}

func (f *fakeSummarizer) PollResult(ctx context.Context, sessionID, requestID string) (analysis.RequestStatus, string, error) {
	f.mu.Lock()
	text, ok := f.requests[requestID]
	responder := f.respond
	pollErr := f.pollErr
	f.mu.Unlock()
	if !ok {
		return analysis.RequestFailed, "unknown request", nil
	}
	if pollErr != nil {
		if err := pollErr(text); err != nil {
			return analysis.RequestFailed, "", err
		}
	}
	if responder != nil {
		return analysis.RequestCompleted, responder(text), nil
	}
	return analysis.RequestCompleted, defaultResponse(text), nil
}

func (f *fakeSummarizer) DetachDocument(ctx context.Context, corpusID, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, docID)
	return nil
}

func (f *fakeSummarizer) DeleteDocument(ctx context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDocs = append(f.deletedDocs, docID)
	return nil
}

func (f *fakeSummarizer) DeleteCorpus(ctx context.Context, corpusID string) error {
	return nil
}

// defaultResponse answers unit prompts with valid JSON echoing the prompt (so
// ticket identifiers are present) and everything else with a four-section
// report.
func defaultResponse(prompt string) string {
	if strings.Contains(prompt, "Respond with JSON only") {
		return fmt.Sprintf(`{"prompt": %q, "issues_encountered": ["material shortage on site"], "missing_information": ["time out not recorded"], "summary": "visit analyzed"}`,
			prompt)
	}
	return "1. TIMELINE OF EVENTS: visit happened\n2. RELATIONSHIP MAP: dispatch spawned turnup\n3. ANOMALIES AND ISSUES: none\n4. SERVICE SUMMARY: all done"
}

type fakeResultRepo struct {
	mu    sync.Mutex
	saved []*analysis.AnalysisResult
}

func (r *fakeResultRepo) Save(ctx context.Context, result *analysis.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	result.ID = uint(len(r.saved) + 1)
	r.saved = append(r.saved, result)
	return nil
}

func (r *fakeResultRepo) GetByTicket(ctx context.Context, ticketID string) (*analysis.AnalysisResult, error) {
	return nil, errors.NewNotFoundError("no analysis for ticket", ticketID)
}

func (r *fakeResultRepo) GetByChain(ctx context.Context, chainHash string) ([]*analysis.AnalysisResult, error) {
	return nil, nil
}

func (r *fakeResultRepo) List(ctx context.Context, skip, limit int) ([]*analysis.AnalysisResult, error) {
	return nil, nil
}

func testConfig() Config {
	return Config{
		RequestTimeout: 100 * time.Millisecond,
		PollInterval:   time.Millisecond,
		RetryBackoff:   time.Millisecond,
		MaxRetries:     3,
		ExcerptBudget:  300,
	}
}

func testRecord(id string, category chain.Category, parentDispatch string) *chain.TicketRecord {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &chain.TicketRecord{
		ID:               id,
		Subject:          "Service visit " + id,
		Status:           "Closed",
		Department:       "Turnups",
		TicketType:       "Turnup",
		Category:         category,
		CreatedAt:        &created,
		ParentDispatchID: parentDispatch,
		Posts: []chain.Post{
			{ID: id + "-p1", Time: created, Author: "Tech", Body: "Arrived on site."},
		},
	}
}

func testInput() RunInput {
	records := map[string]*chain.TicketRecord{
		"2000001": testRecord("2000001", chain.CategoryDispatch, ""),
		"2000002": testRecord("2000002", chain.CategoryDispatch, ""),
		"3000001": testRecord("3000001", chain.CategoryTurnup, "2000001"),
	}
	summaries := []chain.TicketSummary{
		{TicketID: "2000001", Category: chain.CategoryDispatch, Subject: "Dispatch"},
		{TicketID: "2000002", Category: chain.CategoryDispatch, Subject: "Dispatch"},
		{TicketID: "3000001", Category: chain.CategoryTurnup, Subject: "Turnup"},
	}
	snapshot := chain.NewSnapshot("ABCDEF0123456789ABCDEF0123456789", summaries)
	return RunInput{
		TriggerTicketID: "3000001",
		Snapshot:        snapshot,
		Records:         records,
		Pairs:           chain.PlanPairs(records),
		Batches:         chain.PlanBatches(records, 10),
	}
}

func TestOrchestratorRun_HappyPath(t *testing.T) {
	provider := newFakeSummarizer()
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, StateSaved, out.State)
	assert.Equal(t, StateSaved, o.State())
	require.NotNil(t, out.Result)
	assert.Equal(t, "3000001", out.Result.TicketID)
	assert.Equal(t, 3, out.Result.TicketCount)
	assert.Equal(t, "visit happened", out.Result.TimelineEvents)
	assert.Equal(t, "all done", out.Result.ServiceSummary)
	require.Len(t, repo.saved, 1)

	// One pair per turnup plus one per orphan dispatch.
	require.Len(t, out.Units, 2)
	for _, u := range out.Units {
		assert.Equal(t, analysis.UnitOK, u.Status)
	}
	assert.NotEmpty(t, out.Issues.Buckets[analysis.BucketEquipment])
	assert.Contains(t, out.Issues.MissingInfo, "time out not recorded")
}

func TestOrchestratorRun_CreatesAndPersistsResources(t *testing.T) {
	provider := newFakeSummarizer()
	repo := &fakeResultRepo{}

	var persistedAgent, persistedCorpus string
	persist := func(agentID, corpusID string) error {
		persistedAgent = agentID
		persistedCorpus = corpusID
		return nil
	}

	o := NewOrchestrator(provider, repo, persist, testConfig(), logger.NewLogger())
	_, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, 1, provider.createdCorpora)
	assert.Equal(t, 1, provider.createdAgents)
	assert.NotEmpty(t, persistedAgent)
	assert.NotEmpty(t, persistedCorpus)
}

func TestOrchestratorRun_ReusesVerifiedResources(t *testing.T) {
	provider := newFakeSummarizer()
	repo := &fakeResultRepo{}

	cfg := testConfig()
	cfg.AgentID = "agent-existing"
	cfg.CorpusID = "corpus-existing"

	persisted := false
	o := NewOrchestrator(provider, repo, func(string, string) error {
		persisted = true
		return nil
	}, cfg, logger.NewLogger())

	_, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, 0, provider.createdCorpora)
	assert.Equal(t, 0, provider.createdAgents)
	assert.False(t, persisted)
}

func TestOrchestratorRun_RecreatesStaleCorpus(t *testing.T) {
	provider := newFakeSummarizer()
	provider.verifyCorpusErr = errors.NewProviderTransportError("gone", nil)
	repo := &fakeResultRepo{}

	cfg := testConfig()
	cfg.AgentID = "agent-existing"
	cfg.CorpusID = "corpus-stale"

	var persistedCorpus string
	o := NewOrchestrator(provider, repo, func(agentID, corpusID string) error {
		persistedCorpus = corpusID
		return nil
	}, cfg, logger.NewLogger())

	_, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, 1, provider.createdCorpora)
	assert.Equal(t, 0, provider.createdAgents)
	assert.Equal(t, 1, provider.updateAgentCalls)
	assert.NotEqual(t, "corpus-stale", persistedCorpus)
	assert.NotEmpty(t, persistedCorpus)
}

func TestOrchestratorRun_UnitTransportFailureTolerated(t *testing.T) {
	provider := newFakeSummarizer()
	provider.sendErr = func(text string) error {
		if strings.Contains(text, "turnup ticket 3000001") {
			return errors.NewProviderTransportError("connection reset", nil)
		}
		return nil
	}
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, StateSaved, out.State)

	byPrimary := map[string]analysis.UnitResult{}
	for _, u := range out.Units {
		byPrimary[u.PrimaryTicketID] = u
	}
	assert.Equal(t, analysis.UnitTransportError, byPrimary["3000001"].Status)
	assert.NotEmpty(t, byPrimary["3000001"].Error)
	assert.Equal(t, analysis.UnitOK, byPrimary["2000002"].Status)
}

func TestOrchestratorRun_AllUnitsFailedFailsRun(t *testing.T) {
	provider := newFakeSummarizer()
	provider.sendErr = func(text string) error {
		if strings.Contains(text, "Respond with JSON only") {
			return errors.NewProviderTransportError("connection reset", nil)
		}
		return nil
	}
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, StateFailed, out.State)

	// The overview succeeded before the units failed, so it was saved anyway.
	require.Len(t, repo.saved, 1)
	require.NotNil(t, out.Result)
	assert.Equal(t, repo.saved[0].FullAnalysis, out.Overview)
}

func TestOrchestratorRun_NoDocumentsFailsButKeepsOverview(t *testing.T) {
	provider := newFakeSummarizer()
	provider.uploadErr = errors.NewProviderTransportError("storage unavailable", nil)
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.Error(t, err)
	assert.True(t, errors.IsResourceSetup(err))
	assert.Equal(t, StateFailed, out.State)

	require.NotNil(t, out.Result)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, out.Overview, repo.saved[0].FullAnalysis)
}

func TestOrchestratorRun_FailedDocumentSkipped(t *testing.T) {
	provider := newFakeSummarizer()
	provider.failDocs = map[string]bool{"ticket_2000001.json": true}
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, StateSaved, out.State)
	// chain doc + 3 ticket docs attempted despite the one failure
	assert.Len(t, provider.uploads, 4)
}

func TestOrchestratorRun_ValidationFailureKeepsRaw(t *testing.T) {
	provider := newFakeSummarizer()
	provider.respond = func(text string) string {
		if strings.Contains(text, "Respond with JSON only") {
			return "I cannot answer in JSON today."
		}
		return defaultResponse(text)
	}
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.Error(t, err)

	for _, u := range out.Units {
		assert.Equal(t, analysis.UnitValidationError, u.Status)
		assert.Equal(t, "I cannot answer in JSON today.", u.Raw)
	}
}

func TestOrchestratorRun_ValidationErrorNotRetried(t *testing.T) {
	provider := newFakeSummarizer()
	provider.pollErr = func(text string) error {
		if strings.Contains(text, "Respond with JSON only") {
			return errors.NewProviderValidationError("response did not parse", "garbled ???")
		}
		return nil
	}
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, StateFailed, out.State)

	require.Len(t, out.Units, 2)
	for _, u := range out.Units {
		assert.Equal(t, analysis.UnitValidationError, u.Status)
		assert.Equal(t, "garbled ???", u.Raw)
		assert.NotEmpty(t, u.Error)
	}

	// Only transport errors are retried: one send for the overview and one
	// per unit, no resubmissions.
	assert.Equal(t, 3, provider.sendCalls)

	// The overview still reached the store.
	require.Len(t, repo.saved, 1)
	assert.Equal(t, out.Overview, repo.saved[0].FullAnalysis)
}

func TestOrchestratorRun_ConsolidatedFailureFallsBackToOverview(t *testing.T) {
	provider := newFakeSummarizer()
	provider.sendErr = func(text string) error {
		if strings.Contains(text, "Produce the final consolidated report") {
			return errors.NewProviderTransportError("timeout", nil)
		}
		return nil
	}
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, StateSaved, out.State)
	require.NotNil(t, out.Result)
	assert.Equal(t, out.Overview, out.Result.FullAnalysis)
}

func TestOrchestratorRun_FollowUpQuestionAnswered(t *testing.T) {
	provider := newFakeSummarizer()
	provider.respond = func(text string) string {
		if strings.Contains(text, "Regarding the ticket chain") {
			return "Two visits were required because of a material shortage."
		}
		return defaultResponse(text)
	}
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	input := testInput()
	input.Question = "Why were two visits required?"
	out, err := o.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "Two visits were required because of a material shortage.", out.FollowUp)
}

func TestOrchestratorRun_ConcurrentUnitsKeepSlotOrder(t *testing.T) {
	provider := newFakeSummarizer()
	repo := &fakeResultRepo{}
	cfg := testConfig()
	cfg.UnitConcurrency = 4
	o := NewOrchestrator(provider, repo, nil, cfg, logger.NewLogger())

	out, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)
	require.Len(t, out.Units, 2)
	// Slot order mirrors plan order: turnups first, then orphan dispatches.
	assert.Equal(t, "3000001", out.Units[0].PrimaryTicketID)
	assert.Equal(t, "2000002", out.Units[1].PrimaryTicketID)
	for _, u := range out.Units {
		assert.Equal(t, analysis.UnitOK, u.Status)
	}
}

func TestOrchestratorRun_RemotePurge(t *testing.T) {
	provider := newFakeSummarizer()
	repo := &fakeResultRepo{}
	cfg := testConfig()
	cfg.PurgeRemote = true
	o := NewOrchestrator(provider, repo, nil, cfg, logger.NewLogger())

	_, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)
	assert.Len(t, provider.detached, 4)
	assert.Len(t, provider.deletedDocs, 4)
}

func TestOrchestratorRun_CancelledContext(t *testing.T) {
	provider := newFakeSummarizer()
	repo := &fakeResultRepo{}
	o := NewOrchestrator(provider, repo, nil, testConfig(), logger.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := o.Run(ctx, testInput())
	require.Error(t, err)
	assert.Equal(t, StateFailed, out.State)
}
