package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/shared/errors"
	"chainalyzer/internal/shared/logger"
	"chainalyzer/internal/shared/utils/textutil"
)

// State is the orchestrator's position in the analysis run.
type State string

const (
	StateIdle             State = "idle"
	StateContextPrepared  State = "context_prepared"
	StateUnitsAnalyzed    State = "units_analyzed"
	StateIssuesCompiled   State = "issues_compiled"
	StateFollowUpAnswered State = "follow_up_answered"
	StateConsolidated     State = "consolidated"
	StateSaved            State = "saved"
	StateFailed           State = "failed"
)

// Config carries the orchestrator tunables resolved from configuration.
type Config struct {
	AgentID         string
	CorpusID        string
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	RetryBackoff    time.Duration
	MaxRetries      int
	ExcerptBudget   int
	UnitConcurrency int
	WorkDir         string
	PurgeRemote     bool
}

// RunInput is everything one chain run operates on.
type RunInput struct {
	TriggerTicketID string
	Snapshot        *chain.ChainSnapshot
	Records         map[string]*chain.TicketRecord
	Pairs           []chain.TicketPair
	Batches         [][]*chain.TicketRecord
	Question        string
}

// RunOutput collects the run's artifacts. Units and Issues stay usable even
// when the run ends in StateFailed.
type RunOutput struct {
	State    State
	Result   *analysis.AnalysisResult
	Overview string
	Units    []analysis.UnitResult
	Issues   analysis.IssueIndex
	FollowUp string
}

// Orchestrator drives the multi-stage provider workflow for one chain:
// overview report, corpus ingestion, per-unit analysis, issue compilation,
// optional follow-up, consolidated report, save.
type Orchestrator struct {
	provider   analysis.Summarizer
	results    analysis.Repository
	persistIDs func(agentID, corpusID string) error
	cfg        Config
	logger     logger.Interface

	state State
}

// NewOrchestrator builds an orchestrator. persistIDs is called when corpus or
// agent identifiers are created fresh so later runs reuse them; pass nil to
// skip persistence.
func NewOrchestrator(provider analysis.Summarizer, results analysis.Repository, persistIDs func(agentID, corpusID string) error, cfg Config, log logger.Interface) *Orchestrator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ExcerptBudget <= 0 {
		cfg.ExcerptBudget = 300
	}
	return &Orchestrator{
		provider:   provider,
		results:    results,
		persistIDs: persistIDs,
		cfg:        cfg,
		logger:     log,
		state:      StateIdle,
	}
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	return o.state
}

// Run executes the full state machine for one chain. Per-unit failures do not
// abort the run; only total failure of a mandatory stage does. On failure the
// overview report, when it exists, is still saved so the run leaves usable
// output behind.
func (o *Orchestrator) Run(ctx context.Context, input RunInput) (*RunOutput, error) {
	out := &RunOutput{State: StateIdle}
	o.state = StateIdle

	agentID, corpusID, err := o.ensureResources(ctx)
	if err != nil {
		o.state = StateFailed
		out.State = StateFailed
		return out, err
	}

	sessionID, err := o.provider.CreateSession(ctx)
	if err != nil {
		o.state = StateFailed
		out.State = StateFailed
		return out, errors.NewResourceSetupError("failed to create analysis session", err)
	}

	// Overview first: a narrative report built from inline data only, so a
	// later ingestion failure still leaves a saveable analysis.
	overview, err := o.ask(ctx, sessionID, agentID, ChainOverviewPrompt(input.Snapshot, input.Records, o.cfg.ExcerptBudget))
	if err != nil {
		o.logger.Warnw("chain overview request failed", "error", err)
	} else {
		out.Overview = overview
	}

	docIDs, cleanupLocal, err := o.prepareContext(ctx, corpusID, input)
	defer func() {
		o.cleanup(corpusID, docIDs, cleanupLocal)
	}()
	if err != nil {
		return out, o.failWithPartial(ctx, out, input, err)
	}
	o.state = StateContextPrepared
	out.State = StateContextPrepared

	if err := ctx.Err(); err != nil {
		return out, o.failWithPartial(ctx, out, input, err)
	}

	out.Units = o.analyzeUnits(ctx, sessionID, agentID, input)
	succeeded := 0
	for _, u := range out.Units {
		if u.Status == analysis.UnitOK {
			succeeded++
		}
	}
	if len(out.Units) > 0 && succeeded == 0 {
		err := errors.NewInternalError("all analysis units failed", fmt.Sprintf("%d units", len(out.Units)))
		return out, o.failWithPartial(ctx, out, input, err)
	}
	o.state = StateUnitsAnalyzed
	out.State = StateUnitsAnalyzed

	out.Issues = analysis.CompileIssues(out.Units)
	o.state = StateIssuesCompiled
	out.State = StateIssuesCompiled

	if err := ctx.Err(); err != nil {
		return out, o.failWithPartial(ctx, out, input, err)
	}

	if input.Question != "" {
		answer, err := o.ask(ctx, sessionID, agentID, FollowUpPrompt(input.Snapshot.ChainHash, input.Question))
		if err != nil {
			o.logger.Warnw("follow-up question failed", "error", err)
		} else {
			out.FollowUp = answer
			o.state = StateFollowUpAnswered
			out.State = StateFollowUpAnswered
		}
	}

	finalText, err := o.ask(ctx, sessionID, agentID, ConsolidatedPrompt(input.Snapshot, out.Issues))
	if err != nil {
		o.logger.Warnw("consolidated report failed, falling back to overview", "error", err)
		if out.Overview == "" {
			return out, o.failWithPartial(ctx, out, input, err)
		}
		finalText = out.Overview
	} else {
		o.state = StateConsolidated
		out.State = StateConsolidated
	}

	result := analysis.NewResult(input.Snapshot.ChainHash, input.TriggerTicketID, input.Snapshot.Count, finalText)
	if err := o.results.Save(ctx, result); err != nil {
		o.state = StateFailed
		out.State = StateFailed
		return out, fmt.Errorf("failed to save analysis result: %w", err)
	}
	out.Result = result
	o.writeArtifacts(input.Snapshot.ChainHash, out)

	o.state = StateSaved
	out.State = StateSaved
	return out, nil
}

// failWithPartial marks the run failed but first saves the overview report if
// one was produced, so partial output survives.
func (o *Orchestrator) failWithPartial(ctx context.Context, out *RunOutput, input RunInput, cause error) error {
	o.state = StateFailed
	out.State = StateFailed

	if out.Overview != "" && out.Result == nil {
		result := analysis.NewResult(input.Snapshot.ChainHash, input.TriggerTicketID, input.Snapshot.Count, out.Overview)
		if err := o.results.Save(ctx, result); err != nil {
			o.logger.Errorw("failed to save partial overview report", "error", err)
		} else {
			out.Result = result
			o.logger.Infow("saved overview report despite run failure",
				"chain_hash", input.Snapshot.ChainHash)
		}
	}
	return cause
}

// EnsureResources verifies or creates the provider corpus and agent without
// running an analysis. Used by the setup command.
func (o *Orchestrator) EnsureResources(ctx context.Context) (agentID, corpusID string, err error) {
	return o.ensureResources(ctx)
}

// ensureResources verifies configured corpus/agent identifiers and recreates
// stale ones. Freshly created identifiers are persisted atomically.
func (o *Orchestrator) ensureResources(ctx context.Context) (agentID, corpusID string, err error) {
	corpusID = o.cfg.CorpusID
	if corpusID != "" {
		if err := o.provider.VerifyCorpus(ctx, corpusID); err != nil {
			o.logger.Warnw("configured corpus failed verification, recreating", "corpus_id", corpusID, "error", err)
			corpusID = ""
		}
	}
	corpusCreated := false
	if corpusID == "" {
		corpusID, err = o.provider.CreateCorpus(ctx, "chainalyzer-corpus")
		if err != nil {
			return "", "", errors.NewResourceSetupError("failed to create corpus", err)
		}
		corpusCreated = true
	}

	agentID = o.cfg.AgentID
	agentCreated := false
	if agentID != "" {
		if err := o.provider.VerifyAgent(ctx, agentID); err != nil {
			o.logger.Warnw("configured agent failed verification, recreating", "agent_id", agentID, "error", err)
			agentID = ""
		}
	}
	if agentID == "" {
		agentID, err = o.provider.CreateAgent(ctx, AgentInstructions, corpusID)
		if err != nil {
			return "", "", errors.NewResourceSetupError("failed to create agent", err)
		}
		agentCreated = true
	} else if corpusCreated {
		if err := o.provider.UpdateAgent(ctx, agentID, corpusID); err != nil {
			return "", "", errors.NewResourceSetupError("failed to point agent at new corpus", err)
		}
	}

	if (corpusCreated || agentCreated) && o.persistIDs != nil {
		if err := o.persistIDs(agentID, corpusID); err != nil {
			o.logger.Errorw("failed to persist provider resource ids", "error", err)
		}
	}
	return agentID, corpusID, nil
}

// prepareContext serializes the chain into JSON documents, uploads them and
// waits for ingestion. Documents that fail terminally are skipped; zero ready
// documents fails the stage.
func (o *Orchestrator) prepareContext(ctx context.Context, corpusID string, input RunInput) (docIDs []string, localFiles []string, err error) {
	docs := map[string][]byte{}

	chainDoc, err := json.MarshalIndent(map[string]any{
		"chain_hash":   input.Snapshot.ChainHash,
		"ticket_count": input.Snapshot.Count,
		"ticket_ids":   input.Snapshot.TicketIDs(),
	}, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize chain document: %w", err)
	}
	docs[fmt.Sprintf("chain_%s.json", input.Snapshot.ChainHash)] = chainDoc

	for id, rec := range input.Records {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			o.logger.Warnw("failed to serialize ticket document, skipping", "ticket_id", id, "error", err)
			continue
		}
		docs[fmt.Sprintf("ticket_%s.json", id)] = data
	}

	if o.cfg.WorkDir != "" {
		dir := filepath.Join(o.cfg.WorkDir, input.Snapshot.ChainHash)
		if mkErr := os.MkdirAll(dir, 0o755); mkErr == nil {
			for name, data := range docs {
				path := filepath.Join(dir, name)
				if wErr := os.WriteFile(path, data, 0o644); wErr == nil {
					localFiles = append(localFiles, path)
				}
			}
		}
	}

	ready := 0
	for name, data := range docs {
		if err := ctx.Err(); err != nil {
			return docIDs, localFiles, err
		}

		docID, err := o.provider.UploadDocument(ctx, name, data)
		if err != nil {
			o.logger.Warnw("document upload failed, skipping", "name", name, "error", err)
			continue
		}
		docIDs = append(docIDs, docID)

		if err := o.provider.Attach(ctx, corpusID, docID); err != nil {
			o.logger.Warnw("document attach failed, skipping", "name", name, "error", err)
			continue
		}

		status, err := o.awaitDocument(ctx, corpusID, docID)
		if err != nil {
			return docIDs, localFiles, err
		}
		switch status {
		case analysis.DocReady:
			ready++
		case analysis.DocFailed:
			o.logger.Warnw("document ingestion failed terminally, excluded from corpus", "name", name, "doc_id", docID)
		default:
			o.logger.Warnw("document still pending at timeout, excluded from corpus", "name", name, "doc_id", docID)
		}
	}

	if ready == 0 {
		return docIDs, localFiles, errors.NewResourceSetupError("no documents became searchable", nil)
	}
	o.logger.Infow("context prepared", "documents", len(docs), "ready", ready)
	return docIDs, localFiles, nil
}

func (o *Orchestrator) awaitDocument(ctx context.Context, corpusID, docID string) (analysis.DocStatus, error) {
	deadline := time.Now().Add(o.cfg.RequestTimeout)
	for {
		status, err := o.provider.PollStatus(ctx, corpusID, docID)
		if err != nil {
			o.logger.Warnw("document status poll failed", "doc_id", docID, "error", err)
		} else if status != analysis.DocPending {
			return status, nil
		}

		if time.Now().After(deadline) {
			return analysis.DocPending, nil
		}
		select {
		case <-ctx.Done():
			return analysis.DocPending, ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
	}
}

// analyzeUnits runs the per-pair and per-batch requests. Failures are
// recorded per unit and never abort the stage. With UnitConcurrency > 1 the
// requests run concurrently; aggregation is keyed by slot, so completion
// order does not matter.
func (o *Orchestrator) analyzeUnits(ctx context.Context, sessionID, agentID string, input RunInput) []analysis.UnitResult {
	type job struct {
		prompt    string
		primary   string
		related   string
		pairType  string
		ticketIDs []string
	}

	jobs := make([]job, 0, len(input.Pairs)+len(input.Batches))
	for _, pair := range input.Pairs {
		ids := []string{pair.PrimaryID}
		if pair.RelatedID != "" {
			ids = append(ids, pair.RelatedID)
		}
		jobs = append(jobs, job{
			prompt:    UnitPrompt(pair, o.cfg.ExcerptBudget),
			primary:   pair.PrimaryID,
			related:   pair.RelatedID,
			pairType:  string(pair.Type),
			ticketIDs: ids,
		})
	}
	for _, batch := range input.Batches {
		if len(batch) == 0 {
			continue
		}
		ids := make([]string, 0, len(batch))
		for _, rec := range batch {
			ids = append(ids, rec.ID)
		}
		jobs = append(jobs, job{
			prompt:    BatchPrompt(batch, o.cfg.ExcerptBudget),
			primary:   ids[0],
			pairType:  "batch",
			ticketIDs: ids,
		})
	}

	units := make([]analysis.UnitResult, len(jobs))
	run := func(slot int) {
		j := jobs[slot]
		unit := analysis.UnitResult{
			PrimaryTicketID: j.primary,
			RelatedTicketID: j.related,
			PairType:        j.pairType,
			Status:          analysis.UnitNotAttempted,
		}

		raw, err := o.ask(ctx, sessionID, agentID, j.prompt)
		if err != nil {
			if errors.IsProviderValidation(err) {
				unit.Status = analysis.UnitValidationError
				unit.Raw = errors.Details(err)
			} else {
				unit.Status = analysis.UnitTransportError
			}
			unit.Error = err.Error()
			o.logger.Warnw("unit analysis failed", "primary", j.primary, "error", err)
			units[slot] = unit
			return
		}

		issues, missing, err := analysis.ValidateUnitResponse(raw, j.ticketIDs)
		if err != nil {
			// Keep the raw response; a malformed answer is still evidence.
			unit.Status = analysis.UnitValidationError
			unit.Raw = raw
			unit.Error = err.Error()
			o.logger.Warnw("unit response failed validation", "primary", j.primary,
				"error", err, "raw", textutil.TruncateForLog(raw, 200))
			units[slot] = unit
			return
		}

		unit.Status = analysis.UnitOK
		unit.Raw = raw
		unit.Issues = issues
		unit.MissingInfo = missing
		units[slot] = unit
	}

	if o.cfg.UnitConcurrency > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.UnitConcurrency)
		for slot := range jobs {
			slot := slot
			g.Go(func() error {
				if gctx.Err() != nil {
					units[slot] = analysis.UnitResult{
						PrimaryTicketID: jobs[slot].primary,
						RelatedTicketID: jobs[slot].related,
						PairType:        jobs[slot].pairType,
						Status:          analysis.UnitNotAttempted,
						Error:           gctx.Err().Error(),
					}
					return nil
				}
				run(slot)
				return nil
			})
		}
		g.Wait()
		return units
	}

	for slot := range jobs {
		if ctx.Err() != nil {
			units[slot] = analysis.UnitResult{
				PrimaryTicketID: jobs[slot].primary,
				RelatedTicketID: jobs[slot].related,
				PairType:        jobs[slot].pairType,
				Status:          analysis.UnitNotAttempted,
				Error:           ctx.Err().Error(),
			}
			continue
		}
		run(slot)
	}
	return units
}

// ask submits one request and polls until completion. Transport errors are
// retried with exponential backoff up to the configured bound; a pending
// status is polled, never re-sent as a new request.
func (o *Orchestrator) ask(ctx context.Context, sessionID, agentID, text string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * o.cfg.RetryBackoff
			o.logger.Debugw("retrying provider request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", errors.NewProviderTransportError("cancelled while backing off", ctx.Err())
			case <-time.After(backoff):
			}
		}

		requestID, err := o.provider.Send(ctx, sessionID, agentID, text)
		if err != nil {
			lastErr = err
			if errors.IsProviderTransport(err) {
				continue
			}
			return "", err
		}

		response, err := o.awaitResult(ctx, sessionID, requestID)
		if err != nil {
			lastErr = err
			if errors.IsProviderTransport(err) {
				continue
			}
			return "", err
		}
		return response, nil
	}

	return "", errors.NewProviderTransportError(
		fmt.Sprintf("request failed after %d attempts", o.cfg.MaxRetries), lastErr)
}

func (o *Orchestrator) awaitResult(ctx context.Context, sessionID, requestID string) (string, error) {
	deadline := time.Now().Add(o.cfg.RequestTimeout)
	for {
		status, text, err := o.provider.PollResult(ctx, sessionID, requestID)
		if err != nil {
			return "", err
		}
		switch status {
		case analysis.RequestCompleted:
			return text, nil
		case analysis.RequestFailed:
			return "", errors.NewProviderTransportError("provider reported request failure", fmt.Errorf("status detail: %s", text))
		}

		if time.Now().After(deadline) {
			return "", errors.NewProviderTransportError(
				fmt.Sprintf("request still pending after %s", o.cfg.RequestTimeout), nil)
		}
		select {
		case <-ctx.Done():
			return "", errors.NewProviderTransportError("cancelled while polling", ctx.Err())
		case <-time.After(o.cfg.PollInterval):
		}
	}
}

// cleanup removes local temp documents and, when configured, purges uploaded
// remote documents. Best-effort: failures are logged, never escalated. It
// runs on success and failure alike, detached from the run's context so
// cancellation does not skip it.
func (o *Orchestrator) cleanup(corpusID string, docIDs, localFiles []string) {
	for _, path := range localFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			o.logger.Warnw("failed to remove temp document", "path", path, "error", err)
		}
	}

	if !o.cfg.PurgeRemote {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, docID := range docIDs {
		if err := o.provider.DetachDocument(ctx, corpusID, docID); err != nil {
			o.logger.Warnw("failed to detach remote document", "doc_id", docID, "error", err)
		}
		if err := o.provider.DeleteDocument(ctx, docID); err != nil {
			o.logger.Warnw("failed to delete remote document", "doc_id", docID, "error", err)
		}
	}
}

// writeArtifacts drops the per-unit results and issue index next to the run's
// temp documents for post-hoc inspection. Best-effort.
func (o *Orchestrator) writeArtifacts(chainHash string, out *RunOutput) {
	if o.cfg.WorkDir == "" {
		return
	}
	artifacts := map[string]any{
		"chain_hash": chainHash,
		"units":      out.Units,
		"issues":     out.Issues,
	}
	if out.FollowUp != "" {
		artifacts["follow_up"] = out.FollowUp
	}
	data, err := json.MarshalIndent(artifacts, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(o.cfg.WorkDir, fmt.Sprintf("units_%s.json", chainHash))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		o.logger.Warnw("failed to write unit artifacts", "path", path, "error", err)
	}
}
