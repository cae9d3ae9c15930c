// Package provider adapts vendor summarization APIs to the capability set the
// analysis pipeline needs. The pipeline itself never imports a vendor SDK.
package provider

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/shared/errors"
	"chainalyzer/internal/shared/logger"
)

// OpenAISummarizer maps the pipeline's corpus/document/session/agent model
// onto vector stores, files, threads and assistants.
type OpenAISummarizer struct {
	client openai.Client
	model  string
	logger logger.Interface
}

func NewOpenAISummarizer(apiKey, model string, log logger.Interface) *OpenAISummarizer {
	return &OpenAISummarizer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: log,
	}
}

var _ analysis.Summarizer = (*OpenAISummarizer)(nil)

func (s *OpenAISummarizer) CreateCorpus(ctx context.Context, name string) (string, error) {
	store, err := s.client.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name: openai.String(name),
	})
	if err != nil {
		return "", errors.NewProviderTransportError("failed to create vector store", err)
	}
	return store.ID, nil
}

func (s *OpenAISummarizer) VerifyCorpus(ctx context.Context, corpusID string) error {
	if _, err := s.client.VectorStores.Get(ctx, corpusID); err != nil {
		return errors.NewProviderTransportError("vector store verification failed", err)
	}
	return nil
}

func (s *OpenAISummarizer) UploadDocument(ctx context.Context, name string, data []byte) (string, error) {
	file, err := s.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(data), name, "application/json"),
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return "", errors.NewProviderTransportError("failed to upload document", err)
	}
	return file.ID, nil
}

func (s *OpenAISummarizer) Attach(ctx context.Context, corpusID, docID string) error {
	_, err := s.client.VectorStores.Files.New(ctx, corpusID, openai.VectorStoreFileNewParams{
		FileID: docID,
	})
	if err != nil {
		return errors.NewProviderTransportError("failed to attach document to vector store", err)
	}
	return nil
}

func (s *OpenAISummarizer) PollStatus(ctx context.Context, corpusID, docID string) (analysis.DocStatus, error) {
	file, err := s.client.VectorStores.Files.Get(ctx, corpusID, docID)
	if err != nil {
		return analysis.DocPending, errors.NewProviderTransportError("failed to poll document status", err)
	}
	switch string(file.Status) {
	case "completed":
		return analysis.DocReady, nil
	case "failed", "cancelled":
		return analysis.DocFailed, nil
	default:
		return analysis.DocPending, nil
	}
}

func (s *OpenAISummarizer) CreateAgent(ctx context.Context, instructions, corpusID string) (string, error) {
	assistant, err := s.client.Beta.Assistants.New(ctx, openai.BetaAssistantNewParams{
		Model:        s.model,
		Name:         openai.String("chain-analyst"),
		Instructions: openai.String(instructions),
		Tools: []openai.AssistantToolUnionParam{
			{OfFileSearch: &openai.FileSearchToolParam{}},
		},
		ToolResources: openai.BetaAssistantNewParamsToolResources{
			FileSearch: openai.BetaAssistantNewParamsToolResourcesFileSearch{
				VectorStoreIDs: []string{corpusID},
			},
		},
	})
	if err != nil {
		return "", errors.NewProviderTransportError("failed to create assistant", err)
	}
	return assistant.ID, nil
}

func (s *OpenAISummarizer) VerifyAgent(ctx context.Context, agentID string) error {
	if _, err := s.client.Beta.Assistants.Get(ctx, agentID); err != nil {
		return errors.NewProviderTransportError("assistant verification failed", err)
	}
	return nil
}

func (s *OpenAISummarizer) UpdateAgent(ctx context.Context, agentID, corpusID string) error {
	_, err := s.client.Beta.Assistants.Update(ctx, agentID, openai.BetaAssistantUpdateParams{
		ToolResources: openai.BetaAssistantUpdateParamsToolResources{
			FileSearch: openai.BetaAssistantUpdateParamsToolResourcesFileSearch{
				VectorStoreIDs: []string{corpusID},
			},
		},
	})
	if err != nil {
		return errors.NewProviderTransportError("failed to update assistant", err)
	}
	return nil
}

func (s *OpenAISummarizer) CreateSession(ctx context.Context) (string, error) {
	thread, err := s.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", errors.NewProviderTransportError("failed to create thread", err)
	}
	return thread.ID, nil
}

func (s *OpenAISummarizer) Send(ctx context.Context, sessionID, agentID, text string) (string, error) {
	_, err := s.client.Beta.Threads.Messages.New(ctx, sessionID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return "", errors.NewProviderTransportError("failed to post message", err)
	}

	run, err := s.client.Beta.Threads.Runs.New(ctx, sessionID, openai.BetaThreadRunNewParams{
		AssistantID: agentID,
	})
	if err != nil {
		return "", errors.NewProviderTransportError("failed to start run", err)
	}
	return run.ID, nil
}

func (s *OpenAISummarizer) PollResult(ctx context.Context, sessionID, requestID string) (analysis.RequestStatus, string, error) {
	run, err := s.client.Beta.Threads.Runs.Get(ctx, sessionID, requestID)
	if err != nil {
		return analysis.RequestPending, "", errors.NewProviderTransportError("failed to poll run", err)
	}

	switch string(run.Status) {
	case "completed":
		text, err := s.latestAssistantMessage(ctx, sessionID)
		if err != nil {
			return analysis.RequestPending, "", err
		}
		return analysis.RequestCompleted, text, nil
	case "failed", "cancelled", "expired", "incomplete":
		return analysis.RequestFailed, string(run.Status), nil
	default:
		// queued, in_progress, requires_action: keep polling.
		return analysis.RequestPending, "", nil
	}
}

func (s *OpenAISummarizer) latestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	page, err := s.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(1),
	})
	if err != nil {
		return "", errors.NewProviderTransportError("failed to list messages", err)
	}
	if len(page.Data) == 0 {
		return "", errors.NewProviderValidationError("run completed but thread has no messages", "")
	}

	var buf bytes.Buffer
	for _, content := range page.Data[0].Content {
		if content.Text.Value != "" {
			buf.WriteString(content.Text.Value)
		}
	}
	if buf.Len() == 0 {
		return "", errors.NewProviderValidationError("run completed but message carries no text", "")
	}
	return buf.String(), nil
}

func (s *OpenAISummarizer) DetachDocument(ctx context.Context, corpusID, docID string) error {
	if _, err := s.client.VectorStores.Files.Delete(ctx, corpusID, docID); err != nil {
		return errors.NewProviderTransportError("failed to detach document", err)
	}
	return nil
}

func (s *OpenAISummarizer) DeleteDocument(ctx context.Context, docID string) error {
	if _, err := s.client.Files.Delete(ctx, docID); err != nil {
		return errors.NewProviderTransportError("failed to delete file", err)
	}
	return nil
}

func (s *OpenAISummarizer) DeleteCorpus(ctx context.Context, corpusID string) error {
	if _, err := s.client.VectorStores.Delete(ctx, corpusID); err != nil {
		return errors.NewProviderTransportError("failed to delete vector store", err)
	}
	return nil
}

// Name labels provider-generated artifacts for debugging.
func (s *OpenAISummarizer) Name() string {
	return fmt.Sprintf("openai/%s", s.model)
}
