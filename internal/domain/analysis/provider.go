package analysis

import "context"

// DocStatus is the ingestion state of one document in a corpus.
type DocStatus string

const (
	DocPending DocStatus = "pending"
	DocReady   DocStatus = "ready"
	DocFailed  DocStatus = "failed"
)

// RequestStatus is the state of one in-flight summarization request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

// Summarizer is the capability set the orchestrator needs from an external
// summarization provider: make a corpus of documents searchable by a
// conversational session, then answer questions against it. Concrete adapters
// resolve vendor quirks; the pipeline never branches on vendor API shapes.
//
// Transport failures surface as provider_transport errors so the orchestrator
// can retry them; everything else is terminal for the individual call.
type Summarizer interface {
	CreateCorpus(ctx context.Context, name string) (corpusID string, err error)
	VerifyCorpus(ctx context.Context, corpusID string) error
	UploadDocument(ctx context.Context, name string, data []byte) (docID string, err error)
	Attach(ctx context.Context, corpusID, docID string) error
	PollStatus(ctx context.Context, corpusID, docID string) (DocStatus, error)

	CreateAgent(ctx context.Context, instructions, corpusID string) (agentID string, err error)
	VerifyAgent(ctx context.Context, agentID string) error
	UpdateAgent(ctx context.Context, agentID, corpusID string) error

	CreateSession(ctx context.Context) (sessionID string, err error)
	Send(ctx context.Context, sessionID, agentID, text string) (requestID string, err error)
	PollResult(ctx context.Context, sessionID, requestID string) (RequestStatus, string, error)

	DetachDocument(ctx context.Context, corpusID, docID string) error
	DeleteDocument(ctx context.Context, docID string) error
	DeleteCorpus(ctx context.Context, corpusID string) error
}
