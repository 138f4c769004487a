package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

// LocalStore persists uploaded files under one managed root.
type LocalStore interface {
	Save(ctx context.Context, key string, data io.Reader) (domain.StoredFile, error)
	Enumerate(ctx context.Context) ([]domain.StoredFile, error)
	Delete(ctx context.Context, pathOrName string) (string, error)
}

// RemoteSession is the request/response channel to the document-intelligence
// backend that indexes documents and answers questions.
type RemoteSession interface {
	Initialize(ctx context.Context) (domain.BackendStatus, error)
	Process(ctx context.Context, paths []string) (domain.ProcessReport, error)
	Ask(ctx context.Context, question string) (domain.QuestionAnswerResult, error)
	ListDocuments(ctx context.Context) ([]domain.ProcessedDocument, error)
	ClearState(ctx context.Context) (domain.BackendStatus, error)
	Export(ctx context.Context, history []domain.QAEntry, outputPath string) (string, error)
	TestConnection(ctx context.Context) (domain.BackendStatus, error)
}

// HistoryStore keeps the question/answer history of the current session.
type HistoryStore interface {
	Append(ctx context.Context, entry domain.QAEntry) error
	List(ctx context.Context) ([]domain.QAEntry, error)
	Clear(ctx context.Context) error
}

// PDFInspector reads structural facts from a stored PDF.
type PDFInspector interface {
	PageCount(ctx context.Context, path string) (int, error)
	Validate(ctx context.Context, path string) error
}

// EventPublisher announces lifecycle transitions to interested consumers.
type EventPublisher interface {
	PublishLifecycleEvent(ctx context.Context, event domain.LifecycleEvent) error
}

// HistoryExporter renders the question/answer history into a document.
type HistoryExporter interface {
	Write(w io.Writer, entries []domain.QAEntry) error
}
