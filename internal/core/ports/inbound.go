package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

// SessionLifecycle is the inbound contract of the document lifecycle
// orchestrator. Every operation reports its outcome as a Result.
type SessionLifecycle interface {
	Initialize(ctx context.Context) domain.Result[domain.BackendStatus]
	AdmitFiles(ctx context.Context, candidates []domain.UploadCandidate) domain.Result[domain.AdmissionReport]
	ProcessAdmitted(ctx context.Context) domain.Result[domain.ProcessReport]
	AskQuestion(ctx context.Context, question string) domain.Result[domain.QuestionAnswerResult]
	ListDocuments(ctx context.Context) domain.Result[[]domain.ProcessedDocument]
	Export(ctx context.Context, outputPath string) domain.Result[domain.ExportResult]
	Cleanup(ctx context.Context, scope domain.CleanupScope) domain.Result[domain.CleanupReport]
	ListFiles(ctx context.Context) domain.Result[[]domain.StoredFile]
	DeleteFile(ctx context.Context, name string) domain.Result[string]
	TestConnection(ctx context.Context) domain.Result[domain.BackendStatus]
	Health(ctx context.Context) domain.Result[domain.SessionHealth]
	State() domain.LifecycleState
	Admitted() []domain.UploadedFile
}

// HistoryReader exposes the question/answer history for local exports.
type HistoryReader interface {
	History(ctx context.Context) domain.Result[[]domain.QAEntry]
	ExportSpreadsheet(ctx context.Context, w io.Writer) domain.Result[int]
}
