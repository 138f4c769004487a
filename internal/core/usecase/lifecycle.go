package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
	"github.com/kirillkom/pdfqa-gateway/internal/core/ports"
	"github.com/kirillkom/pdfqa-gateway/internal/core/validation"
)

type LifecycleOptions struct {
	Inspector   ports.PDFInspector
	Events      ports.EventPublisher
	Observer    ports.LifecycleObserver
	Spreadsheet ports.HistoryExporter
	Logger      *slog.Logger

	// StrictPDF rejects uploads that fail structural PDF validation.
	StrictPDF bool
	// DeleteConcurrency bounds parallel deletions during cleanup.
	DeleteConcurrency int

	Clock func() time.Time
}

// LifecycleUseCase owns one session: the admitted file set, its lifecycle
// state and the ordering of remote and local side effects.
type LifecycleUseCase struct {
	store   ports.LocalStore
	remote  ports.RemoteSession
	history ports.HistoryStore

	inspector         ports.PDFInspector
	events            ports.EventPublisher
	spreadsheet       ports.HistoryExporter
	observer          ports.LifecycleObserver
	logger            *slog.Logger
	strictPDF         bool
	deleteConcurrency int
	now               func() time.Time

	mu       sync.RWMutex
	state    domain.LifecycleState
	admitted []domain.UploadedFile

	// snapshot mirrors state and admitted for readers that must not queue
	// behind a transition waiting on the backend.
	snapshot atomic.Pointer[sessionSnapshot]
}

type sessionSnapshot struct {
	state    domain.LifecycleState
	admitted []domain.UploadedFile
}

func NewLifecycleUseCase(
	store ports.LocalStore,
	remote ports.RemoteSession,
	history ports.HistoryStore,
	opts LifecycleOptions,
) *LifecycleUseCase {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	concurrency := opts.DeleteConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	uc := &LifecycleUseCase{
		store:             store,
		remote:            remote,
		history:           history,
		inspector:         opts.Inspector,
		events:            opts.Events,
		spreadsheet:       opts.Spreadsheet,
		observer:          opts.Observer,
		logger:            logger,
		strictPDF:         opts.StrictPDF,
		deleteConcurrency: concurrency,
		now:               clock,
		state:             domain.StateEmpty,
	}
	uc.publishSnapshot()
	return uc
}

func (uc *LifecycleUseCase) State() domain.LifecycleState {
	return uc.snapshot.Load().state
}

func (uc *LifecycleUseCase) Admitted() []domain.UploadedFile {
	admitted := uc.snapshot.Load().admitted
	out := make([]domain.UploadedFile, len(admitted))
	copy(out, admitted)
	return out
}

// publishSnapshot must be called with mu held for writing.
func (uc *LifecycleUseCase) publishSnapshot() {
	admitted := make([]domain.UploadedFile, len(uc.admitted))
	copy(admitted, uc.admitted)
	uc.snapshot.Store(&sessionSnapshot{state: uc.state, admitted: admitted})
}

func (uc *LifecycleUseCase) Health(ctx context.Context) domain.Result[domain.SessionHealth] {
	if err := ctx.Err(); err != nil {
		return domain.Fail[domain.SessionHealth](domain.ContextError("health", err))
	}
	snap := uc.snapshot.Load()
	return domain.Ok(domain.SessionHealth{
		Status:        "ok",
		State:         snap.state,
		AdmittedFiles: len(snap.admitted),
		CheckedAt:     uc.now().UTC(),
	})
}

// Initialize prepares a fresh backend session. It is refused once documents
// are processed because the backend would drop the index the state relies on.
func (uc *LifecycleUseCase) Initialize(ctx context.Context) domain.Result[domain.BackendStatus] {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.state == domain.StateProcessed {
		return domain.Fail[domain.BackendStatus](domain.NewError(domain.ErrInvalidState, "initialize",
			"documents are processed; run cleanup before re-initializing the backend"))
	}

	status, err := uc.remote.Initialize(ctx)
	if err != nil {
		return domain.Fail[domain.BackendStatus](fmt.Errorf("initialize backend session: %w", err))
	}
	if err := uc.history.Clear(ctx); err != nil {
		uc.logger.Warn("history_clear_failed", "operation", "initialize", "error", err)
	}
	return domain.Ok(status)
}

// AdmitFiles validates and stores each candidate independently. The call
// fails only when no candidate could be admitted.
func (uc *LifecycleUseCase) AdmitFiles(ctx context.Context, candidates []domain.UploadCandidate) domain.Result[domain.AdmissionReport] {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.state == domain.StateProcessed {
		return domain.Fail[domain.AdmissionReport](domain.NewError(domain.ErrInvalidState, "admit files",
			"documents are already processed; run cleanup before adding files"))
	}
	if len(candidates) == 0 {
		return domain.Fail[domain.AdmissionReport](domain.NewError(domain.ErrValidation, "admit files", "no files provided"))
	}

	report := domain.AdmissionReport{Admitted: make([]domain.UploadedFile, 0, len(candidates))}
	failures := make([]error, 0)
	for _, candidate := range candidates {
		file, err := uc.admitOne(ctx, candidate)
		if err != nil {
			uc.logger.Warn("upload_rejected", "file", candidate.Name, "kind", domain.KindOf(err), "error", err)
			report.Rejected = append(report.Rejected, domain.Rejection{Name: candidate.Name, Reason: err.Error()})
			failures = append(failures, err)
			if uc.observer != nil {
				uc.observer.ObserveUploadRejected(err)
			}
			continue
		}
		report.Admitted = append(report.Admitted, file)
	}

	if len(report.Admitted) == 0 {
		return domain.Fail[domain.AdmissionReport](fmt.Errorf("admit files: none of %d files admitted: %w",
			len(candidates), errors.Join(failures...)))
	}

	uc.admitted = append(uc.admitted, report.Admitted...)
	names := make([]string, 0, len(report.Admitted))
	for _, file := range report.Admitted {
		names = append(names, file.StoragePath)
	}
	uc.transition(ctx, domain.StateFilesAdmitted, domain.EventFilesAdmitted, names)

	report.State = uc.state
	return domain.Ok(report)
}

func (uc *LifecycleUseCase) admitOne(ctx context.Context, candidate domain.UploadCandidate) (domain.UploadedFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.UploadedFile{}, domain.ContextError("admit "+candidate.Name, err)
	}
	if err := validation.CheckUpload(candidate); err != nil {
		return domain.UploadedFile{}, err
	}
	if candidate.Body == nil {
		return domain.UploadedFile{}, domain.NewError(domain.ErrValidation, "admit "+candidate.Name, "file has no content")
	}

	key := validation.UniqueStorageName(candidate.Name)
	body := io.LimitReader(candidate.Body, validation.MaxUploadBytes+1)
	stored, err := uc.store.Save(ctx, key, body)
	if err != nil {
		return domain.UploadedFile{}, domain.ContextError("admit "+candidate.Name, err)
	}

	if stored.Size == 0 || stored.Size > validation.MaxUploadBytes {
		uc.discard(ctx, stored.Path)
		return domain.UploadedFile{}, domain.NewError(domain.ErrValidation, "admit "+candidate.Name,
			fmt.Sprintf("received %d bytes, allowed 1..%d", stored.Size, validation.MaxUploadBytes))
	}

	pages, err := uc.inspect(ctx, stored.Path)
	if err != nil {
		uc.discard(ctx, stored.Path)
		return domain.UploadedFile{}, domain.WrapError(domain.ErrValidation, "admit "+candidate.Name, err)
	}

	return domain.UploadedFile{
		ID:           uuid.NewString(),
		OriginalName: candidate.Name,
		StoragePath:  stored.Path,
		Size:         stored.Size,
		ContentType:  candidate.ContentType,
		Pages:        pages,
		CreatedAt:    uc.now().UTC(),
	}, nil
}

// inspect returns the page count. Only strict mode turns an unreadable PDF
// into an error.
func (uc *LifecycleUseCase) inspect(ctx context.Context, path string) (int, error) {
	if uc.inspector == nil {
		return 0, nil
	}
	if uc.strictPDF {
		if err := uc.inspector.Validate(ctx, path); err != nil {
			return 0, err
		}
	}
	pages, err := uc.inspector.PageCount(ctx, path)
	if err != nil {
		if uc.strictPDF {
			return 0, err
		}
		uc.logger.Warn("pdf_inspection_failed", "path", path, "error", err)
		return 0, nil
	}
	return pages, nil
}

func (uc *LifecycleUseCase) discard(ctx context.Context, path string) {
	if _, err := uc.store.Delete(context.WithoutCancel(ctx), path); err != nil {
		uc.logger.Warn("discard_rejected_upload_failed", "path", path, "error", err)
	}
}

// ProcessAdmitted asks the backend to index every admitted file. State is
// left untouched when the backend call fails.
func (uc *LifecycleUseCase) ProcessAdmitted(ctx context.Context) domain.Result[domain.ProcessReport] {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	switch uc.state {
	case domain.StateEmpty:
		return domain.Fail[domain.ProcessReport](domain.NewError(domain.ErrInvalidState, "process documents",
			"no files admitted; upload PDFs first"))
	case domain.StateProcessed:
		return domain.Fail[domain.ProcessReport](domain.NewError(domain.ErrInvalidState, "process documents",
			"documents are already processed; run cleanup to start over"))
	}

	paths := make([]string, 0, len(uc.admitted))
	for _, file := range uc.admitted {
		paths = append(paths, file.StoragePath)
	}

	report, err := uc.remote.Process(ctx, paths)
	if err != nil {
		return domain.Fail[domain.ProcessReport](fmt.Errorf("process admitted files: %w", err))
	}

	uc.transition(ctx, domain.StateProcessed, domain.EventDocumentsProcessed, paths)
	return domain.Ok(report)
}

func (uc *LifecycleUseCase) AskQuestion(ctx context.Context, question string) domain.Result[domain.QuestionAnswerResult] {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	if uc.state != domain.StateProcessed {
		return domain.Fail[domain.QuestionAnswerResult](domain.NewError(domain.ErrInvalidState, "ask question",
			fmt.Sprintf("documents must be processed before asking, current state %s", uc.state)))
	}
	if err := validation.CheckQuestion(question); err != nil {
		return domain.Fail[domain.QuestionAnswerResult](err)
	}

	answer, err := uc.remote.Ask(ctx, question)
	if err != nil {
		return domain.Fail[domain.QuestionAnswerResult](fmt.Errorf("ask question: %w", err))
	}

	entry := domain.QAEntry{
		ID:         uuid.NewString(),
		Question:   question,
		Answer:     answer.Answer,
		Sources:    answer.Sources,
		Confidence: answer.Confidence,
		AskedAt:    answer.Timestamp,
	}
	if err := uc.history.Append(ctx, entry); err != nil {
		uc.logger.Warn("history_append_failed", "error", err)
	}
	return domain.Ok(answer)
}

func (uc *LifecycleUseCase) ListDocuments(ctx context.Context) domain.Result[[]domain.ProcessedDocument] {
	docs, err := uc.remote.ListDocuments(ctx)
	if err != nil {
		return domain.Fail[[]domain.ProcessedDocument](fmt.Errorf("list processed documents: %w", err))
	}
	return domain.Ok(docs)
}

func (uc *LifecycleUseCase) ListFiles(ctx context.Context) domain.Result[[]domain.StoredFile] {
	files, err := uc.store.Enumerate(ctx)
	if err != nil {
		return domain.Fail[[]domain.StoredFile](fmt.Errorf("list uploaded files: %w", err))
	}
	return domain.Ok(files)
}

func (uc *LifecycleUseCase) History(ctx context.Context) domain.Result[[]domain.QAEntry] {
	entries, err := uc.history.List(ctx)
	if err != nil {
		return domain.Fail[[]domain.QAEntry](fmt.Errorf("read question history: %w", err))
	}
	return domain.Ok(entries)
}

// Export forwards the question/answer history to the backend for rendering.
func (uc *LifecycleUseCase) Export(ctx context.Context, outputPath string) domain.Result[domain.ExportResult] {
	entries, err := uc.history.List(ctx)
	if err != nil {
		return domain.Fail[domain.ExportResult](fmt.Errorf("export history: %w", err))
	}
	if len(entries) == 0 {
		return domain.Fail[domain.ExportResult](domain.NewError(domain.ErrInvalidState, "export history", "no questions have been answered yet"))
	}

	location, err := uc.remote.Export(ctx, entries, outputPath)
	if err != nil {
		return domain.Fail[domain.ExportResult](fmt.Errorf("export history: %w", err))
	}
	return domain.Ok(domain.ExportResult{Location: location, Entries: len(entries)})
}

// ExportSpreadsheet renders the history locally and returns the number of
// entries written.
func (uc *LifecycleUseCase) ExportSpreadsheet(ctx context.Context, w io.Writer) domain.Result[int] {
	if uc.spreadsheet == nil {
		return domain.Fail[int](domain.NewError(domain.ErrInvalidState, "export spreadsheet", "spreadsheet export is not configured"))
	}
	entries, err := uc.history.List(ctx)
	if err != nil {
		return domain.Fail[int](fmt.Errorf("export spreadsheet: %w", err))
	}
	if len(entries) == 0 {
		return domain.Fail[int](domain.NewError(domain.ErrInvalidState, "export spreadsheet", "no questions have been answered yet"))
	}
	if err := uc.spreadsheet.Write(w, entries); err != nil {
		return domain.Fail[int](domain.WrapError(domain.ErrIO, "export spreadsheet", err))
	}
	return domain.Ok(len(entries))
}

func (uc *LifecycleUseCase) TestConnection(ctx context.Context) domain.Result[domain.BackendStatus] {
	return domain.From(uc.remote.TestConnection(ctx))
}

// DeleteFile removes one admitted or leftover file. The admitted set is frozen
// after processing.
func (uc *LifecycleUseCase) DeleteFile(ctx context.Context, name string) domain.Result[string] {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.state == domain.StateProcessed {
		return domain.Fail[string](domain.NewError(domain.ErrInvalidState, "delete file",
			"documents are processed; run cleanup to remove files"))
	}

	removed, err := uc.store.Delete(ctx, name)
	if err != nil {
		return domain.Fail[string](err)
	}

	kept := uc.admitted[:0]
	for _, file := range uc.admitted {
		if file.StoragePath != removed {
			kept = append(kept, file)
		}
	}
	uc.admitted = kept

	next := uc.state
	if next == domain.StateFilesAdmitted && len(uc.admitted) == 0 {
		next = domain.StateEmpty
	}
	uc.transition(ctx, next, domain.EventFileDeleted, []string{removed})
	return domain.Ok(removed)
}

// transition must be called with mu held for writing.
func (uc *LifecycleUseCase) transition(ctx context.Context, to domain.LifecycleState, eventType domain.EventType, files []string) {
	from := uc.state
	uc.state = to
	uc.publishSnapshot()
	if from != to {
		uc.logger.Info("lifecycle_transition", "from", from, "to", to, "event", eventType)
		if uc.observer != nil {
			uc.observer.ObserveTransition(from, to)
		}
	}
	if uc.events == nil {
		return
	}
	event := domain.LifecycleEvent{Type: eventType, From: from, To: to, Files: files, At: uc.now().UTC()}
	if err := uc.events.PublishLifecycleEvent(context.WithoutCancel(ctx), event); err != nil {
		uc.logger.Warn("lifecycle_event_publish_failed", "event", eventType, "error", err)
	}
}
