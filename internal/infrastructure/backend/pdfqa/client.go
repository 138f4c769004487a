// Package pdfqa is the client of the document-intelligence backend that
// indexes PDFs and answers questions about them.
package pdfqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
	"github.com/kirillkom/pdfqa-gateway/internal/core/ports"
	"github.com/kirillkom/pdfqa-gateway/internal/core/validation"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/resilience"
)

const (
	DefaultTimeout = 10 * time.Minute

	snippetRunes = 100

	defaultExportName = "qa_export.pdf"
)

// CallObserver records the outcome and latency of every backend call.
type CallObserver interface {
	ObserveBackendCall(operation, outcome string, duration time.Duration)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	exec       *resilience.Executor
	exports    ports.LocalStore
	observer   CallObserver
	timeout    time.Duration
	now        func() time.Time
}

type Option func(*Client)

// WithExportStore sets where exported PDF bytes are written when the backend
// streams the document instead of naming a location.
func WithExportStore(store ports.LocalStore) Option {
	return func(c *Client) { c.exports = store }
}

func WithCallObserver(observer CallObserver) Option {
	return func(c *Client) { c.observer = observer }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func New(baseURL string, timeout time.Duration, exec *resilience.Executor, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		exec:       exec,
		timeout:    timeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call runs one backend operation. The timeout bounds the operation as a whole,
// retries and backoff included, not each attempt.
func (c *Client) call(ctx context.Context, operation string, idempotent bool, fn func(context.Context) error) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.exec.Execute(ctx, "backend_"+operation, fn, classifierFor(idempotent))
	if c.observer != nil {
		outcome := "ok"
		if err != nil {
			outcome = domain.KindOf(err)
		}
		c.observer.ObserveBackendCall(operation, outcome, time.Since(started))
	}
	if err != nil {
		attrs := []any{"operation", operation, "kind", domain.KindOf(err), "error", err}
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.Summary() != "" {
			attrs = append(attrs, "backend_error", statusErr.Summary())
		}
		slog.Warn("backend_call_failed", attrs...)
	}
	return err
}

func (c *Client) Initialize(ctx context.Context) (domain.BackendStatus, error) {
	var resp statusResponse
	err := c.call(ctx, "initialize", true, func(ctx context.Context) error {
		return c.postJSON(ctx, "/initialize", struct{}{}, &resp, "initialize")
	})
	if err != nil {
		return domain.BackendStatus{}, err
	}
	return c.acknowledged("initialize", resp, "success")
}

func (c *Client) ClearState(ctx context.Context) (domain.BackendStatus, error) {
	var resp statusResponse
	err := c.call(ctx, "clear", true, func(ctx context.Context) error {
		return c.postJSON(ctx, "/clear", struct{}{}, &resp, "clear")
	})
	if err != nil {
		return domain.BackendStatus{}, err
	}
	return c.acknowledged("clear", resp, "success")
}

func (c *Client) TestConnection(ctx context.Context) (domain.BackendStatus, error) {
	var resp statusResponse
	err := c.call(ctx, "health", true, func(ctx context.Context) error {
		return c.getJSON(ctx, "/health", &resp, "health")
	})
	if err != nil {
		return domain.BackendStatus{}, err
	}
	status, err := c.acknowledged("health", resp, "healthy", "success", "ok")
	if err != nil {
		return domain.BackendStatus{}, err
	}
	if status.Message == "" && resp.Version != "" {
		status.Message = "backend version " + resp.Version
	}
	return status, nil
}

// acknowledged checks the status field of a session-level reply.
func (c *Client) acknowledged(operation string, resp statusResponse, accepted ...string) (domain.BackendStatus, error) {
	if resp.Status == nil {
		return domain.BackendStatus{}, domain.NewError(domain.ErrResponseFormat, operation, "response has no status field")
	}
	status := *resp.Status
	ok := false
	for _, want := range accepted {
		if strings.EqualFold(status, want) {
			ok = true
			break
		}
	}
	if !ok {
		return domain.BackendStatus{}, domain.NewError(domain.ErrBackendRejected, operation,
			fmt.Sprintf("backend reported status %q: %s", status, resp.Message))
	}

	at, parsed := parseBackendTime(resp.at())
	if !parsed {
		at = c.now().UTC()
	}
	return domain.BackendStatus{Status: status, Message: resp.Message, At: at}, nil
}

// Process sends the stored paths for indexing. Partial success is a success;
// a report where nothing succeeded is a rejection.
func (c *Client) Process(ctx context.Context, paths []string) (domain.ProcessReport, error) {
	if len(paths) == 0 {
		return domain.ProcessReport{}, domain.NewError(domain.ErrValidation, "process", "no paths to process")
	}

	var resp processResponse
	err := c.call(ctx, "process", false, func(ctx context.Context) error {
		return c.postJSON(ctx, "/process", processRequest{PdfPaths: paths}, &resp, "process")
	})
	if err != nil {
		return domain.ProcessReport{}, err
	}
	if resp.Status == nil {
		return domain.ProcessReport{}, domain.NewError(domain.ErrResponseFormat, "process", "response has no status field")
	}

	report := domain.ProcessReport{
		Status:     *resp.Status,
		TotalFiles: int(resp.TotalFiles),
		Successful: int(resp.Successful),
		Failed:     int(resp.Failed),
		Results:    make([]domain.ProcessFileResult, 0, len(resp.Results)),
	}
	if at, ok := parseBackendTime(resp.ProcessedAt); ok {
		report.ProcessedAt = at
	} else {
		report.ProcessedAt = c.now().UTC()
	}
	var fileErrors []string
	for _, r := range resp.Results {
		report.Results = append(report.Results, domain.ProcessFileResult{
			Path:         r.PdfPath,
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName,
			Status:       r.Status,
			Pages:        int(r.TotalPages),
			Chunks:       int(r.ChunksCount),
			Error:        r.Error,
		})
		if r.Error != "" {
			fileErrors = append(fileErrors, fmt.Sprintf("%s: %s", filepath.Base(r.PdfPath), r.Error))
		}
	}

	if !strings.EqualFold(report.Status, "completed") && !strings.EqualFold(report.Status, "success") {
		return domain.ProcessReport{}, domain.NewError(domain.ErrBackendRejected, "process",
			fmt.Sprintf("backend reported status %q", report.Status))
	}
	if report.Successful == 0 && report.Failed > 0 {
		return domain.ProcessReport{}, domain.NewError(domain.ErrBackendRejected, "process",
			fmt.Sprintf("no document was processed: %s", strings.Join(fileErrors, "; ")))
	}
	return report, nil
}

func (c *Client) Ask(ctx context.Context, question string) (domain.QuestionAnswerResult, error) {
	var resp askResponse
	err := c.call(ctx, "ask", true, func(ctx context.Context) error {
		return c.postJSON(ctx, "/ask", askRequest{Question: question}, &resp, "ask")
	})
	if err != nil {
		return domain.QuestionAnswerResult{}, err
	}
	if resp.Answer == nil {
		return domain.QuestionAnswerResult{}, domain.NewError(domain.ErrResponseFormat, "ask", "response has no answer field")
	}

	result := domain.QuestionAnswerResult{
		Answer:  *resp.Answer,
		Sources: make([]string, 0, len(resp.RelevantChunks)),
	}
	for _, chunk := range resp.RelevantChunks {
		if text := strings.TrimSpace(chunk.body()); text != "" {
			result.Sources = append(result.Sources, snippet(text))
		}
	}
	if len(result.Sources) == 0 {
		for _, source := range resp.Sources {
			if source = strings.TrimSpace(source); source != "" {
				result.Sources = append(result.Sources, source)
			}
		}
	}
	if resp.Confidence != nil {
		result.Confidence = min(max(*resp.Confidence, 0), 1)
	}
	if at, ok := parseBackendTime(resp.AnsweredAt); ok {
		result.Timestamp = at
	} else {
		result.Timestamp = c.now().UTC()
	}
	return result, nil
}

func snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetRunes]) + "..."
}

func (c *Client) ListDocuments(ctx context.Context) ([]domain.ProcessedDocument, error) {
	var resp documentsResponse
	err := c.call(ctx, "documents", true, func(ctx context.Context) error {
		return c.getJSON(ctx, "/documents", &resp, "documents")
	})
	if err != nil {
		return nil, err
	}
	if resp.Documents == nil {
		return nil, domain.NewError(domain.ErrResponseFormat, "documents", "response has no documents field")
	}

	out := make([]domain.ProcessedDocument, 0, len(*resp.Documents))
	for _, record := range *resp.Documents {
		doc := domain.ProcessedDocument{
			ID:         record.DocumentID,
			FileName:   record.DocumentName,
			PageCount:  int(record.TotalPages),
			ChunkCount: int(record.ChunksCount),
			Status:     record.Status,
		}
		processedAt := record.ProcessedAt
		if source, ok := resp.DocumentMetadata[record.DocumentName]; ok {
			doc.Path = source.FullPath
			if doc.PageCount == 0 {
				doc.PageCount = int(source.TotalPages)
			}
			if processedAt == "" || strings.EqualFold(processedAt, "unknown") {
				processedAt = source.ProcessedAt
			}
		}
		if at, ok := parseBackendTime(processedAt); ok {
			doc.ProcessedAt = at
		}
		out = append(out, doc)
	}
	return out, nil
}

// Export asks the backend to render the history. A JSON reply names the
// location; a document reply is stored through the export store.
func (c *Client) Export(ctx context.Context, history []domain.QAEntry, outputPath string) (string, error) {
	payload := exportRequest{
		QAHistory:  make([]exportEntry, 0, len(history)),
		OutputPath: outputPath,
	}
	for _, entry := range history {
		payload.QAHistory = append(payload.QAHistory, exportEntry{
			Question:   entry.Question,
			Answer:     entry.Answer,
			Sources:    entry.Sources,
			Confidence: entry.Confidence,
			Timestamp:  entry.AskedAt.UTC().Format(time.RFC3339),
		})
	}

	var raw rawResponse
	err := c.call(ctx, "export", false, func(ctx context.Context) error {
		var err error
		raw, err = c.postRaw(ctx, "/export", payload, "export")
		return err
	})
	if err != nil {
		return "", err
	}

	if raw.isJSON() {
		var resp exportResponse
		if err := json.Unmarshal(raw.Body, &resp); err != nil {
			return "", domain.WrapError(domain.ErrResponseFormat, "export", err)
		}
		location := resp.location()
		if location == "" {
			return "", domain.NewError(domain.ErrResponseFormat, "export", "response names no export location")
		}
		return location, nil
	}
	return c.storeExport(ctx, raw.Body, outputPath)
}

func (c *Client) storeExport(ctx context.Context, body []byte, outputPath string) (string, error) {
	if len(body) == 0 {
		return "", domain.NewError(domain.ErrResponseFormat, "export", "backend returned an empty document")
	}
	if c.exports == nil {
		return "", domain.NewError(domain.ErrIO, "export", "no export directory configured for document replies")
	}

	if strings.TrimSpace(outputPath) == "" {
		stored, err := c.exports.Save(ctx, validation.UniqueStorageName(defaultExportName), bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		return stored.Path, nil
	}

	// A requested name that is already taken gets a unique suffix; earlier
	// exports are never overwritten.
	name := validation.SanitizeName(filepath.Base(strings.ReplaceAll(outputPath, "\\", "/")))
	stored, err := c.exports.Save(ctx, name, bytes.NewReader(body))
	if errors.Is(err, fs.ErrExist) {
		stored, err = c.exports.Save(ctx, validation.UniqueStorageName(name), bytes.NewReader(body))
	}
	if err != nil {
		return "", err
	}
	return stored.Path, nil
}
