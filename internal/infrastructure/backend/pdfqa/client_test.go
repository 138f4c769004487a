package pdfqa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/resilience"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/storage/localfs"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, 5*time.Second, testExecutor(), opts...)
}

func TestProcessSendsPathsAndAcceptsPartialSuccess(t *testing.T) {
	var captured processRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/process" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"status": "completed", "total_files": 2, "successful": 1, "failed": 1,
			"results": [
				{"pdf_path": "/up/a.pdf", "document_id": "doc_1", "document_name": "a.pdf", "status": "success", "chunks_count": 12, "total_pages": "Unknown"},
				{"pdf_path": "/up/b.pdf", "status": "error", "error": "No text could be extracted from the PDF"}
			],
			"processed_at": "2026-02-03T10:11:12.123456"
		}`))
	})

	report, err := client.Process(context.Background(), []string{"/up/a.pdf", "/up/b.pdf"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(captured.PdfPaths) != 2 || captured.PdfPaths[1] != "/up/b.pdf" {
		t.Fatalf("unexpected request %+v", captured)
	}
	if report.Successful != 1 || report.Failed != 1 || len(report.Results) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Results[0].Chunks != 12 || report.Results[0].Pages != 0 {
		t.Fatalf("unexpected first result %+v", report.Results[0])
	}
	want := time.Date(2026, 2, 3, 10, 11, 12, 123456000, time.UTC)
	if !report.ProcessedAt.Equal(want) {
		t.Fatalf("unexpected processed_at %v", report.ProcessedAt)
	}
}

func TestProcessWithNoSuccessIsRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"completed","total_files":1,"successful":0,"failed":1,
			"results":[{"pdf_path":"/up/a.pdf","status":"error","error":"File not found"}]}`))
	})
	_, err := client.Process(context.Background(), []string{"/up/a.pdf"})
	if !domain.IsKind(err, domain.ErrBackendRejected) {
		t.Fatalf("expected backend rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "File not found") {
		t.Fatalf("expected per-file reason in error, got %v", err)
	}
}

func TestProcessUnexpectedStatusIsRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","successful":0,"failed":0}`))
	})
	_, err := client.Process(context.Background(), []string{"/up/a.pdf"})
	if !domain.IsKind(err, domain.ErrBackendRejected) {
		t.Fatalf("expected backend rejected, got %v", err)
	}
}

func TestNonSuccessStatusCapturesBodyVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "Missing PdfPaths"}`))
	})
	_, err := client.Process(context.Background(), []string{"/up/a.pdf"})
	if !domain.IsKind(err, domain.ErrBackendRejected) {
		t.Fatalf("expected backend rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), `{"error": "Missing PdfPaths"}`) {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestServerErrorIsRetriedOnlyForIdempotentCalls(t *testing.T) {
	var askCalls, processCalls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ask":
			if askCalls.Add(1) == 1 {
				http.Error(w, "warming up", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"answer":"ok","sources":[]}`))
		case "/process":
			processCalls.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})

	if _, err := client.Ask(context.Background(), "question?"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if askCalls.Load() != 2 {
		t.Fatalf("expected ask to be retried once, got %d calls", askCalls.Load())
	}

	_, err := client.Process(context.Background(), []string{"/up/a.pdf"})
	if !domain.IsKind(err, domain.ErrBackendRejected) {
		t.Fatalf("expected backend rejected, got %v", err)
	}
	if processCalls.Load() != 1 {
		t.Fatalf("process must not be retried, got %d calls", processCalls.Load())
	}
}

func TestUnreachableBackend(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := New(url, time.Second, testExecutor())
	_, err := client.TestConnection(context.Background())
	if !domain.IsKind(err, domain.ErrUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
	if domain.IsKind(err, domain.ErrBackendRejected) {
		t.Fatalf("unreachable must not look like a rejection: %v", err)
	}
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client := New(server.URL, 50*time.Millisecond, testExecutor())
	_, err := client.Process(context.Background(), []string{"/up/a.pdf"})
	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestTimeoutBoundsIdempotentCallAcrossRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	const timeout = 200 * time.Millisecond
	client := New(server.URL, timeout, resilience.NewExecutor(resilience.DefaultConfig()))

	started := time.Now()
	_, err := client.Ask(context.Background(), "what is inside?")
	elapsed := time.Since(started)

	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed > timeout+150*time.Millisecond {
		t.Fatalf("ask took %s with %d attempts, timeout is %s", elapsed, attempts.Load(), timeout)
	}
}

func TestCancelledContextIsAborted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"late"}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Ask(ctx, "question?")
	if !domain.IsKind(err, domain.ErrAborted) {
		t.Fatalf("expected aborted, got %v", err)
	}
}

func TestAskTruncatesChunksAndClampsConfidence(t *testing.T) {
	long := strings.Repeat("ж", 150)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Question != "what is inside?" {
			t.Errorf("unexpected question %q", req.Question)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer":          "it is a report",
			"sources":         []string{"ignored"},
			"relevant_chunks": []map[string]any{{"text": long}, {"content": "short chunk", "metadata": map[string]any{"page": 1}}},
			"confidence":      1.7,
			"answered_at":     "2026-02-03T10:11:12",
		})
	})

	result, err := client.Ask(context.Background(), "what is inside?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(result.Sources) != 2 {
		t.Fatalf("unexpected sources %v", result.Sources)
	}
	if result.Sources[0] != strings.Repeat("ж", 100)+"..." || result.Sources[1] != "short chunk" {
		t.Fatalf("unexpected snippets %q", result.Sources)
	}
	if result.Confidence != 1 {
		t.Fatalf("expected clamped confidence, got %v", result.Confidence)
	}
	if !result.Timestamp.Equal(time.Date(2026, 2, 3, 10, 11, 12, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", result.Timestamp)
	}
}

func TestAskFallsBackToBackendSources(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"nothing found","sources":["a.pdf p.1"],"confidence":-3}`))
	})
	result, err := client.Ask(context.Background(), "anything?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "a.pdf p.1" || result.Confidence != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Timestamp.IsZero() {
		t.Fatalf("timestamp must default to now")
	}
}

func TestAskMalformedResponses(t *testing.T) {
	for name, body := range map[string]string{
		"missing answer": `{"sources":[]}`,
		"not json":       `<html>proxy error</html>`,
		"wrong type":     `{"answer": 42}`,
	} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		_, err := client.Ask(context.Background(), "question?")
		if !domain.IsKind(err, domain.ErrResponseFormat) {
			t.Fatalf("%s: expected response format error, got %v", name, err)
		}
	}
}

func TestListDocumentsDecodesPlaceholders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/documents" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{
			"documents": [
				{"document_id": "doc_1", "document_name": "a.pdf", "chunks_count": 4, "status": "processed", "total_pages": "Unknown", "processed_at": "Unknown"},
				{"document_id": "doc_2", "document_name": "b.pdf", "chunks_count": 2, "status": "processed", "total_pages": 9, "processed_at": "2026-02-03T10:00:00"}
			],
			"total_count": 2,
			"document_metadata": {"a.pdf": {"filename": "a.pdf", "full_path": "/up/a.pdf", "total_pages": 3, "processed_at": "2026-02-03T09:00:00"}}
		}`))
	})

	docs, err := client.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Path != "/up/a.pdf" || docs[0].PageCount != 3 || docs[0].ChunkCount != 4 || docs[0].ProcessedAt.Hour() != 9 {
		t.Fatalf("unexpected first document %+v", docs[0])
	}
	if docs[1].PageCount != 9 || docs[1].Path != "" {
		t.Fatalf("unexpected second document %+v", docs[1])
	}
}

func TestListDocumentsRequiresDocumentsField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_count": 0}`))
	})
	if _, err := client.ListDocuments(context.Background()); !domain.IsKind(err, domain.ErrResponseFormat) {
		t.Fatalf("expected response format error, got %v", err)
	}
}

func TestInitializeAndClearAcknowledgements(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/initialize":
			_, _ = w.Write([]byte(`{"status":"success","message":"initialized","initialized_at":"2026-02-03T10:00:00"}`))
		case "/clear":
			_, _ = w.Write([]byte(`{"message":"cleared"}`))
		}
	})

	status, err := client.Initialize(context.Background())
	if err != nil || status.Status != "success" || status.Message != "initialized" {
		t.Fatalf("Initialize() = %+v, %v", status, err)
	}
	if _, err := client.ClearState(context.Background()); !domain.IsKind(err, domain.ErrResponseFormat) {
		t.Fatalf("expected response format error for missing status, got %v", err)
	}
}

func TestExportReturnsJSONLocation(t *testing.T) {
	var captured exportRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output_path":"/exports/qa.pdf"}`))
	})

	history := []domain.QAEntry{{Question: "q?", Answer: "a", Sources: []string{"s"}, AskedAt: time.Now()}}
	location, err := client.Export(context.Background(), history, "/exports/qa.pdf")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if location != "/exports/qa.pdf" {
		t.Fatalf("unexpected location %q", location)
	}
	if len(captured.QAHistory) != 1 || captured.QAHistory[0].Question != "q?" || captured.OutputPath != "/exports/qa.pdf" {
		t.Fatalf("unexpected request %+v", captured)
	}
}

func TestExportStoresDocumentReply(t *testing.T) {
	dir := t.TempDir()
	store, err := localfs.New(dir)
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 export"))
	}, WithExportStore(store))

	location, err := client.Export(context.Background(), []domain.QAEntry{{Question: "q?"}}, "../../etc/qa.pdf")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if location != filepath.Join(dir, "qa.pdf") {
		t.Fatalf("export must stay inside the export dir, got %q", location)
	}
	raw, err := os.ReadFile(location)
	if err != nil || string(raw) != "%PDF-1.4 export" {
		t.Fatalf("unexpected export content %q, err = %v", raw, err)
	}
}

func TestExportNeverOverwritesEarlierDocument(t *testing.T) {
	dir := t.TempDir()
	store, err := localfs.New(dir)
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 export"))
	}, WithExportStore(store))
	history := []domain.QAEntry{{Question: "q?"}}

	first, err := client.Export(context.Background(), history, "qa.pdf")
	if err != nil {
		t.Fatalf("first Export() error = %v", err)
	}
	second, err := client.Export(context.Background(), history, "qa.pdf")
	if err != nil {
		t.Fatalf("second Export() error = %v", err)
	}
	if first != filepath.Join(dir, "qa.pdf") || second == first || filepath.Dir(second) != dir {
		t.Fatalf("unexpected export locations %q %q", first, second)
	}

	a, err := client.Export(context.Background(), history, "")
	if err != nil {
		t.Fatalf("default Export() error = %v", err)
	}
	b, err := client.Export(context.Background(), history, "")
	if err != nil {
		t.Fatalf("second default Export() error = %v", err)
	}
	if a == b || !strings.HasPrefix(filepath.Base(a), "qa_export_") || filepath.Ext(a) != ".pdf" {
		t.Fatalf("default exports must get distinct names, got %q %q", a, b)
	}
}

func TestCallObserverSeesOutcome(t *testing.T) {
	observer := &callObserverStub{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","version":"1.0.0","timestamp":"2026-02-03T10:00:00"}`))
	}, WithCallObserver(observer))

	status, err := client.TestConnection(context.Background())
	if err != nil || status.Message != "backend version 1.0.0" {
		t.Fatalf("TestConnection() = %+v, %v", status, err)
	}
	if len(observer.calls) != 1 || observer.calls[0] != "health:ok" {
		t.Fatalf("unexpected observed calls %v", observer.calls)
	}
}

type callObserverStub struct {
	calls []string
}

func (o *callObserverStub) ObserveBackendCall(operation, outcome string, _ time.Duration) {
	o.calls = append(o.calls, operation+":"+outcome)
}
