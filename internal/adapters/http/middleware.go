package httpadapter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"
	// errorKindHeader mirrors the envelope kind of a failed response.
	errorKindHeader = "X-Error-Kind"
)

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, requestID)))
	})
}

var routeOperations = map[string]string{
	"/api/health":      "health",
	"/api/state":       "state",
	"/api/initialize":  "initialize",
	"/api/test":        "test_connection",
	"/api/upload":      "admit_files",
	"/api/process":     "process_admitted",
	"/api/ask":         "ask_question",
	"/api/documents":   "list_documents",
	"/api/export":      "export",
	"/api/export/xlsx": "export_history",
	"/api/cleanup":     "cleanup",
	"/api/clear":       "cleanup_all",
	"/api/files":       "list_files",
}

// lifecycleOperation names the session operation a request drives, or "" for
// routes outside the lifecycle such as /metrics.
func lifecycleOperation(path string) string {
	if strings.HasPrefix(path, "/api/files/") {
		return "delete_file"
	}
	return routeOperations[path]
}

// accessLogMiddleware writes one line per request. Failed responses carry the
// envelope kind so rejected uploads and backend timeouts can be told apart
// without reading the body.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &accessRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		remoteAddr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remoteAddr = host
		}

		attrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", recorder.bytesWritten,
			"remote_addr", remoteAddr,
		}
		if op := lifecycleOperation(r.URL.Path); op != "" {
			attrs = append(attrs, "operation", op)
		}
		if kind := recorder.Header().Get(errorKindHeader); kind != "" {
			attrs = append(attrs, "kind", kind)
		}

		switch {
		case recorder.statusCode >= 500:
			slog.Error("http_request", attrs...)
		case recorder.statusCode >= 400:
			slog.Warn("http_request", attrs...)
		default:
			slog.Info("http_request", attrs...)
		}
	})
}

type accessRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *accessRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *accessRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}
