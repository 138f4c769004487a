package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pdfqa-gateway/internal/config"
	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
	"github.com/kirillkom/pdfqa-gateway/internal/core/ports"
)

const (
	spreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxJSONBodyBytes       = 1 << 20
	multipartMemoryBytes   = 32 << 20
)

// MetricsRecorder is the part of the metrics registry the router needs.
type MetricsRecorder interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

type Router struct {
	cfg       config.Config
	lifecycle ports.SessionLifecycle
	history   ports.HistoryReader
	metrics   MetricsRecorder
}

func NewRouter(
	cfg config.Config,
	lifecycle ports.SessionLifecycle,
	history ports.HistoryReader,
	metrics MetricsRecorder,
) *Router {
	return &Router{
		cfg:       cfg,
		lifecycle: lifecycle,
		history:   history,
		metrics:   metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/api/health", rt.health)
	mux.HandleFunc("/api/state", rt.state)
	mux.HandleFunc("/api/initialize", rt.initialize)
	mux.HandleFunc("/api/test", rt.testConnection)
	mux.HandleFunc("/api/upload", rt.upload)
	mux.HandleFunc("/api/process", rt.process)
	mux.HandleFunc("/api/ask", rt.ask)
	mux.HandleFunc("/api/documents", rt.documents)
	mux.HandleFunc("/api/export", rt.export)
	mux.HandleFunc("/api/export/xlsx", rt.exportSpreadsheet)
	mux.HandleFunc("/api/cleanup", rt.cleanup)
	mux.HandleFunc("/api/clear", rt.clear)
	mux.HandleFunc("/api/files", rt.files)
	mux.HandleFunc("/api/files/", rt.deleteFile)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeFailure(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	return false
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.Health(r.Context()))
}

type stateResponse struct {
	State    domain.LifecycleState `json:"state"`
	Admitted []domain.UploadedFile `json:"admitted"`
}

func (rt *Router) state(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: stateResponse{
		State:    rt.lifecycle.State(),
		Admitted: rt.lifecycle.Admitted(),
	}})
}

func (rt *Router) initialize(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.Initialize(r.Context()))
}

func (rt *Router) testConnection(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.TestConnection(r.Context()))
}

func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	limit := int64(rt.cfg.MaxUploadRequestMB) << 20
	if limit <= 0 {
		limit = 256 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	candidates, closeAll, err := readUploadCandidates(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, domain.KindOf(domain.ErrValidation),
				fmt.Sprintf("upload request exceeds %d MiB", limit>>20))
			return
		}
		writeError(w, err)
		return
	}
	defer closeAll()

	writeResult(w, http.StatusOK, rt.lifecycle.AdmitFiles(r.Context(), candidates))
}

func (rt *Router) process(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.ProcessAdmitted(r.Context()))
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.AskQuestion(r.Context(), req.Question))
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.ListDocuments(r.Context()))
}

func (rt *Router) export(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		OutputPath string `json:"output_path"`
	}
	if err := decodeJSONBody(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.Export(r.Context(), strings.TrimSpace(req.OutputPath)))
}

func (rt *Router) exportSpreadsheet(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	// Rendered into memory first so a failure can still be reported as JSON.
	var buf bytes.Buffer
	res := rt.history.ExportSpreadsheet(r.Context(), &buf)
	if !res.OK() {
		writeError(w, res.Err())
		return
	}

	filename := fmt.Sprintf("qa_history_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", spreadsheetContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Entry-Count", fmt.Sprint(res.Value()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("spreadsheet_write_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func (rt *Router) cleanup(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var scope domain.CleanupScope
	if err := decodeJSONBody(r, &scope, true); err != nil {
		writeError(w, err)
		return
	}
	rt.writeCleanup(w, r, scope)
}

func (rt *Router) clear(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	rt.writeCleanup(w, r, domain.FullScope())
}

// writeCleanup answers 207 when the remote clear succeeded but some local
// deletions failed, so callers can tell a partial cleanup from a full one.
func (rt *Router) writeCleanup(w http.ResponseWriter, r *http.Request, scope domain.CleanupScope) {
	res := rt.lifecycle.Cleanup(r.Context(), scope)
	if res.OK() && !res.Value().Complete() {
		writeJSON(w, http.StatusMultiStatus, envelope{Success: true, Data: res.Value()})
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (rt *Router) files(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.ListFiles(r.Context()))
}

func (rt *Router) deleteFile(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if strings.TrimSpace(name) == "" {
		writeError(w, domain.NewError(domain.ErrValidation, "delete file", "file name is required"))
		return
	}
	writeResult(w, http.StatusOK, rt.lifecycle.DeleteFile(r.Context(), name))
}

// decodeJSONBody decodes a small JSON request body. With optional set an empty
// body leaves dst untouched.
func decodeJSONBody(r *http.Request, dst any, optional bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.WrapError(domain.ErrValidation, "decode request body", err)
	}
	return nil
}
