package pdfqa

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// flexInt accepts numbers, numeric strings and placeholders such as "Unknown",
// which decode as 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		*f = 0
		return nil
	}
	text := strings.Trim(string(raw), `"`)
	n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

var backendTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseBackendTime reads the backend's ISO timestamps. Zone-less values are
// taken as UTC.
func parseBackendTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range backendTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type statusResponse struct {
	Status        *string `json:"status"`
	Message       string  `json:"message"`
	Version       string  `json:"version"`
	Timestamp     string  `json:"timestamp"`
	InitializedAt string  `json:"initialized_at"`
	ClearedAt     string  `json:"cleared_at"`
}

func (r statusResponse) at() string {
	for _, candidate := range []string{r.InitializedAt, r.ClearedAt, r.Timestamp} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

type processRequest struct {
	PdfPaths []string `json:"PdfPaths"`
}

type processResponse struct {
	Status      *string         `json:"status"`
	TotalFiles  flexInt         `json:"total_files"`
	Successful  flexInt         `json:"successful"`
	Failed      flexInt         `json:"failed"`
	Results     []processResult `json:"results"`
	ProcessedAt string          `json:"processed_at"`
}

type processResult struct {
	PdfPath      string  `json:"pdf_path"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Status       string  `json:"status"`
	ChunksCount  flexInt `json:"chunks_count"`
	TotalPages   flexInt `json:"total_pages"`
	Error        string  `json:"error"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer         *string         `json:"answer"`
	Sources        []string        `json:"sources"`
	RelevantChunks []relevantChunk `json:"relevant_chunks"`
	Confidence     *float64        `json:"confidence"`
	AnsweredAt     string          `json:"answered_at"`
}

type relevantChunk struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

func (c relevantChunk) body() string {
	if strings.TrimSpace(c.Text) != "" {
		return c.Text
	}
	return c.Content
}

type documentsResponse struct {
	Documents        *[]documentRecord         `json:"documents"`
	TotalCount       int                       `json:"total_count"`
	DocumentMetadata map[string]documentSource `json:"document_metadata"`
}

type documentRecord struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunksCount  flexInt `json:"chunks_count"`
	TotalPages   flexInt `json:"total_pages"`
	Status       string  `json:"status"`
	ProcessedAt  string  `json:"processed_at"`
}

type documentSource struct {
	Filename    string  `json:"filename"`
	FullPath    string  `json:"full_path"`
	TotalPages  flexInt `json:"total_pages"`
	ProcessedAt string  `json:"processed_at"`
}

type exportRequest struct {
	QAHistory  []exportEntry `json:"qa_history"`
	OutputPath string        `json:"output_path,omitempty"`
}

type exportEntry struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
	Timestamp  string   `json:"timestamp"`
}

type exportResponse struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
	File       string `json:"file"`
}

func (r exportResponse) location() string {
	for _, candidate := range []string{r.Path, r.OutputPath, r.File} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// errorResponse is the backend's failure body. Only used to enrich logs; the
// raw body is what callers see.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func decodeErrorSummary(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == "" {
		return ""
	}
	if parsed.Details == "" {
		return parsed.Error
	}
	return parsed.Error + ": " + parsed.Details
}
