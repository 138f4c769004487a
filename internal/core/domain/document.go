package domain

import (
	"io"
	"time"
)

// UploadCandidate is a file offered for admission before it has been validated
// or written anywhere.
type UploadCandidate struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// StoredFile is a file as currently present under the upload root.
type StoredFile struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadedFile is an admitted file. It is immutable once created.
type UploadedFile struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	StoragePath  string    `json:"storage_path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	Pages        int       `json:"pages,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type AdmissionReport struct {
	Admitted []UploadedFile `json:"admitted"`
	Rejected []Rejection    `json:"rejected,omitempty"`
	State    LifecycleState `json:"state"`
}

// ProcessedDocument is the backend's record of an indexed document.
type ProcessedDocument struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	Path        string    `json:"path,omitempty"`
	PageCount   int       `json:"page_count"`
	ChunkCount  int       `json:"chunk_count,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
	Status      string    `json:"status"`
}

type ProcessFileResult struct {
	Path         string `json:"path"`
	DocumentID   string `json:"document_id,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	Status       string `json:"status"`
	Pages        int    `json:"pages,omitempty"`
	Chunks       int    `json:"chunks,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ProcessReport is the backend's status payload for an indexing request.
type ProcessReport struct {
	Status      string              `json:"status"`
	TotalFiles  int                 `json:"total_files"`
	Successful  int                 `json:"successful"`
	Failed      int                 `json:"failed"`
	Results     []ProcessFileResult `json:"results,omitempty"`
	ProcessedAt time.Time           `json:"processed_at"`
}

// BackendStatus is the acknowledgement returned by session-level backend calls.
type BackendStatus struct {
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}
