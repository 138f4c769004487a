package domain

import "time"

type LifecycleState string

const (
	StateEmpty         LifecycleState = "empty"
	StateFilesAdmitted LifecycleState = "files_admitted"
	StateProcessed     LifecycleState = "processed"
)

// CleanupScope selects what phase 2 of a cleanup deletes locally. A scope with
// no paths is a full clear of the upload root.
type CleanupScope struct {
	Paths []string `json:"paths,omitempty"`
}

func FullScope() CleanupScope {
	return CleanupScope{}
}

func (s CleanupScope) IsFull() bool {
	return len(s.Paths) == 0
}

type DeletionFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
}

type CleanupReport struct {
	RemoteCleared bool              `json:"remote_cleared"`
	Deleted       []string          `json:"deleted"`
	Failures      []DeletionFailure `json:"failures,omitempty"`
	State         LifecycleState    `json:"state"`
}

// Complete reports whether every local deletion in phase 2 succeeded.
func (r CleanupReport) Complete() bool {
	return r.RemoteCleared && len(r.Failures) == 0
}

type EventType string

const (
	EventFilesAdmitted      EventType = "files_admitted"
	EventDocumentsProcessed EventType = "documents_processed"
	EventSessionCleaned     EventType = "session_cleaned"
	EventFileDeleted        EventType = "file_deleted"
)

// LifecycleEvent is published after every state transition.
type LifecycleEvent struct {
	Type  EventType      `json:"type"`
	From  LifecycleState `json:"from"`
	To    LifecycleState `json:"to"`
	Files []string       `json:"files,omitempty"`
	At    time.Time      `json:"at"`
}

type SessionHealth struct {
	Status        string         `json:"status"`
	State         LifecycleState `json:"state"`
	AdmittedFiles int            `json:"admitted_files"`
	CheckedAt     time.Time      `json:"checked_at"`
}
