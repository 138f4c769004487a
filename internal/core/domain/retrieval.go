package domain

import "time"

// QuestionAnswerResult is produced per query and not persisted by the core.
type QuestionAnswerResult struct {
	Answer     string    `json:"answer"`
	Sources    []string  `json:"sources"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// QAEntry is one line of the question/answer history kept for export.
type QAEntry struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Sources    []string  `json:"sources"`
	Confidence float64   `json:"confidence"`
	AskedAt    time.Time `json:"timestamp"`
}

type ExportResult struct {
	Location string `json:"location"`
	Entries  int    `json:"entries"`
}
