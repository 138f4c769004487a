package memory

import (
	"context"
	"sync"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

// HistoryStore keeps the question/answer history in process memory. It is
// the default when no database is configured.
type HistoryStore struct {
	mu      sync.RWMutex
	entries []domain.QAEntry
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

func (s *HistoryStore) Append(ctx context.Context, entry domain.QAEntry) error {
	if err := ctx.Err(); err != nil {
		return domain.ContextError("append history", err)
	}
	entry.Sources = append([]string(nil), entry.Sources...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *HistoryStore) List(ctx context.Context) ([]domain.QAEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ContextError("list history", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.QAEntry, len(s.entries))
	for i, entry := range s.entries {
		entry.Sources = append([]string(nil), entry.Sources...)
		out[i] = entry
	}
	return out, nil
}

func (s *HistoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
