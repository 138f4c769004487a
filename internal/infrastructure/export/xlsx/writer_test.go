package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

func TestWriteProducesReadableWorkbook(t *testing.T) {
	entries := []domain.QAEntry{
		{
			Question:   "What is the budget?",
			Answer:     "Ten thousand.",
			Sources:    []string{"budget.pdf p.2", "budget.pdf p.3"},
			Confidence: 0.75,
			AskedAt:    time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		},
		{Question: "Who signed?", Answer: "Nobody.", AskedAt: time.Date(2026, 2, 3, 10, 5, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	if err := NewWriter().Write(&buf, entries); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][2] != "Question" || rows[1][2] != "What is the budget?" || rows[2][3] != "Nobody." {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][1] != "2026-02-03T10:00:00Z" || rows[1][5] != "budget.pdf p.2\nbudget.pdf p.3" {
		t.Fatalf("unexpected first data row %v", rows[1])
	}
}
