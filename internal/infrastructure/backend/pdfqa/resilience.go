package pdfqa

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/resilience"
)

// HTTPStatusError keeps the backend's status and body verbatim.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "backend status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("backend %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("backend %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Summary is the backend's own error/details pair when the body carries one.
func (e *HTTPStatusError) Summary() string {
	return decodeErrorSummary([]byte(e.Body))
}

// classifierFor returns the retry policy of one backend operation. Calls that
// mutate backend state are only repeated when the request never reached it.
func classifierFor(idempotent bool) resilience.ErrorClassifier {
	return func(err error) resilience.ErrorClassification {
		if err == nil {
			return resilience.ErrorClassification{}
		}
		if domain.IsKind(err, domain.ErrAborted) {
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}

		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			return resilience.ErrorClassification{
				Retryable:     idempotent && isRetryableHTTPStatus(statusErr.StatusCode),
				RecordFailure: statusErr.StatusCode >= http.StatusInternalServerError,
			}
		}

		switch {
		case domain.IsKind(err, domain.ErrUnreachable):
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		case domain.IsKind(err, domain.ErrTimeout):
			return resilience.ErrorClassification{Retryable: idempotent, RecordFailure: true}
		case domain.IsKind(err, domain.ErrBackendRejected):
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
