package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

type observerStub struct {
	retries int
	states  []string
}

func (o *observerStub) ObserveRetry(string) { o.retries++ }

func (o *observerStub) ObserveBreakerState(_ string, state string) {
	o.states = append(o.states, state)
}

func fastRetryConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesUnreachableBackend(t *testing.T) {
	observer := &observerStub{}
	exec := NewExecutor(fastRetryConfig()).WithObserver(observer)

	attempts := 0
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return domain.NewError(domain.ErrUnreachable, "op", "connection refused")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if observer.retries != 2 {
		t.Fatalf("expected 2 observed retries, got %d", observer.retries)
	}
}

func TestExecuteDoesNotRetryRejectedCall(t *testing.T) {
	exec := NewExecutor(fastRetryConfig())

	attempts := 0
	errRejected := domain.NewError(domain.ErrBackendRejected, "op", "400 bad request")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errRejected
	}, nil)
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteMapsCancelledContextToAborted(t *testing.T) {
	exec := NewExecutor(fastRetryConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, "op", func(context.Context) error {
		t.Fatalf("operation must not run on a cancelled context")
		return nil
	}, nil)
	if !domain.IsKind(err, domain.ErrAborted) {
		t.Fatalf("expected aborted, got %v", err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	observer := &observerStub{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}).WithObserver(observer)

	errDown := domain.NewError(domain.ErrUnreachable, "op", "connection refused")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected unreachable error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrUnreachable) {
		t.Fatalf("open circuit must surface as unreachable, got %v", err)
	}
	if len(observer.states) != 1 || observer.states[0] != "open" {
		t.Fatalf("unexpected breaker states %v", observer.states)
	}
}

func TestClassifyByKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"unreachable", domain.ErrUnreachable, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"timeout", domain.ErrTimeout, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"aborted", domain.ErrAborted, ErrorClassification{}},
		{"validation", domain.ErrValidation, ErrorClassification{}},
		{"format", domain.ErrResponseFormat, ErrorClassification{RecordFailure: true}},
	}
	for _, tc := range cases {
		if got := ClassifyByKind(tc.err); got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestBackendConfigOverridesAttempts(t *testing.T) {
	cfg := BackendConfig(5, false).normalize()
	if cfg.RetryMaxAttempts != 5 || cfg.BreakerEnabled {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if def := BackendConfig(0, true).normalize(); def.RetryMaxAttempts != DefaultConfig().RetryMaxAttempts {
		t.Fatalf("zero attempts must keep the default, got %d", def.RetryMaxAttempts)
	}
}
