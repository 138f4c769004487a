package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

const (
	cleanupOutcomeRemoteFailed = "remote_failed"
	cleanupOutcomeComplete     = "complete"
	cleanupOutcomePartial      = "partial"
)

// Cleanup clears the backend index first and only then removes local files.
// A failed remote clear leaves both the files and the state untouched. Once
// the remote side is clear, local deletions are best effort and the session
// always returns to Empty.
func (uc *LifecycleUseCase) Cleanup(ctx context.Context, scope domain.CleanupScope) domain.Result[domain.CleanupReport] {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if _, err := uc.remote.ClearState(ctx); err != nil {
		uc.logger.Error("cleanup_phase_failed", "phase", "remote_clear", "state", uc.state, "error", err)
		uc.observeCleanup(cleanupOutcomeRemoteFailed)
		return domain.Fail[domain.CleanupReport](fmt.Errorf(
			"cleanup failed in remote clear phase; no local files were deleted and it is safe to retry: %w", err))
	}

	report := domain.CleanupReport{RemoteCleared: true}
	targets, listFailure := uc.cleanupTargets(ctx, scope)
	if listFailure != nil {
		report.Failures = append(report.Failures, *listFailure)
	}

	deleted, failures := uc.deleteAll(ctx, targets)
	report.Deleted = deleted
	report.Failures = append(report.Failures, failures...)

	if len(report.Failures) > 0 {
		uc.logger.Warn("cleanup_phase_failed",
			"phase", "local_delete",
			"deleted", len(report.Deleted),
			"failed", len(report.Failures),
		)
	}

	if err := uc.history.Clear(ctx); err != nil {
		uc.logger.Warn("history_clear_failed", "operation", "cleanup", "error", err)
	}
	uc.admitted = nil
	uc.transition(ctx, domain.StateEmpty, domain.EventSessionCleaned, report.Deleted)
	report.State = uc.state

	if report.Complete() {
		uc.observeCleanup(cleanupOutcomeComplete)
	} else {
		uc.observeCleanup(cleanupOutcomePartial)
	}
	return domain.Ok(report)
}

func (uc *LifecycleUseCase) cleanupTargets(ctx context.Context, scope domain.CleanupScope) ([]string, *domain.DeletionFailure) {
	if !scope.IsFull() {
		return scope.Paths, nil
	}
	files, err := uc.store.Enumerate(ctx)
	if err != nil {
		return nil, &domain.DeletionFailure{
			Path:   "*",
			Reason: fmt.Sprintf("enumerate uploads: %v", err),
			Kind:   domain.KindOf(err),
		}
	}
	paths := make([]string, 0, len(files))
	for _, file := range files {
		paths = append(paths, file.Path)
	}
	return paths, nil
}

// deleteAll removes every target with bounded parallelism. One failure never
// stops the others; results keep the order of targets.
func (uc *LifecycleUseCase) deleteAll(ctx context.Context, targets []string) ([]string, []domain.DeletionFailure) {
	type outcome struct {
		removed string
		err     error
	}
	outcomes := make([]outcome, len(targets))

	var group errgroup.Group
	group.SetLimit(uc.deleteConcurrency)
	for i, target := range targets {
		group.Go(func() error {
			removed, err := uc.store.Delete(ctx, target)
			outcomes[i] = outcome{removed: removed, err: err}
			return nil
		})
	}
	_ = group.Wait()

	deleted := make([]string, 0, len(targets))
	var failures []domain.DeletionFailure
	for i, o := range outcomes {
		if o.err != nil {
			uc.logger.Warn("file_delete_failed", slog.String("path", targets[i]), slog.Any("error", o.err))
			failures = append(failures, domain.DeletionFailure{
				Path:   targets[i],
				Reason: o.err.Error(),
				Kind:   domain.KindOf(o.err),
			})
			continue
		}
		deleted = append(deleted, o.removed)
	}
	return deleted, failures
}

func (uc *LifecycleUseCase) observeCleanup(outcome string) {
	if uc.observer != nil {
		uc.observer.ObserveCleanup(outcome)
	}
}
