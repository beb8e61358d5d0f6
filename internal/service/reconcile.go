package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/hls"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/infrastructure/metrics"
	"github.com/bnema/hlsd/internal/port"
)

type Submitter interface {
	Submit(ctx context.Context, job domain.EncodeJob) SubmitResult
}

type ReconcilerConfig struct {
	RetryEnabled bool
	RetryLimit   int
}

type ReconcileReport struct {
	Scanned     int `json:"scanned"`
	Resubmitted int `json:"resubmitted"`
	Persisted   int `json:"persisted"`
	Failed      int `json:"failed"`
}

// Reconciler rebuilds the stored HLS fields of every item from disk and
// re-queues unfinished encodes, at most RetryLimit per pass.
type Reconciler struct {
	store     port.MediaStore
	inspector *hls.Inspector
	prober    port.DurationProber
	submitter Submitter
	writer    *MetadataWriter
	logger    *slog.Logger
	cfg       ReconcilerConfig
}

func NewReconciler(
	store port.MediaStore,
	inspector *hls.Inspector,
	prober port.DurationProber,
	submitter Submitter,
	writer *MetadataWriter,
	log *slog.Logger,
	cfg ReconcilerConfig,
) *Reconciler {
	return &Reconciler{
		store:     store,
		inspector: inspector,
		prober:    prober,
		submitter: submitter,
		writer:    writer,
		logger:    log,
		cfg:       cfg,
	}
}

func (r *Reconciler) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	items, err := r.store.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("list media items: %w", err)
	}

	budget := 0
	if r.cfg.RetryEnabled {
		budget = max(r.cfg.RetryLimit, 0)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		resubmitted, err := r.reconcile(ctx, item, budget > 0)
		switch {
		case resubmitted:
			budget--
			report.Resubmitted++
			metrics.ReconcileResubmissionsTotal.Inc()
		case err != nil:
			report.Failed++
		default:
			report.Persisted++
		}
	}

	r.logger.Info("reconciliation finished",
		"scanned", report.Scanned,
		"resubmitted", report.Resubmitted,
		"persisted", report.Persisted,
		"failed", report.Failed,
	)
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, item *domain.MediaItem, canRetry bool) (bool, error) {
	log := r.logger.With("media_id", logger.SanitizeForLog(item.ID))

	sourceExists := fileExists(item.SourcePath)
	duration := item.DurationSeconds
	if duration <= 0 && sourceExists && r.prober != nil {
		probed, err := r.prober.ProbeDuration(ctx, item.SourcePath)
		if err != nil {
			log.Debug("duration probe failed", "error", logger.SanitizeForLog(err.Error()))
			probed = 0
		}
		duration = probed
	}

	state := r.inspector.Inspect(item.ID)

	if canRetry && sourceExists && retryable(item, state) {
		// Duration and counts go in first; the submission then owns status.
		if err := r.writer.Write(ctx, item.ID, domain.HLSUpdate{DurationSeconds: domain.Ptr(duration)}.WithState(state)); err != nil {
			log.Warn("persist before resubmit failed", "error", err)
		}
		job := item.Job()
		job.KnownDurationSeconds = duration

		switch res := r.submitter.Submit(ctx, job); res {
		case SubmitAccepted:
			return true, nil
		case SubmitAlreadyActive, SubmitAlreadyQueued:
			return false, nil
		default:
			log.Warn("resubmission rejected", "result", res)
		}
	}

	return false, r.writer.Write(ctx, item.ID, writeThrough(item, state, duration))
}

// retryable reports whether an item has no finished output yet. An item the
// store still lists as pending was never encoded at all.
func retryable(item *domain.MediaItem, state domain.HLSState) bool {
	switch state.Status {
	case domain.HLSStatusMissing, domain.HLSStatusProcessing:
		return true
	case domain.HLSStatusComplete:
		return false
	}
	return item.HLSStatus == domain.HLSStatusPending
}

func writeThrough(item *domain.MediaItem, state domain.HLSState, duration int) domain.HLSUpdate {
	u := domain.HLSUpdate{
		DurationSeconds: domain.Ptr(duration),
		Status:          domain.Ptr(state.Status),
	}.WithState(state)

	switch state.Status {
	case domain.HLSStatusComplete:
		u.ProgressPct = domain.Ptr(100)
		u.Step = domain.Ptr(domain.StepDone)
		u.Error = domain.Ptr("")
	case domain.HLSStatusProcessing:
		u.ProgressPct = domain.Ptr(min(item.HLSProgressPct, 99))
		u.Step = domain.Ptr(domain.StepEncoding)
	case domain.HLSStatusMissing:
		u.ProgressPct = domain.Ptr(0)
		u.Step = domain.Ptr(domain.StepMissing)
	default:
		u.Step = domain.Ptr(domain.StepPending)
	}
	return u
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
