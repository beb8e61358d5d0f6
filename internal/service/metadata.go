package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/infrastructure/metrics"
	"github.com/bnema/hlsd/internal/port"
	"github.com/sethvargo/go-retry"
)

const (
	defaultWriteAttempts  = 5
	defaultWriteBaseDelay = 200 * time.Millisecond
	maxWriteDelay         = 5 * time.Second
)

// MetadataWriter persists HLS fields with a bounded retry on store
// contention. Failures are logged and returned; no caller treats them as
// fatal.
type MetadataWriter struct {
	store     port.MediaStore
	logger    *slog.Logger
	attempts  uint64
	baseDelay time.Duration
}

type MetadataWriterOption func(*MetadataWriter)

// WithRetryPolicy sets the total number of attempts and the first backoff
// delay, which doubles after each busy attempt.
func WithRetryPolicy(attempts int, baseDelay time.Duration) MetadataWriterOption {
	return func(w *MetadataWriter) {
		if attempts > 0 {
			w.attempts = uint64(attempts)
		}
		if baseDelay > 0 {
			w.baseDelay = baseDelay
		}
	}
}

func NewMetadataWriter(store port.MediaStore, log *slog.Logger, opts ...MetadataWriterOption) *MetadataWriter {
	w := &MetadataWriter{
		store:     store,
		logger:    log,
		attempts:  defaultWriteAttempts,
		baseDelay: defaultWriteBaseDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *MetadataWriter) Write(ctx context.Context, id string, u domain.HLSUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	backoff := retry.WithMaxRetries(w.attempts-1,
		retry.WithCappedDuration(maxWriteDelay, retry.NewExponential(w.baseDelay)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.store.UpdateHLS(ctx, id, u)
		if errors.Is(err, domain.ErrStoreBusy) {
			metrics.MetadataWriteConflictsTotal.Inc()
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		metrics.MetadataWriteFailuresTotal.Inc()
		w.logger.Warn("metadata write failed",
			"media_id", logger.SanitizeForLog(id),
			"error", err,
		)
		return err
	}
	return nil
}
