package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/hls"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/infrastructure/metrics"
	"github.com/bnema/hlsd/internal/port"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	maxLineBytes   = 1 << 20
	maxErrorDetail = 200
)

type Outcome string

const (
	OutcomeComplete     Outcome = "complete"
	OutcomeFinalizing   Outcome = "finalizing"
	OutcomeFailed       Outcome = "failed"
	OutcomeLaunchFailed Outcome = "launch_failed"
	OutcomeInterrupted  Outcome = "interrupted"
)

// Result describes how one supervised encode ended.
type Result struct {
	RunID       string
	Outcome     Outcome
	ExitCode    int
	ProgressPct int
	Error       string
	State       domain.HLSState
}

type SupervisorConfig struct {
	// PersistInterval bounds how often running progress is written to the
	// store. Zero keeps running progress in the cache only.
	PersistInterval time.Duration
}

// Supervisor runs one encoder process per job and turns its output and exit
// into status transitions. Run never returns an error; every failure ends up
// as a published status.
type Supervisor struct {
	encoder         port.Encoder
	inspector       *hls.Inspector
	pub             *statusPublisher
	logger          *slog.Logger
	persistInterval time.Duration
}

func NewSupervisor(
	encoder port.Encoder,
	inspector *hls.Inspector,
	cache *ProgressCache,
	writer *MetadataWriter,
	events EventPublisher,
	log *slog.Logger,
	cfg SupervisorConfig,
) *Supervisor {
	return &Supervisor{
		encoder:         encoder,
		inspector:       inspector,
		pub:             &statusPublisher{cache: cache, writer: writer, events: events},
		logger:          log,
		persistInterval: cfg.PersistInterval,
	}
}

func (s *Supervisor) Run(ctx context.Context, job domain.EncodeJob) Result {
	runID := uuid.NewString()
	log := s.logger.With(
		"media_id", logger.SanitizeForLog(job.MediaID),
		"run_id", runID,
	)

	metrics.ActiveEncodes.Inc()
	defer metrics.ActiveEncodes.Dec()
	started := time.Now()

	res := s.run(ctx, job, log)
	res.RunID = runID

	metrics.EncodeOutcomesTotal.WithLabelValues(string(res.Outcome)).Inc()
	metrics.EncodeDuration.Observe(time.Since(started).Seconds())

	attrs := []any{
		"outcome", res.Outcome,
		"segments_generated", res.State.SegmentsGenerated,
		"segments_expected", res.State.SegmentsExpected,
		"elapsed", time.Since(started).Round(time.Millisecond),
	}
	switch res.Outcome {
	case OutcomeComplete, OutcomeFinalizing:
		log.Info("encode finished", attrs...)
	default:
		attrs = append(attrs, "exit_code", res.ExitCode, "error", logger.SanitizeForLog(res.Error))
		log.Warn("encode failed", attrs...)
	}
	return res
}

func (s *Supervisor) run(ctx context.Context, job domain.EncodeJob, log *slog.Logger) Result {
	id := job.MediaID
	layout := s.inspector.Layout()

	req, err := encodeRequest(layout, job)
	if err != nil {
		return s.launchFailed(ctx, id, err)
	}
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return s.launchFailed(ctx, id, fmt.Errorf("create output directory: %w", err))
	}

	s.pub.status(ctx, id, domain.HLSUpdate{
		Status:      domain.Ptr(domain.HLSStatusProcessing),
		ProgressPct: domain.Ptr(0),
		Step:        domain.Ptr(domain.StepStarting),
		Error:       domain.Ptr(""),
	})

	cmd, err := s.encoder.Command(ctx, req)
	if err != nil {
		return s.launchFailed(ctx, id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.launchFailed(ctx, id, err)
	}
	// Progress lines and diagnostics share one stream, in order.
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return s.launchFailed(ctx, id, err)
	}
	log.Info("encode started", "source", logger.SanitizeForLog(job.SourcePath), "duration", domain.FormatDuration(job.KnownDurationSeconds))

	last, tail := s.follow(ctx, job, stdout, log)
	waitErr := cmd.Wait()
	state := s.inspector.Inspect(id)

	res := Result{ProgressPct: last, State: state}
	switch {
	case ctx.Err() != nil:
		res.Outcome = OutcomeInterrupted
		res.ExitCode = exitCode(waitErr)
		res.Error = "encode interrupted"
		s.publishFailure(ctx, id, res.Error, state)
	case waitErr == nil && state.Status == domain.HLSStatusComplete:
		res.Outcome = OutcomeComplete
		res.ProgressPct = 100
		s.pub.status(ctx, id, domain.HLSUpdate{
			Status:      domain.Ptr(domain.HLSStatusComplete),
			ProgressPct: domain.Ptr(100),
			Step:        domain.Ptr(domain.StepDone),
			Error:       domain.Ptr(""),
		}.WithState(state))
	case waitErr == nil:
		res.Outcome = OutcomeFinalizing
		res.ProgressPct = max(last, 1)
		s.pub.status(ctx, id, domain.HLSUpdate{
			Status:      domain.Ptr(domain.HLSStatusProcessing),
			ProgressPct: domain.Ptr(res.ProgressPct),
			Step:        domain.Ptr(domain.StepFinalizing),
			Error:       domain.Ptr(""),
		}.WithState(state))
	default:
		res.Outcome = OutcomeFailed
		res.ExitCode = exitCode(waitErr)
		res.Error = failureMessage(waitErr, tail)
		s.publishFailure(ctx, id, res.Error, state)
	}
	return res
}

// follow reads the merged output stream to EOF. It returns the last
// published percentage and the last line that was not a progress line.
func (s *Supervisor) follow(ctx context.Context, job domain.EncodeJob, r io.Reader, log *slog.Logger) (int, string) {
	var (
		persist *rate.Sometimes
		writes  *progressWriter
	)
	if s.persistInterval > 0 {
		persist = &rate.Sometimes{Interval: s.persistInterval}
		writes = s.startProgressWriter(ctx, job.MediaID)
		// Stopped before the caller publishes the final status, so a
		// running write can never land after it.
		defer writes.stop()
	}

	last := 0
	loggedBucket := 0
	ended := false
	tail := ""

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev, ok := s.encoder.ParseProgressLine(line)
		if !ok {
			if !strings.Contains(line, "=") {
				tail = line
			}
			continue
		}
		if ended {
			continue
		}
		switch ev.Kind {
		case domain.ProgressEnd:
			// Keep draining so the encoder never blocks on a full pipe.
			ended = true
		case domain.ProgressElapsed:
			next := domain.PercentOf(ev.ElapsedSeconds, job.KnownDurationSeconds)
			if next <= last {
				continue
			}
			last = next
			state := s.inspector.Inspect(job.MediaID)
			update := domain.HLSUpdate{
				Status:      domain.Ptr(domain.HLSStatusProcessing),
				ProgressPct: domain.Ptr(last),
				Step:        domain.Ptr(domain.StepEncoding),
			}.WithState(state)
			s.pub.progress(job.MediaID, update)
			if persist != nil {
				persist.Do(func() { writes.offer(update) })
			}
			if bucket := last / 10; bucket > loggedBucket {
				loggedBucket = bucket
				log.Debug("encode progress", "progress_pct", last, "segments_generated", state.SegmentsGenerated)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("encoder output unreadable", "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
	return last, tail
}

// progressWriter persists running progress off the read loop. It holds at
// most one pending update; a newer one replaces it.
type progressWriter struct {
	slot chan domain.HLSUpdate
	done chan struct{}
}

func (s *Supervisor) startProgressWriter(ctx context.Context, id string) *progressWriter {
	w := &progressWriter{
		slot: make(chan domain.HLSUpdate, 1),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for u := range w.slot {
			s.pub.persist(ctx, id, u)
		}
	}()
	return w
}

// offer never blocks. Only the read loop sends, so the retry terminates.
func (w *progressWriter) offer(u domain.HLSUpdate) {
	for {
		select {
		case w.slot <- u:
			return
		default:
		}
		select {
		case <-w.slot:
		default:
		}
	}
}

// stop flushes the pending update and waits for the writer to finish.
func (w *progressWriter) stop() {
	close(w.slot)
	<-w.done
}

func (s *Supervisor) launchFailed(ctx context.Context, id string, err error) Result {
	msg := "launch encoder: " + err.Error()
	s.pub.status(ctx, id, domain.HLSUpdate{
		Status: domain.Ptr(domain.HLSStatusFailed),
		Step:   domain.Ptr(domain.StepError),
		Error:  domain.Ptr(msg),
	})
	return Result{Outcome: OutcomeLaunchFailed, ExitCode: -1, Error: msg}
}

func (s *Supervisor) publishFailure(ctx context.Context, id, msg string, state domain.HLSState) {
	s.pub.status(ctx, id, domain.HLSUpdate{
		Status: domain.Ptr(domain.HLSStatusFailed),
		Step:   domain.Ptr(domain.StepError),
		Error:  domain.Ptr(msg),
	}.WithState(state))
}

func encodeRequest(layout hls.Layout, job domain.EncodeJob) (port.EncodeRequest, error) {
	dir, err := layout.Dir(job.MediaID)
	if err != nil {
		return port.EncodeRequest{}, err
	}
	playlist, err := layout.PlaylistPath(job.MediaID)
	if err != nil {
		return port.EncodeRequest{}, err
	}
	segments, err := layout.SegmentPath(job.MediaID)
	if err != nil {
		return port.EncodeRequest{}, err
	}
	return port.EncodeRequest{
		MediaID:        job.MediaID,
		SourcePath:     job.SourcePath,
		OutputDir:      dir,
		PlaylistPath:   playlist,
		SegmentPattern: segments,
	}, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func failureMessage(waitErr error, tail string) string {
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return "wait for encoder: " + waitErr.Error()
	}
	msg := fmt.Sprintf("encoder exited with code %d", exitErr.ExitCode())
	if tail != "" {
		if cut, truncated := logger.Truncate(tail, maxErrorDetail); truncated {
			tail = cut + "..."
		}
		msg += ": " + tail
	}
	return msg
}
