package service

import (
	"context"
	"fmt"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/hls"
	"github.com/bnema/hlsd/internal/port"
)

// HLSService is what request handlers and commands use of the pipeline.
type HLSService struct {
	store      port.MediaStore
	inspector  *hls.Inspector
	cache      *ProgressCache
	pipeline   *Pipeline
	reconciler *Reconciler
	events     *EventBus
}

func NewHLSService(
	store port.MediaStore,
	inspector *hls.Inspector,
	cache *ProgressCache,
	pipeline *Pipeline,
	reconciler *Reconciler,
	events *EventBus,
) *HLSService {
	return &HLSService{
		store:      store,
		inspector:  inspector,
		cache:      cache,
		pipeline:   pipeline,
		reconciler: reconciler,
		events:     events,
	}
}

func (s *HLSService) Submit(ctx context.Context, id, sourcePath string, knownDurationSeconds int) SubmitResult {
	return s.pipeline.Submit(ctx, domain.EncodeJob{
		MediaID:              id,
		SourcePath:           sourcePath,
		KnownDurationSeconds: max(knownDurationSeconds, 0),
	})
}

// Resubmit queues a fresh encode of a stored item.
func (s *HLSService) Resubmit(ctx context.Context, id string) (SubmitResult, error) {
	if err := domain.ValidateID(id); err != nil {
		return SubmitInvalid, err
	}
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get media item: %w", err)
	}
	return s.pipeline.Submit(ctx, item.Job()), nil
}

func (s *HLSService) LiveProgress(id string) (domain.ProgressRecord, bool) {
	return s.cache.Get(id)
}

func (s *HLSService) ClearLiveProgress(id string) {
	s.cache.Clear(id)
}

func (s *HLSService) Inspect(id string) domain.HLSState {
	return s.inspector.Inspect(id)
}

func (s *HLSService) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	return s.reconciler.ReconcileAll(ctx)
}

// Status returns the stored item with any live record laid over it.
func (s *HLSService) Status(ctx context.Context, id string) (domain.MediaItem, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.MediaItem{}, err
	}
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.MediaItem{}, err
	}
	if rec, ok := s.cache.Get(id); ok {
		return item.WithLive(&rec), nil
	}
	return item.WithLive(nil), nil
}

func (s *HLSService) Subscribe(id string) chan Event {
	return s.events.Subscribe(id)
}

func (s *HLSService) Unsubscribe(id string, ch chan Event) {
	s.events.Unsubscribe(id, ch)
}

func (s *HLSService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *HLSService) WaitIdle(ctx context.Context) error {
	return s.pipeline.WaitIdle(ctx)
}

func (s *HLSService) Stop(ctx context.Context) error {
	return s.pipeline.Stop(ctx)
}
