package service

import (
	"context"

	"github.com/bnema/hlsd/internal/domain"
)

// statusPublisher fans one update out to the live cache, the event bus and,
// for status changes, the durable store.
type statusPublisher struct {
	cache  *ProgressCache
	writer *MetadataWriter
	events EventPublisher
}

// progress updates the live view only.
func (p *statusPublisher) progress(id string, u domain.HLSUpdate) domain.ProgressRecord {
	rec := p.cache.Set(id, u)
	p.emit(id, EventProgress, rec)
	return rec
}

// status updates the live view and persists u. The write runs to completion
// even when ctx is already cancelled, so a stopped run still records how it
// ended.
func (p *statusPublisher) status(ctx context.Context, id string, u domain.HLSUpdate) domain.ProgressRecord {
	rec := p.cache.Set(id, u)
	p.emit(id, EventStatus, rec)
	_ = p.writer.Write(context.WithoutCancel(ctx), id, u)
	return rec
}

// reset replaces the live record and persists every field of it.
func (p *statusPublisher) reset(ctx context.Context, id string, rec domain.ProgressRecord) {
	p.cache.Replace(id, rec)
	p.emit(id, EventStatus, rec)
	_ = p.writer.Write(context.WithoutCancel(ctx), id, recordUpdate(rec))
}

// persist writes u without touching the live view.
func (p *statusPublisher) persist(ctx context.Context, id string, u domain.HLSUpdate) {
	_ = p.writer.Write(context.WithoutCancel(ctx), id, u)
}

func (p *statusPublisher) emit(id, kind string, rec domain.ProgressRecord) {
	if p.events == nil {
		return
	}
	p.events.Publish(id, Event{Type: kind, MediaID: id, Record: rec})
}

func recordUpdate(rec domain.ProgressRecord) domain.HLSUpdate {
	return domain.HLSUpdate{
		Status:            domain.Ptr(rec.Status),
		ProgressPct:       domain.Ptr(rec.ProgressPct),
		Step:              domain.Ptr(rec.Step),
		Error:             domain.Ptr(rec.Error),
		SegmentsGenerated: domain.Ptr(rec.SegmentsGenerated),
		SegmentsExpected:  domain.Ptr(rec.SegmentsExpected),
	}
}
