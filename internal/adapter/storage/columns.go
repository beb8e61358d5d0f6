// Package storage holds what the SQL-backed media stores share.
package storage

import (
	"github.com/bnema/hlsd/internal/domain"
)

// SelectColumns is the column list every store reads a media item from,
// in the order ScanTargets expects.
const SelectColumns = `id, source_path, duration_seconds, hls_status, hls_progress_pct, hls_step,
	hls_error, hls_segments_generated, hls_segments_expected`

// Assignments lists the columns and values set by u, in a stable order.
func Assignments(u domain.HLSUpdate) (columns []string, args []any) {
	if u.DurationSeconds != nil {
		columns = append(columns, "duration_seconds")
		args = append(args, *u.DurationSeconds)
	}
	if u.Status != nil {
		columns = append(columns, "hls_status")
		args = append(args, string(*u.Status))
	}
	if u.ProgressPct != nil {
		columns = append(columns, "hls_progress_pct")
		args = append(args, *u.ProgressPct)
	}
	if u.Step != nil {
		columns = append(columns, "hls_step")
		args = append(args, string(*u.Step))
	}
	if u.Error != nil {
		columns = append(columns, "hls_error")
		args = append(args, *u.Error)
	}
	if u.SegmentsGenerated != nil {
		columns = append(columns, "hls_segments_generated")
		args = append(args, *u.SegmentsGenerated)
	}
	if u.SegmentsExpected != nil {
		columns = append(columns, "hls_segments_expected")
		args = append(args, *u.SegmentsExpected)
	}
	return columns, args
}

// Row is the scan target for SelectColumns.
type Row struct {
	ID                string
	SourcePath        string
	DurationSeconds   int64
	Status            string
	ProgressPct       int64
	Step              string
	Error             string
	SegmentsGenerated int64
	SegmentsExpected  int64
}

func (r *Row) ScanTargets() []any {
	return []any{
		&r.ID,
		&r.SourcePath,
		&r.DurationSeconds,
		&r.Status,
		&r.ProgressPct,
		&r.Step,
		&r.Error,
		&r.SegmentsGenerated,
		&r.SegmentsExpected,
	}
}

func (r *Row) MediaItem() *domain.MediaItem {
	return &domain.MediaItem{
		ID:                r.ID,
		SourcePath:        r.SourcePath,
		DurationSeconds:   int(r.DurationSeconds),
		HLSStatus:         domain.HLSStatus(r.Status),
		HLSProgressPct:    int(r.ProgressPct),
		HLSStep:           domain.Step(r.Step),
		HLSError:          r.Error,
		SegmentsGenerated: int(r.SegmentsGenerated),
		SegmentsExpected:  int(r.SegmentsExpected),
	}
}
