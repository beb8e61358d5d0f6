package domain

import (
	"strings"
)

type HLSStatus string

const (
	HLSStatusPending    HLSStatus = "pending"
	HLSStatusMissing    HLSStatus = "missing"
	HLSStatusProcessing HLSStatus = "processing"
	HLSStatusComplete   HLSStatus = "complete"
	HLSStatusFailed     HLSStatus = "failed"
)

// IsTerminal reports whether no further transition is expected without a
// new submission.
func (s HLSStatus) IsTerminal() bool {
	return s == HLSStatusComplete || s == HLSStatusFailed
}

type Step string

const (
	StepPending    Step = "pending"
	StepQueued     Step = "queued"
	StepStarting   Step = "starting"
	StepEncoding   Step = "encoding"
	StepFinalizing Step = "finalizing"
	StepDone       Step = "done"
	StepError      Step = "error"
	StepMissing    Step = "missing"
)

// MediaItem is the slice of a stored media row the pipeline reads and
// mutates. Only the HLS fields are ever written by the pipeline.
type MediaItem struct {
	ID                string    `json:"id"`
	SourcePath        string    `json:"source_path"`
	DurationSeconds   int       `json:"duration_seconds"`
	HLSStatus         HLSStatus `json:"hls_status"`
	HLSProgressPct    int       `json:"hls_progress_pct"`
	HLSStep           Step      `json:"hls_step"`
	HLSError          string    `json:"hls_error"`
	SegmentsGenerated int       `json:"segments_generated"`
	SegmentsExpected  int       `json:"segments_expected"`
}

func NewMediaItem(id, sourcePath string, durationSeconds int) *MediaItem {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return &MediaItem{
		ID:              id,
		SourcePath:      sourcePath,
		DurationSeconds: durationSeconds,
		HLSStatus:       HLSStatusPending,
		HLSStep:         StepPending,
	}
}

// Job builds the encode job for this item.
func (m *MediaItem) Job() EncodeJob {
	return EncodeJob{
		MediaID:              m.ID,
		SourcePath:           m.SourcePath,
		KnownDurationSeconds: m.DurationSeconds,
	}
}

// Apply copies every field set in u onto the item.
func (m *MediaItem) Apply(u HLSUpdate) {
	if u.DurationSeconds != nil {
		m.DurationSeconds = *u.DurationSeconds
	}
	if u.Status != nil {
		m.HLSStatus = *u.Status
	}
	if u.ProgressPct != nil {
		m.HLSProgressPct = *u.ProgressPct
	}
	if u.Step != nil {
		m.HLSStep = *u.Step
	}
	if u.Error != nil {
		m.HLSError = *u.Error
	}
	if u.SegmentsGenerated != nil {
		m.SegmentsGenerated = *u.SegmentsGenerated
	}
	if u.SegmentsExpected != nil {
		m.SegmentsExpected = *u.SegmentsExpected
	}
}

// WithLive returns a copy of the item with the live progress record laid
// over the persisted HLS fields. The live record wins whenever present.
func (m *MediaItem) WithLive(rec *ProgressRecord) MediaItem {
	merged := *m
	if rec == nil {
		return merged
	}
	merged.HLSStatus = rec.Status
	merged.HLSProgressPct = rec.ProgressPct
	merged.HLSStep = rec.Step
	merged.HLSError = rec.Error
	merged.SegmentsGenerated = rec.SegmentsGenerated
	merged.SegmentsExpected = rec.SegmentsExpected
	return merged
}

// Progress returns the item's HLS fields in the shape of a live record.
func (m *MediaItem) Progress() ProgressRecord {
	return ProgressRecord{
		Status:            m.HLSStatus,
		ProgressPct:       m.HLSProgressPct,
		Step:              m.HLSStep,
		Error:             m.HLSError,
		SegmentsGenerated: m.SegmentsGenerated,
		SegmentsExpected:  m.SegmentsExpected,
	}
}

// ValidateID rejects identifiers that cannot safely name a directory under
// the HLS root.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" || id == "." || id == ".." {
		return ErrInvalidID
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return ErrInvalidID
	}
	return nil
}
