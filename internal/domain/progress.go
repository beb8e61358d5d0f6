package domain

// ProgressRecord is the live, process-local view of an encode.
type ProgressRecord struct {
	Status            HLSStatus `json:"status"`
	ProgressPct       int       `json:"progress_pct"`
	Step              Step      `json:"step"`
	Error             string    `json:"error"`
	SegmentsGenerated int       `json:"segments_generated"`
	SegmentsExpected  int       `json:"segments_expected"`
}

// Apply merges the fields set in u into the record. Fields u leaves nil keep
// their previous value, so a failure update keeps the last known percentage.
func (r *ProgressRecord) Apply(u HLSUpdate) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.ProgressPct != nil {
		r.ProgressPct = *u.ProgressPct
	}
	if u.Step != nil {
		r.Step = *u.Step
	}
	if u.Error != nil {
		r.Error = *u.Error
	}
	if u.SegmentsGenerated != nil {
		r.SegmentsGenerated = *u.SegmentsGenerated
	}
	if u.SegmentsExpected != nil {
		r.SegmentsExpected = *u.SegmentsExpected
	}
}

// HLSUpdate is a partial update of the HLS fields of a media item. Nil
// fields are left untouched; an empty Error clears the stored message.
type HLSUpdate struct {
	DurationSeconds   *int
	Status            *HLSStatus
	ProgressPct       *int
	Step              *Step
	Error             *string
	SegmentsGenerated *int
	SegmentsExpected  *int
}

func (u HLSUpdate) IsEmpty() bool {
	return u.DurationSeconds == nil &&
		u.Status == nil &&
		u.ProgressPct == nil &&
		u.Step == nil &&
		u.Error == nil &&
		u.SegmentsGenerated == nil &&
		u.SegmentsExpected == nil
}

// WithState sets the segment counts from an inspection.
func (u HLSUpdate) WithState(state HLSState) HLSUpdate {
	u.SegmentsGenerated = Ptr(state.SegmentsGenerated)
	u.SegmentsExpected = Ptr(state.SegmentsExpected)
	return u
}

// HLSState is what the filesystem says about an item's HLS output.
type HLSState struct {
	Status            HLSStatus `json:"status"`
	SegmentsGenerated int       `json:"segments_generated"`
	SegmentsExpected  int       `json:"segments_expected"`
}

func Ptr[T any](v T) *T {
	return &v
}
