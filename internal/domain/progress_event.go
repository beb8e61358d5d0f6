package domain

type ProgressEventKind int

const (
	// ProgressElapsed carries the encoder's output position.
	ProgressElapsed ProgressEventKind = iota + 1
	// ProgressContinue marks the end of one progress block.
	ProgressContinue
	// ProgressEnd is the encoder's final progress block.
	ProgressEnd
)

// ProgressEvent is one recognized line of an encoder's progress stream.
type ProgressEvent struct {
	Kind           ProgressEventKind
	ElapsedSeconds float64
}

// PercentOf converts elapsed seconds into a running percentage, capped at 99
// because 100 is reserved for a confirmed completion.
func PercentOf(elapsedSeconds float64, durationSeconds int) int {
	if durationSeconds <= 0 {
		return 0
	}
	pct := int(elapsedSeconds / float64(durationSeconds) * 100)
	if pct < 0 {
		return 0
	}
	if pct > 99 {
		return 99
	}
	return pct
}
