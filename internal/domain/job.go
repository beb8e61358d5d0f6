package domain

// EncodeJob is the unit of work held by the queue. It lives from submission
// until a worker has finished supervising the encode.
type EncodeJob struct {
	MediaID              string
	SourcePath           string
	KnownDurationSeconds int
}
