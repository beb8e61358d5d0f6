package port

import (
	"context"
	"os/exec"

	"github.com/bnema/hlsd/internal/domain"
)

type EncodeRequest struct {
	MediaID        string
	SourcePath     string
	OutputDir      string
	PlaylistPath   string
	SegmentPattern string
}

// Encoder builds the external process for one HLS encode and understands
// the progress lines that process writes to stdout.
type Encoder interface {
	Command(ctx context.Context, req EncodeRequest) (*exec.Cmd, error)
	ParseProgressLine(line string) (domain.ProgressEvent, bool)
}

type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (int, error)
}
