package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/port"
)

const (
	defaultSegmentSeconds = 6
	defaultPreset         = "veryfast"
	defaultCRF            = 20
	defaultAudioBitrate   = "160k"
)

type Options struct {
	Binary         string
	SegmentSeconds int
	Preset         string
	CRF            int
	AudioBitrate   string
}

// Encoder produces a single-rendition H.264/AAC VOD HLS output and reports
// progress as key=value lines on stdout.
type Encoder struct {
	binary         string
	segmentSeconds int
	preset         string
	crf            int
	audioBitrate   string
}

func NewEncoder(opts Options) *Encoder {
	e := &Encoder{
		binary:         strings.TrimSpace(opts.Binary),
		segmentSeconds: opts.SegmentSeconds,
		preset:         opts.Preset,
		crf:            opts.CRF,
		audioBitrate:   opts.AudioBitrate,
	}
	if e.binary == "" {
		e.binary = "ffmpeg"
	}
	if e.segmentSeconds <= 0 {
		e.segmentSeconds = defaultSegmentSeconds
	}
	if e.preset == "" {
		e.preset = defaultPreset
	}
	if e.crf <= 0 {
		e.crf = defaultCRF
	}
	if e.audioBitrate == "" {
		e.audioBitrate = defaultAudioBitrate
	}
	return e
}

func (e *Encoder) Command(ctx context.Context, req port.EncodeRequest) (*exec.Cmd, error) {
	if err := validatePath(req.SourcePath); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}
	if err := validatePath(req.PlaylistPath); err != nil {
		return nil, fmt.Errorf("invalid playlist path: %w", err)
	}
	if err := validatePath(req.SegmentPattern); err != nil {
		return nil, fmt.Errorf("invalid segment pattern: %w", err)
	}
	return exec.CommandContext(ctx, e.binary, e.args(req)...), nil
}

func (e *Encoder) args(req port.EncodeRequest) []string {
	return []string{
		"-y",
		"-i", req.SourcePath,
		"-c:v", "libx264",
		"-preset", e.preset,
		"-crf", strconv.Itoa(e.crf),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", e.audioBitrate,
		"-f", "hls",
		"-progress", "pipe:1",
		"-nostats",
		"-hls_time", strconv.Itoa(e.segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", req.SegmentPattern,
		req.PlaylistPath,
	}
}

func (e *Encoder) ParseProgressLine(line string) (domain.ProgressEvent, bool) {
	return ParseProgressLine(line)
}

var _ port.Encoder = (*Encoder)(nil)
