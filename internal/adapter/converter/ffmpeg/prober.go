package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/port"
)

const maxProbeTimeout = 30 * time.Second

type Prober struct {
	binary string
}

func NewProber(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

// ProbeDuration returns the container duration in whole seconds.
func (p *Prober) ProbeDuration(ctx context.Context, inputPath string) (int, error) {
	if err := validatePath(inputPath); err != nil {
		return 0, fmt.Errorf("invalid input path: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		inputPath,
	}
	cmd := exec.CommandContext(ctx, p.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return 0, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbeDuration(output)
}

func parseProbeDuration(output []byte) (int, error) {
	var result domain.ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return result.DurationSeconds(), nil
}

var _ port.DurationProber = (*Prober)(nil)
