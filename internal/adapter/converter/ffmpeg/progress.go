package ffmpeg

import (
	"strconv"
	"strings"

	"github.com/bnema/hlsd/internal/domain"
)

// ParseProgressLine recognizes the subset of ffmpeg's -progress output the
// pipeline acts on. Anything else, including the stderr text interleaved on
// the same stream, is reported as unrecognized.
func ParseProgressLine(line string) (domain.ProgressEvent, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return domain.ProgressEvent{}, false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch key {
	// out_time_ms is microseconds too; ffmpeg kept the name for compatibility.
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return domain.ProgressEvent{}, false
		}
		return domain.ProgressEvent{
			Kind:           domain.ProgressElapsed,
			ElapsedSeconds: float64(us) / 1_000_000,
		}, true
	case "out_time":
		seconds, ok := domain.ParseClock(value)
		if !ok || seconds < 0 {
			return domain.ProgressEvent{}, false
		}
		return domain.ProgressEvent{Kind: domain.ProgressElapsed, ElapsedSeconds: seconds}, true
	case "progress":
		switch value {
		case "end":
			return domain.ProgressEvent{Kind: domain.ProgressEnd}, true
		case "continue":
			return domain.ProgressEvent{Kind: domain.ProgressContinue}, true
		}
	}
	return domain.ProgressEvent{}, false
}
