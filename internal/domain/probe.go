package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxDurationSeconds bounds a probed duration. Longer values come from
// corrupt containers and are treated as unknown.
const MaxDurationSeconds = 30 * 24 * 60 * 60

type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ProbeResult struct {
	Format ProbeFormat `json:"format"`
}

// DurationSeconds returns the whole number of seconds reported by the
// container, or 0 when unknown.
func (p *ProbeResult) DurationSeconds() int {
	if p == nil {
		return 0
	}
	seconds := ParseDuration(p.Format.Duration)
	if seconds <= 0 || seconds > MaxDurationSeconds {
		return 0
	}
	return int(seconds)
}

func ParseDuration(durationStr string) float64 {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" || durationStr == "N/A" {
		return 0
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0
	}
	return duration
}

// ParseClock parses an HH:MM:SS.ffffff position as printed by ffmpeg.
func ParseClock(clock string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	return float64(hours*3600+minutes*60) + seconds, true
}

func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "--:--"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
