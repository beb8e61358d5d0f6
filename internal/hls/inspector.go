package hls

import (
	"bufio"
	"os"
	"strings"

	"github.com/bnema/hlsd/internal/domain"
)

// Inspector derives an item's HLS status from the files on disk alone. It
// holds no state and is safe for concurrent use.
type Inspector struct {
	layout Layout
}

func NewInspector(layout Layout) *Inspector {
	return &Inspector{layout: layout}
}

func (i *Inspector) Layout() Layout {
	return i.layout
}

// Inspect classifies the output directory of id. Completion requires the
// playlist end marker, because the playlist is only finalized when a VOD
// encode ends; partial encodes are detected from segment files alone.
func (i *Inspector) Inspect(id string) domain.HLSState {
	missing := domain.HLSState{Status: domain.HLSStatusMissing}

	dir, err := i.layout.Dir(id)
	if err != nil {
		return missing
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return missing
	}

	generated := 0
	hasPlaylist := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == PlaylistName {
			hasPlaylist = true
			continue
		}
		if isSegmentName(name) {
			generated++
		}
	}

	if !hasPlaylist {
		return domain.HLSState{
			Status:            statusFromCounts(generated, 0),
			SegmentsGenerated: generated,
		}
	}

	playlistPath, _ := i.layout.PlaylistPath(id)
	expected, ended, err := scanPlaylist(playlistPath)
	if err != nil {
		return domain.HLSState{
			Status:            domain.HLSStatusProcessing,
			SegmentsGenerated: generated,
		}
	}

	status := statusFromCounts(generated, expected)
	if expected > 0 && ended && generated >= expected {
		status = domain.HLSStatusComplete
	}
	return domain.HLSState{
		Status:            status,
		SegmentsGenerated: generated,
		SegmentsExpected:  expected,
	}
}

func statusFromCounts(generated, expected int) domain.HLSStatus {
	if generated > 0 || expected > 0 {
		return domain.HLSStatusProcessing
	}
	return domain.HLSStatusMissing
}

func isSegmentName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), SegmentExt)
}

// scanPlaylist counts segment URIs and looks for the end marker.
func scanPlaylist(path string) (segments int, ended bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == EndListTag:
			ended = true
		case strings.HasPrefix(line, "#"):
		case isSegmentName(line):
			segments++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, false, err
	}
	return segments, ended, nil
}
