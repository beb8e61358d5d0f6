// Package hls knows where an item's HLS output lives and how to read its
// state back from disk.
package hls

import (
	"path/filepath"

	"github.com/bnema/hlsd/internal/domain"
)

const (
	PlaylistName   = "playlist.m3u8"
	SegmentExt     = ".ts"
	SegmentPattern = "%03d" + SegmentExt
	EndListTag     = "#EXT-X-ENDLIST"
)

// Layout maps media ids to their output directory under a fixed root.
type Layout struct {
	root string
}

func NewLayout(root string) Layout {
	return Layout{root: root}
}

func (l Layout) Root() string {
	return l.root
}

func (l Layout) Dir(id string) (string, error) {
	if err := domain.ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(l.root, id), nil
}

func (l Layout) PlaylistPath(id string) (string, error) {
	dir, err := l.Dir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PlaylistName), nil
}

func (l Layout) SegmentPath(id string) (string, error) {
	dir, err := l.Dir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SegmentPattern), nil
}
