package ffmpeg

import (
	"strings"

	"github.com/bnema/hlsd/internal/domain"
)

// validatePath rejects paths that would be passed to a subprocess verbatim
// but cannot name a real file.
func validatePath(path string) error {
	if path == "" {
		return domain.ErrEmptyPath
	}
	if strings.ContainsRune(path, '\x00') {
		return domain.ErrInvalidPath
	}
	return nil
}
