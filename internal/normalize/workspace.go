package normalize

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	suffixCompressed = "_compressed"
	suffixRemuxed    = "_remuxed"
	suffixRepaired   = "_repaired"
	outputExt        = ".mp4"
)

// Workspace holds the deterministic file names derived from one source.
// Two runs over the same source name share these paths and must not
// overlap.
type Workspace struct {
	Source     string
	Compressed string
	Remuxed    string
	Repaired   string
}

// NewWorkspace derives sibling file names for source in its own directory.
func NewWorkspace(source string) Workspace {
	dir := filepath.Dir(source)
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	derive := func(suffix string) string {
		return filepath.Join(dir, stem+suffix+outputExt)
	}
	return Workspace{
		Source:     source,
		Compressed: derive(suffixCompressed),
		Remuxed:    derive(suffixRemuxed),
		Repaired:   derive(suffixRepaired),
	}
}

// Intermediates lists the files that must never outlive a run.
func (w Workspace) Intermediates() []string {
	return []string{w.Remuxed, w.Repaired}
}

// RemoveIntermediates deletes every intermediate file. Failures are logged.
func (w Workspace) RemoveIntermediates(logger *zap.Logger) {
	for _, p := range w.Intermediates() {
		removeQuietly(p, logger)
	}
}

// RemoveCandidate deletes the compressed candidate if it exists.
func (w Workspace) RemoveCandidate(logger *zap.Logger) {
	removeQuietly(w.Compressed, logger)
}

// removeFile deletes path, treating a missing file as success.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func removeQuietly(path string, logger *zap.Logger) {
	if err := removeFile(path); err != nil {
		logger.Warn("failed to remove transient file", zap.String("path", path), zap.Error(err))
	}
}
