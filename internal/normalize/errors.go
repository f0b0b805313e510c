package normalize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrEmptySource is wrapped by ValidationError when the source has no bytes.
var ErrEmptySource = errors.New("source file is empty")

// ValidationError reports a source that cannot enter the pipeline at all.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate source %q: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AttemptFailure is the failure of one strategy invocation. It only drives
// selection of the next strategy unless it was the last one tried.
type AttemptFailure struct {
	Strategy StrategyID
	Step     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *AttemptFailure) Error() string {
	return fmt.Sprintf("strategy %s step %s exited %d: %v", e.Strategy, e.Step, e.ExitCode, e.Err)
}

func (e *AttemptFailure) Unwrap() error { return e.Err }

// ExhaustedError reports that every eligible strategy failed. Skippable is
// set by the driver for seed fixtures that a batch may simply omit.
type ExhaustedError struct {
	Source    string
	Attempts  []Attempt
	Last      *AttemptFailure
	Skippable bool
}

func (e *ExhaustedError) Error() string {
	name := filepath.Base(e.Source)
	if e.Skippable {
		return fmt.Sprintf("video file %s is corrupted and cannot be processed; consider removing it from the seed data", name)
	}
	if e.Last != nil {
		return fmt.Sprintf("all %d transcode strategies failed for %s: %v", len(e.Attempts), name, e.Last)
	}
	return fmt.Sprintf("all transcode strategies failed for %s", name)
}

func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// IsSeedFixture reports whether path follows the seed-data naming
// convention, e.g. "intro_seed.mp4".
func IsSeedFixture(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(stem, "_seed")
}

// IsSkippable reports whether err is an exhaustion the caller may skip.
func IsSkippable(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex) && ex.Skippable
}
