// Package ffmpeg wraps the external ffmpeg/ffprobe processes: a narrow runner
// interface, stderr failure classification, and ffprobe JSON parsing.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
)

// Result holds the outcome of a single external process invocation.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   string
	// Err is non-nil when the process could not be started, was killed, or
	// exited non-zero.
	Err error
}

// Failed reports whether the invocation did not exit cleanly.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Runner runs an external command to completion and captures its exit status
// and output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// ExecRunner runs real binaries with os/exec.
type ExecRunner struct {
	// Tee, when set, receives a live copy of stderr.
	Tee io.Writer
}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner(tee io.Writer) *ExecRunner {
	return &ExecRunner{Tee: tee}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	// #nosec G204 - binary comes from config; args are built internally
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if r.Tee != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Tee)
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	res := Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.String(),
		Err:    err,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}
	return res
}
