package normalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/videonorm/internal/ffmpeg"
)

// scripted is one canned process outcome.
type scripted struct {
	exit   int
	stderr string
	stdout string
	// write creates the last argument as a non-empty file, the way ffmpeg
	// leaves an output (complete or partial) behind.
	write bool
}

func ok() scripted { return scripted{write: true} }
func fail(stderr string) scripted { return scripted{exit: 1, stderr: stderr} }
func partial(stderr string) scripted { return scripted{exit: 1, stderr: stderr, write: true} }

// fakeRunner replays scripted outcomes in call order and records every call.
type fakeRunner struct {
	mu     sync.Mutex
	script []scripted
	calls  [][]string
}

func newFakeRunner(script ...scripted) *fakeRunner {
	return &fakeRunner{script: script}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ffmpeg.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string{name}, args...))
	if len(f.script) == 0 {
		return ffmpeg.Result{ExitCode: 1, Stderr: "unscripted call", Err: fmt.Errorf("exit status 1")}
	}
	s := f.script[0]
	f.script = f.script[1:]

	if s.write && len(args) > 0 {
		_ = os.WriteFile(args[len(args)-1], []byte("fake-video-bytes"), 0o644)
	}
	res := ffmpeg.Result{ExitCode: s.exit, Stderr: s.stderr, Stdout: []byte(s.stdout)}
	if s.exit != 0 {
		res.Err = fmt.Errorf("exit status %d", s.exit)
	}
	return res
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) call(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.calls[i], " ")
}

// writeSource creates a small file with an ISO BMFF header.
func writeSource(t *testing.T, dir, name string) SourceVideo {
	t.Helper()
	path := filepath.Join(dir, name)
	data := append([]byte{0x00, 0x00, 0x00, 0x20}, []byte("ftypisom....................")...)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	src, err := Validate(path)
	require.NoError(t, err)
	return src
}

func strategyIDs(attempts []Attempt) []StrategyID {
	ids := make([]StrategyID, 0, len(attempts))
	for _, a := range attempts {
		ids = append(ids, a.Strategy)
	}
	return ids
}

func assertNoIntermediates(t *testing.T, ws Workspace) {
	t.Helper()
	for _, p := range ws.Intermediates() {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), "intermediate %s should not exist", filepath.Base(p))
	}
}
