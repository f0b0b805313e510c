package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/your-org/videonorm/internal/ffmpeg"
	"github.com/your-org/videonorm/internal/normalize"
	"github.com/your-org/videonorm/internal/routing"
	"github.com/your-org/videonorm/pkg/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const h264ProbeJSON = `{
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.5"},
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ]
}`

// stubRunner answers ffprobe with probe and every ffmpeg call with transcode.
type stubRunner struct {
	mu        sync.Mutex
	probe     ffmpeg.Result
	transcode func(args []string) ffmpeg.Result
	calls     []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ffmpeg.Result {
	s.mu.Lock()
	s.calls = append(s.calls, name+" "+strings.Join(args, " "))
	s.mu.Unlock()
	if name == "ffprobe" {
		return s.probe
	}
	return s.transcode(args)
}

func (s *stubRunner) transcodeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, "ffmpeg ") {
			n++
		}
	}
	return n
}

func writeOutput(args []string) ffmpeg.Result {
	_ = os.WriteFile(args[len(args)-1], []byte("encoded-bytes"), 0o644)
	return ffmpeg.Result{}
}

func failWith(stderr string) func([]string) ffmpeg.Result {
	return func([]string) ffmpeg.Result {
		return ffmpeg.Result{ExitCode: 1, Stderr: stderr, Err: errors.New("exit status 1")}
	}
}

type fakePlacer struct {
	decision *routing.Decision
	err      error
	got      []normalize.Artifact
}

func (f *fakePlacer) Route(_ context.Context, a normalize.Artifact) (*routing.Decision, error) {
	f.got = append(f.got, a)
	if f.err != nil {
		return nil, f.err
	}
	if err := os.Remove(a.Path); err != nil {
		return nil, err
	}
	return f.decision, nil
}

type fakePublisher struct {
	events  []Event
	headers []map[string]string
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, key []byte, value []byte, headers map[string]string) error {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	if string(key) != ev.RunID {
		return fmt.Errorf("key %q does not match run id %q", key, ev.RunID)
	}
	f.events = append(f.events, ev)
	f.headers = append(f.headers, headers)
	return f.err
}

func writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func mp4Header() []byte {
	return append([]byte{0x00, 0x00, 0x00, 0x20}, []byte("ftypisom\x00\x00\x02\x00isomiso2avc1mp41")...)
}

func assertDirHasOnly(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.ElementsMatch(t, names, got)
}

func newTestService(r ffmpeg.Runner, placer Placer, pub Publisher, rec *metrics.Recorder) *Service {
	return NewService(Params{
		Runner:      r,
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Placer:      placer,
		Publisher:   pub,
		Metrics:     rec,
	})
}

func TestProcess_Success(t *testing.T) {
	src := writeSource(t, "clip.mp4", mp4Header())
	runner := &stubRunner{probe: ffmpeg.Result{Stdout: []byte(h264ProbeJSON)}, transcode: writeOutput}
	placer := &fakePlacer{decision: &routing.Decision{Destination: routing.DestinationCDN, Locator: "https://res.example.com/clip.mp4"}}
	pub := &fakePublisher{}
	rec := metrics.NewRecorder()

	out, err := newTestService(runner, placer, pub, rec).Process(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, normalize.StrategyStandard, out.Strategy)
	assert.Len(t, out.Attempts, 1)
	assert.Equal(t, "https://res.example.com/clip.mp4", out.Decision.Locator)
	assert.NotEmpty(t, out.RunID)

	require.Len(t, placer.got, 1)
	assert.Equal(t, filepath.Join(filepath.Dir(src), "clip_compressed.mp4"), placer.got[0].Path)
	assert.Equal(t, int64(len("encoded-bytes")), placer.got[0].Size)

	sum := sha256.Sum256([]byte("encoded-bytes"))
	assert.Equal(t, hex.EncodeToString(sum[:]), out.Checksum)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, EventNormalized, ev.Type)
	assert.Equal(t, out.RunID, ev.RunID)
	assert.Equal(t, "cdn", ev.Destination)
	assert.Equal(t, out.Checksum, ev.Checksum)
	assert.Equal(t, EventNormalized, pub.headers[0]["event_type"])

	assertDirHasOnly(t, filepath.Dir(src), "clip.mp4")
	count, err := testutil.GatherAndCount(rec.Registry(), "videonorm_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcess_SeedFixtureExhaustionIsSkippable(t *testing.T) {
	// Truncated mid-header: no moov atom will ever be found.
	src := writeSource(t, "foo_seed.mp4", mp4Header()[:12])
	runner := &stubRunner{
		probe:     ffmpeg.Result{ExitCode: 1, Stderr: "foo_seed.mp4: moov atom not found", Err: errors.New("exit status 1")},
		transcode: failWith("[mov,mp4,m4a,3gp,3g2,mj2 @ 0x1] moov atom not found\nfoo_seed.mp4: Invalid data found when processing input"),
	}
	placer := &fakePlacer{}
	pub := &fakePublisher{}

	_, err := newTestService(runner, placer, pub, nil).Process(context.Background(), src)
	require.Error(t, err)
	assert.True(t, normalize.IsSkippable(err))
	assert.Contains(t, err.Error(), "consider removing it from the seed data")

	var ex *normalize.ExhaustedError
	require.ErrorAs(t, err, &ex)
	ids := make([]normalize.StrategyID, 0, len(ex.Attempts))
	for _, a := range ex.Attempts {
		ids = append(ids, a.Strategy)
	}
	assert.Equal(t, []normalize.StrategyID{
		normalize.StrategyStandard,
		normalize.StrategyMoovRecovery,
		normalize.StrategyRepair,
		normalize.StrategyAggressive,
		normalize.StrategyRawExtract,
	}, ids)

	assert.Empty(t, placer.got)
	assertDirHasOnly(t, filepath.Dir(src), "foo_seed.mp4")

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventFailed, pub.events[0].Type)
	assert.True(t, pub.events[0].Skippable)
	assert.Equal(t, 5, pub.events[0].Attempts)
}

func TestProcess_ExhaustionOfRegularFileIsFatal(t *testing.T) {
	src := writeSource(t, "holiday.mp4", mp4Header())
	runner := &stubRunner{
		probe: ffmpeg.Result{Stdout: []byte(h264ProbeJSON)},
		transcode: func(args []string) ffmpeg.Result {
			// Leave partial outputs behind the way a crashing encoder does.
			_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
			return ffmpeg.Result{ExitCode: 1, Stderr: "Conversion failed!", Err: errors.New("exit status 1")}
		},
	}
	rec := metrics.NewRecorder()

	_, err := newTestService(runner, &fakePlacer{}, nil, rec).Process(context.Background(), src)
	require.Error(t, err)
	assert.False(t, normalize.IsSkippable(err))

	var ex *normalize.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, normalize.StrategyRawExtract, ex.Last.Strategy)
	assertDirHasOnly(t, filepath.Dir(src), "holiday.mp4")
	count, err := testutil.GatherAndCount(rec.Registry(), "videonorm_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcess_ValidationErrorRunsNothing(t *testing.T) {
	src := writeSource(t, "empty.mp4", nil)
	runner := &stubRunner{transcode: writeOutput}
	pub := &fakePublisher{}

	_, err := newTestService(runner, &fakePlacer{}, pub, nil).Process(context.Background(), src)
	var verr *normalize.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, normalize.ErrEmptySource)
	assert.Empty(t, runner.calls)
	require.Len(t, pub.events, 1)
	assert.False(t, pub.events[0].Skippable)
}

func TestProcess_RouteFailurePropagates(t *testing.T) {
	src := writeSource(t, "clip.mp4", mp4Header())
	runner := &stubRunner{probe: ffmpeg.Result{Stdout: []byte(h264ProbeJSON)}, transcode: writeOutput}
	routeErr := &routing.UploadError{Kind: routing.UploadGeneric, Destination: routing.DestinationCDN, Err: errors.New("401 Invalid Signature")}
	pub := &fakePublisher{}

	_, err := newTestService(runner, &fakePlacer{err: routeErr}, pub, nil).Process(context.Background(), src)
	var uerr *routing.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.False(t, normalize.IsSkippable(err))
	require.Len(t, pub.events, 1)
	assert.Equal(t, EventFailed, pub.events[0].Type)
}

func TestProcess_PublishFailureDoesNotFailRun(t *testing.T) {
	src := writeSource(t, "clip.mp4", mp4Header())
	runner := &stubRunner{probe: ffmpeg.Result{Stdout: []byte(h264ProbeJSON)}, transcode: writeOutput}
	placer := &fakePlacer{decision: &routing.Decision{Destination: routing.DestinationLocalPublic, Locator: "/videos/clip_compressed.mp4"}}

	out, err := newTestService(runner, placer, &fakePublisher{err: errors.New("broker down")}, nil).Process(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "/videos/clip_compressed.mp4", out.Decision.Locator)
	assert.Equal(t, 1, runner.transcodeCalls())
}

func TestRunOutcome(t *testing.T) {
	tests := map[string]error{
		"invalid":   &normalize.ValidationError{Path: "x", Err: normalize.ErrEmptySource},
		"skipped":   &normalize.ExhaustedError{Source: "a_seed.mp4", Skippable: true},
		"exhausted": &normalize.ExhaustedError{Source: "a.mp4"},
		"failed":    errors.New("boom"),
	}
	for want, err := range tests {
		assert.Equal(t, want, runOutcome(err))
	}
}
