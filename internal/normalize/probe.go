package normalize

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/videonorm/internal/ffmpeg"
)

// Validity is a tri-state probe verdict. Unknown means probing was not
// possible, which is distinct from the file being rejected.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

const codecAV1 = "av1"

// ProbeResult is the advisory outcome of inspecting a source.
type ProbeResult struct {
	PrimaryCodec string
	Validity     Validity
	Diagnostics  string
}

// IsAV1 reports whether the primary video stream was classified as AV1.
func (p ProbeResult) IsAV1() bool {
	return p.PrimaryCodec == codecAV1
}

// Prober runs ffprobe with a bounded timeout. It never fails the pipeline.
type Prober struct {
	runner  ffmpeg.Runner
	binary  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber constructs a Prober. A zero timeout defaults to ten seconds.
func NewProber(runner ffmpeg.Runner, binary string, timeout time.Duration, logger *zap.Logger) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{runner: runner, binary: binary, timeout: timeout, logger: logger}
}

// WithLogger returns a copy of p that logs to logger.
func (p *Prober) WithLogger(logger *zap.Logger) *Prober {
	cp := *p
	cp.logger = logger
	return &cp
}

// Probe inspects src. A missing tool or a timeout degrades to ValidityUnknown.
// A non-zero exit is invalid and leaves the codec unclassified, even when
// ffprobe managed to emit usable JSON.
func (p *Prober) Probe(ctx context.Context, src SourceVideo) ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res := p.runner.Run(probeCtx, p.binary, ffmpeg.ProbeArgs(src.Path)...)
	if res.Failed() && (res.ExitCode < 0 || errors.Is(probeCtx.Err(), context.DeadlineExceeded)) {
		p.logger.Warn("probe degraded, continuing without codec classification",
			zap.String("path", src.Path),
			zap.Int("exit_code", res.ExitCode),
			zap.Error(res.Err))
		return ProbeResult{Validity: ValidityUnknown, Diagnostics: res.Stderr}
	}

	out := ProbeResult{Validity: ValidityValid, Diagnostics: res.Stderr}
	info, err := ffmpeg.ParseProbe(res.Stdout)
	if err == nil && !res.Failed() {
		out.PrimaryCodec = info.VideoCodec
	}
	if res.Failed() || err != nil || info.FormatName == "" {
		out.Validity = ValidityInvalid
		p.logger.Warn("probe reported issues, file may be corrupted or have metadata issues",
			zap.String("path", src.Path),
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", truncate(res.Stderr, 4096)))
		return out
	}

	p.logger.Debug("probe ok",
		zap.String("path", src.Path),
		zap.String("format", info.FormatName),
		zap.String("video_codec", info.VideoCodec),
		zap.String("audio_codec", info.AudioCodec),
		zap.Float64("duration", info.Duration))
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
