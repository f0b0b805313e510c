package normalize

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/videonorm/internal/ffmpeg"
	"github.com/your-org/videonorm/pkg/metrics"
)

const tracerName = "github.com/your-org/videonorm/internal/normalize"

// Attempt records one strategy invocation.
type Attempt struct {
	Strategy     StrategyID
	ExitStatus   int
	Stderr       string
	ProducedPath string
	Signature    ffmpeg.Signature
	Duration     time.Duration
}

// Succeeded reports whether the attempt produced an accepted artifact.
func (a Attempt) Succeeded() bool {
	return a.ProducedPath != ""
}

// Artifact is the single compressed file left on disk after success.
type Artifact struct {
	Path string
	Size int64
}

// Result is the outcome of a successful escalation run.
type Result struct {
	Artifact Artifact
	Strategy StrategyID
	Attempts []Attempt
}

// Engine walks the strategy catalog until one strategy produces an artifact.
type Engine struct {
	runner  ffmpeg.Runner
	binary  string
	catalog []Strategy
	logger  *zap.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

type EngineParams struct {
	Runner  ffmpeg.Runner
	Binary  string
	Catalog []Strategy
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// NewEngine constructs an Engine. A nil catalog uses Catalog().
func NewEngine(p EngineParams) *Engine {
	if p.Binary == "" {
		p.Binary = "ffmpeg"
	}
	if p.Catalog == nil {
		p.Catalog = Catalog()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Engine{
		runner:  p.Runner,
		binary:  p.Binary,
		catalog: p.Catalog,
		logger:  p.Logger,
		metrics: p.Metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// WithLogger returns a copy of e that logs to logger, typically one carrying
// run-scoped fields.
func (e *Engine) WithLogger(logger *zap.Logger) *Engine {
	cp := *e
	cp.logger = logger
	return &cp
}

// Run escalates through the catalog. On success exactly one file, the
// workspace's compressed candidate, remains. On failure none remains and an
// *ExhaustedError is returned.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	ws := in.Workspace
	// A crashed earlier run may have left files behind; steps that do not
	// pass -y would refuse to overwrite them.
	ws.RemoveCandidate(e.logger)
	ws.RemoveIntermediates(e.logger)

	var (
		attempts []Attempt
		prior    *Failure
		last     *AttemptFailure
	)
	for i := SelectInitial(e.catalog, in); i >= 0; i = nextStrategy(e.catalog, i, prior, in) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("transcode interrupted: %w", err)
		}

		s := &e.catalog[i]
		att, failure := e.attempt(ctx, s, in)
		attempts = append(attempts, att)

		if failure == nil {
			info, err := os.Stat(att.ProducedPath)
			if err != nil {
				return nil, fmt.Errorf("stat artifact: %w", err)
			}
			e.logger.Info("transcode succeeded",
				zap.String("strategy", string(s.ID)),
				zap.Int("attempts", len(attempts)),
				zap.Int64("bytes", info.Size()))
			return &Result{
				Artifact: Artifact{Path: att.ProducedPath, Size: info.Size()},
				Strategy: s.ID,
				Attempts: attempts,
			}, nil
		}

		last = failure
		prior = &Failure{Strategy: s.ID, Tier: s.Tier, Signature: att.Signature, Stderr: att.Stderr}
		e.logger.Info("strategy failed",
			zap.String("strategy", string(s.ID)),
			zap.String("step", failure.Step),
			zap.Int("exit_code", failure.ExitCode),
			zap.String("signature", string(att.Signature)))
		if s.Terminal {
			break
		}
	}

	e.logger.Error("all transcode strategies failed",
		zap.Int("attempts", len(attempts)),
		zap.String("final_stderr", truncate(stderrOf(last), 4096)))
	return nil, &ExhaustedError{Source: in.Source.Path, Attempts: attempts, Last: last}
}

// attempt runs every step of s. Intermediates are removed before returning
// regardless of outcome, and the candidate is removed when the strategy
// failed.
func (e *Engine) attempt(ctx context.Context, s *Strategy, in Input) (Attempt, *AttemptFailure) {
	ctx, span := e.tracer.Start(ctx, "normalize.strategy", trace.WithAttributes(
		attribute.String("strategy", string(s.ID)),
	))
	defer span.End()

	started := time.Now()
	steps := s.Build(in)
	att := Attempt{Strategy: s.ID}

	defer func() {
		for _, st := range steps {
			if st.Output != in.Workspace.Compressed {
				removeQuietly(st.Output, e.logger)
			}
		}
	}()

	var failure *AttemptFailure
	for _, st := range steps {
		e.logger.Info("strategy attempt",
			zap.String("strategy", string(s.ID)),
			zap.String("step", st.Name),
			zap.String("command", e.binary+" "+strings.Join(st.Args, " ")))

		res := e.runner.Run(ctx, e.binary, st.Args...)
		att.ExitStatus = res.ExitCode
		att.Stderr = res.Stderr
		if res.Failed() {
			failure = &AttemptFailure{Strategy: s.ID, Step: st.Name, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: res.Err}
			break
		}
		if !nonEmpty(st.Output) {
			failure = &AttemptFailure{
				Strategy: s.ID, Step: st.Name, ExitCode: res.ExitCode, Stderr: res.Stderr,
				Err: fmt.Errorf("step produced no output at %s", st.Output),
			}
			break
		}
	}

	att.Duration = time.Since(started)
	e.metrics.ObserveAttempt(string(s.ID), failure == nil, att.Duration)

	if failure != nil {
		att.Signature = ffmpeg.Classify(failure.Stderr)
		in.Workspace.RemoveCandidate(e.logger)
		span.SetAttributes(
			attribute.Int("exit_code", failure.ExitCode),
			attribute.String("signature", string(att.Signature)),
		)
		span.SetStatus(codes.Error, failure.Error())
		return att, failure
	}

	att.ProducedPath = in.Workspace.Compressed
	span.SetStatus(codes.Ok, "")
	return att, nil
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func stderrOf(f *AttemptFailure) string {
	if f == nil {
		return ""
	}
	return f.Stderr
}
