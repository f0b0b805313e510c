// Package pipeline drives a single normalization run: validate, probe,
// escalate, route, and report.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/videonorm/internal/ffmpeg"
	"github.com/your-org/videonorm/internal/normalize"
	"github.com/your-org/videonorm/internal/routing"
	"github.com/your-org/videonorm/pkg/metrics"
)

const tracerName = "github.com/your-org/videonorm/internal/pipeline"

// Placer routes a finished artifact to its permanent location.
type Placer interface {
	Route(ctx context.Context, a normalize.Artifact) (*routing.Decision, error)
}

// Publisher emits run events. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
}

// Service wires the normalization stages together for one source file.
type Service struct {
	prober    *normalize.Prober
	engine    *normalize.Engine
	placer    Placer
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

type Params struct {
	Runner       ffmpeg.Runner
	FFmpegPath   string
	FFprobePath  string
	ProbeTimeout time.Duration
	Placer       Placer
	Publisher    Publisher
	Logger       *zap.Logger
	Metrics      *metrics.Recorder
}

// Outcome describes a successful run.
type Outcome struct {
	RunID    string
	Decision routing.Decision
	Strategy normalize.StrategyID
	Attempts []normalize.Attempt
	Size     int64
	Checksum string
}

// NewService constructs a pipeline Service.
func NewService(p Params) *Service {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.FFprobePath == "" {
		p.FFprobePath = "ffprobe"
	}
	return &Service{
		prober: normalize.NewProber(p.Runner, p.FFprobePath, p.ProbeTimeout, p.Logger),
		engine: normalize.NewEngine(normalize.EngineParams{
			Runner:  p.Runner,
			Binary:  p.FFmpegPath,
			Logger:  p.Logger,
			Metrics: p.Metrics,
		}),
		placer:    p.Placer,
		publisher: p.Publisher,
		logger:    p.Logger,
		metrics:   p.Metrics,
	}
}

// Process normalizes the file at path and places the result. Intermediates
// are removed on every return path. An exhausted seed fixture is returned as
// a skippable *normalize.ExhaustedError.
func (s *Service) Process(ctx context.Context, path string) (*Outcome, error) {
	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID), zap.String("source", path))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID), attribute.String("source", filepath.Base(path)))

	out, err := s.process(ctx, runID, path, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveRun(runOutcome(err))
		s.publish(ctx, logger, failedEvent(runID, path, err))
		return nil, err
	}
	s.metrics.ObserveRun("succeeded")
	s.publish(ctx, logger, normalizedEvent(runID, path, out))
	return out, nil
}

func (s *Service) process(ctx context.Context, runID, path string, logger *zap.Logger) (*Outcome, error) {
	src, err := normalize.Validate(path)
	if err != nil {
		logger.Error("source rejected", zap.Error(err))
		return nil, err
	}
	logger.Info("source accepted",
		zap.Int64("bytes", src.Size),
		zap.String("container", string(src.Container)))
	if src.Container == normalize.ContainerUnknown {
		logger.Warn("unrecognized container header", zap.Binary("header", src.Header))
	}

	probe := s.prober.WithLogger(logger).Probe(ctx, src)

	ws := normalize.NewWorkspace(src.Path)
	defer ws.RemoveIntermediates(logger)

	engine := s.engine.WithLogger(logger)
	res, err := engine.Run(ctx, normalize.Input{Source: src, Probe: probe, Workspace: ws})
	if err != nil {
		ws.RemoveCandidate(logger)
		var ex *normalize.ExhaustedError
		if errors.As(err, &ex) {
			ex.Skippable = normalize.IsSeedFixture(src.Path)
		}
		return nil, err
	}
	s.metrics.ObserveArtifact(res.Artifact.Size)

	out := &Outcome{
		RunID:    runID,
		Strategy: res.Strategy,
		Attempts: res.Attempts,
		Size:     res.Artifact.Size,
	}
	// Routing may delete or move the artifact, so hash it first.
	if s.publisher != nil {
		sum, err := checksum(res.Artifact.Path)
		if err != nil {
			logger.Warn("checksum artifact", zap.Error(err))
		}
		out.Checksum = sum
	}

	decision, err := s.placer.Route(ctx, res.Artifact)
	if err != nil {
		logger.Error("route artifact", zap.Error(err))
		return nil, fmt.Errorf("route artifact: %w", err)
	}
	out.Decision = *decision
	return out, nil
}

func (s *Service) publish(ctx context.Context, logger *zap.Logger, ev Event) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("marshal run event", zap.Error(err))
		return
	}
	headers := map[string]string{
		"run_id":     ev.RunID,
		"event_type": ev.Type,
	}
	// The artifact is already placed; a lost event does not fail the run.
	if err := s.publisher.Publish(ctx, []byte(ev.RunID), payload, headers); err != nil {
		logger.Warn("publish run event", zap.String("event_type", ev.Type), zap.Error(err))
	}
}

func normalizedEvent(runID, path string, out *Outcome) Event {
	return Event{
		ID:          uuid.NewString(),
		RunID:       runID,
		Type:        EventNormalized,
		Source:      path,
		Strategy:    string(out.Strategy),
		Attempts:    len(out.Attempts),
		Destination: string(out.Decision.Destination),
		Locator:     out.Decision.Locator,
		SizeBytes:   out.Size,
		Checksum:    out.Checksum,
		CreatedAt:   time.Now().UTC(),
	}
}

func failedEvent(runID, path string, err error) Event {
	ev := Event{
		ID:        uuid.NewString(),
		RunID:     runID,
		Type:      EventFailed,
		Source:    path,
		Error:     err.Error(),
		Skippable: normalize.IsSkippable(err),
		CreatedAt: time.Now().UTC(),
	}
	var ex *normalize.ExhaustedError
	if errors.As(err, &ex) {
		ev.Attempts = len(ex.Attempts)
	}
	return ev
}

func runOutcome(err error) string {
	var (
		verr *normalize.ValidationError
		ex   *normalize.ExhaustedError
	)
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &ex) && ex.Skippable:
		return "skipped"
	case errors.As(err, &ex):
		return "exhausted"
	default:
		return "failed"
	}
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
