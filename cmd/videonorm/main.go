// videonorm normalizes one video file into a web-compatible MP4 and places
// it on the CDN, the object store, or the local public directory.
//
// Usage:
//
//	videonorm <path/to/video>
//
// The resulting locator is printed to stdout. Exit codes: 0 success, 1 usage
// error, 2 failure, 3 corrupted seed file that may be skipped.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/videonorm/internal/ffmpeg"
	"github.com/your-org/videonorm/internal/normalize"
	"github.com/your-org/videonorm/internal/pipeline"
	"github.com/your-org/videonorm/internal/routing"
	"github.com/your-org/videonorm/pkg/cdn"
	"github.com/your-org/videonorm/pkg/config"
	"github.com/your-org/videonorm/pkg/kafka"
	"github.com/your-org/videonorm/pkg/logger"
	"github.com/your-org/videonorm/pkg/metrics"
	"github.com/your-org/videonorm/pkg/storage/objectstore"
	"github.com/your-org/videonorm/pkg/tracing"
)

const (
	exitOK        = 0
	exitUsage     = 1
	exitFailure   = 2
	exitSkippable = 3
)

// version is set at build time via -ldflags.
var version = "dev"

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type runFunc func(ctx context.Context, stdout io.Writer, source string) error

func newRootCmd(run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "videonorm <video>",
		Short:   "Normalize a video into a web-compatible MP4 and publish it",
		Version: version,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	return cmd
}

func exitCode(err error) int {
	var uerr *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr):
		return exitUsage
	case normalize.IsSkippable(err):
		return exitSkippable
	default:
		return exitFailure
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cmd := newRootCmd(run)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(os.Stderr, "%v\n%s", err, cmd.UsageString())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	stop()
	os.Exit(exitCode(err))
}

func run(ctx context.Context, stdout io.Writer, source string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.LogEncoding)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     tracing.ParseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := traceShutdown(context.Background()); err != nil {
			logr.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	rec := metrics.NewRecorder()
	defer func() {
		if err := rec.Push(context.Background(), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			logr.Warn("metrics push failed", zap.Error(err))
		}
	}()

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		BatchSize:    1,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})
	defer func() {
		if err := producer.Close(context.Background()); err != nil {
			logr.Warn("kafka producer close failed", zap.Error(err))
		}
	}()
	var publisher pipeline.Publisher
	if producer != nil {
		publisher = producer
	}

	store, err := objectstore.New(objectstore.Config{
		Provider:      cfg.Storage.Provider,
		Endpoint:      cfg.Storage.Endpoint,
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	router := routing.NewRouter(routing.Params{
		CDN: cdn.New(cdn.Config{
			CloudName:    cfg.CDN.CloudName,
			APIKey:       cfg.CDN.APIKey,
			APISecret:    cfg.CDN.APISecret,
			UploadPrefix: cfg.CDN.UploadPrefix,
			Folder:       cfg.CDN.Folder,
			Timeout:      cfg.CDN.Timeout,
		}),
		Store: store,
		Config: routing.Config{
			CDNMaxBytes:     cfg.CDN.MaxBytes,
			Folder:          cfg.Storage.Folder,
			PublicDir:       publicDir(cfg.App.Root, cfg.Public.Dir),
			PublicURLPrefix: cfg.Public.URLPrefix,
			Signals: routing.Signals{
				Mode:        cfg.Deploy.Mode,
				Environment: cfg.Deploy.Environment,
				Env:         cfg.Deploy.Env,
				DatabaseURL: cfg.Deploy.DatabaseURL,
				ProdMarkers: cfg.Deploy.ProdMarkers,
			},
		},
		Logger:  logr,
		Metrics: rec,
	})

	var tee io.Writer
	if cfg.Tools.StreamStderr {
		tee = os.Stderr
	}
	svc := pipeline.NewService(pipeline.Params{
		Runner:       ffmpeg.NewExecRunner(tee),
		FFmpegPath:   cfg.Tools.FFmpegPath,
		FFprobePath:  cfg.Tools.FFprobePath,
		ProbeTimeout: cfg.Tools.ProbeTimeout,
		Placer:       router,
		Publisher:    publisher,
		Logger:       logr,
		Metrics:      rec,
	})

	out, err := svc.Process(ctx, source)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out.Decision.Locator)
	return nil
}

func publicDir(root, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
