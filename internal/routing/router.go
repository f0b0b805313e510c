// Package routing places a finished artifact in its permanent home: the CDN
// for small files, the object store for large files in production, and a
// local public directory otherwise.
package routing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/videonorm/internal/normalize"
	"github.com/your-org/videonorm/pkg/cdn"
	"github.com/your-org/videonorm/pkg/metrics"
	"github.com/your-org/videonorm/pkg/storage/objectstore"
)

const tracerName = "github.com/your-org/videonorm/internal/routing"

// DefaultCDNMaxBytes is the nominal CDN upload ceiling (100 MiB).
const DefaultCDNMaxBytes int64 = 100 * 1024 * 1024

type Destination string

const (
	DestinationCDN         Destination = "cdn"
	DestinationObjectStore Destination = "object_store"
	DestinationLocalPublic Destination = "local_public"
)

// Decision is where the artifact ended up.
type Decision struct {
	Destination Destination
	Locator     string
}

// Uploader is the CDN capability the router needs.
type Uploader interface {
	Upload(ctx context.Context, path string) (*cdn.Result, error)
}

type Config struct {
	CDNMaxBytes     int64
	Folder          string // object store key prefix
	PublicDir       string
	PublicURLPrefix string
	Signals         Signals
}

// Router decides and performs the placement of one artifact.
type Router struct {
	cdn     Uploader
	store   objectstore.Client
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Recorder
}

type Params struct {
	CDN     Uploader
	Store   objectstore.Client
	Config  Config
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

func NewRouter(p Params) *Router {
	if p.Config.CDNMaxBytes <= 0 {
		p.Config.CDNMaxBytes = DefaultCDNMaxBytes
	}
	if p.Config.PublicURLPrefix == "" {
		p.Config.PublicURLPrefix = "/videos"
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Router{
		cdn:     p.CDN,
		store:   p.Store,
		cfg:     p.Config,
		logger:  p.Logger,
		metrics: p.Metrics,
	}
}

// Route places the artifact and returns its locator. Exactly one of CDN
// upload plus local delete, object store upload, or move into the public
// directory happens. The object store path leaves the local file in place.
func (r *Router) Route(ctx context.Context, a normalize.Artifact) (*Decision, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "routing.route")
	defer span.End()
	span.SetAttributes(attribute.Int64("artifact.bytes", a.Size))

	d, err := r.route(ctx, a)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("destination", string(d.Destination)))
	r.metrics.ObserveRoute(string(d.Destination))
	r.logger.Info("artifact placed",
		zap.String("destination", string(d.Destination)),
		zap.String("locator", d.Locator),
		zap.Int64("bytes", a.Size),
	)
	return d, nil
}

func (r *Router) route(ctx context.Context, a normalize.Artifact) (*Decision, error) {
	if a.Size <= r.cfg.CDNMaxBytes {
		d, err := r.uploadCDN(ctx, a)
		if err == nil {
			return d, nil
		}
		if !cdn.IsPayloadTooLarge(err) {
			if rmErr := removeArtifact(a.Path); rmErr != nil {
				r.logger.Warn("remove artifact after failed upload", zap.String("path", a.Path), zap.Error(rmErr))
			}
			return nil, &UploadError{Kind: UploadGeneric, Destination: DestinationCDN, Err: err}
		}
		r.logger.Warn("cdn rejected artifact as too large, placing locally",
			zap.Int64("bytes", a.Size),
			zap.Error(&UploadError{Kind: UploadSizeLimit, Destination: DestinationCDN, Err: err}),
		)
		return r.placeLocal(a)
	}

	env := ResolveEnvironment(r.cfg.Signals)
	r.logger.Debug("artifact exceeds cdn limit",
		zap.Int64("bytes", a.Size),
		zap.Int64("limit", r.cfg.CDNMaxBytes),
		zap.String("environment", env),
	)
	if env == EnvProduction {
		return r.uploadObject(ctx, a)
	}
	return r.placeLocal(a)
}

func (r *Router) uploadCDN(ctx context.Context, a normalize.Artifact) (*Decision, error) {
	if r.cdn == nil {
		return nil, cdn.ErrNotConfigured
	}
	res, err := r.cdn.Upload(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	if err := removeArtifact(a.Path); err != nil {
		return nil, &StorageIOError{Op: "remove", Path: a.Path, Err: err}
	}
	return &Decision{Destination: DestinationCDN, Locator: res.SecureURL}, nil
}

func (r *Router) uploadObject(ctx context.Context, a normalize.Artifact) (*Decision, error) {
	if r.store == nil {
		return nil, &UploadError{Kind: UploadGeneric, Destination: DestinationObjectStore, Err: errors.New("object store is not configured")}
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, &StorageIOError{Op: "open", Path: a.Path, Err: err}
	}
	defer f.Close()

	key := path.Join(r.cfg.Folder, filepath.Base(a.Path))
	opts := objectstore.PutOptions{
		ContentType: "video/mp4",
		Metadata:    map[string]string{"original_filename": filepath.Base(a.Path)},
	}
	if err := r.store.Put(ctx, key, f, a.Size, opts); err != nil {
		return nil, &UploadError{Kind: UploadGeneric, Destination: DestinationObjectStore, Err: fmt.Errorf("put object %s: %w", key, err)}
	}
	return &Decision{Destination: DestinationObjectStore, Locator: r.store.PublicURL(key)}, nil
}

func (r *Router) placeLocal(a normalize.Artifact) (*Decision, error) {
	if err := os.MkdirAll(r.cfg.PublicDir, 0o755); err != nil {
		return nil, &StorageIOError{Op: "mkdir", Path: r.cfg.PublicDir, Err: err}
	}
	base := filepath.Base(a.Path)
	dst := filepath.Join(r.cfg.PublicDir, base)
	if err := moveFile(a.Path, dst); err != nil {
		return nil, &StorageIOError{Op: "move", Path: a.Path, Err: err}
	}
	return &Decision{Destination: DestinationLocalPublic, Locator: path.Join(r.cfg.PublicURLPrefix, base)}, nil
}

func removeArtifact(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
