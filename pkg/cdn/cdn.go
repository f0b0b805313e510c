package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// ErrNotConfigured is returned when credentials are missing.
var ErrNotConfigured = errors.New("cdn credentials are not configured")

// Config contains what is needed to sign and send uploads.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// UploadPrefix overrides the API host, e.g. https://api.cloudinary.com.
	UploadPrefix string
	Folder       string
	Timeout      time.Duration
	// Transport is the round tripper used for uploads; nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// Result is the subset of the upload response the pipeline uses.
type Result struct {
	SecureURL string
	PublicID  string
	Bytes     int64
}

// Error is an upload refused by the provider. StatusCode is zero when the
// refusal came back inside a successful response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return "cdn upload failed: " + e.Message
	}
	return fmt.Sprintf("cdn upload failed: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsPayloadTooLarge reports whether err means the CDN refused the file for
// its size, which can happen below the configured threshold when the
// provider lowers its own limit.
func IsPayloadTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var cerr *Error
	if errors.As(err, &cerr) && cerr.StatusCode == http.StatusRequestEntityTooLarge {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Entity Too Large") ||
		strings.Contains(msg, "File size too large")
}

// Client uploads video files to the CDN.
type Client struct {
	cfg Config
}

// New constructs a Client. Credentials are checked at upload time so a run
// that never reaches the CDN does not need them.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Upload sends the file at path as a video resource and returns the
// provider response.
func (c *Client) Upload(ctx context.Context, path string) (*Result, error) {
	if c.cfg.CloudName == "" || c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, ErrNotConfigured
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open upload source: %w", err)
	}

	cld, err := cloudinary.NewFromParams(c.cfg.CloudName, c.cfg.APIKey, c.cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("init cdn client: %w", err)
	}
	if c.cfg.UploadPrefix != "" {
		cld.Upload.Config.API.UploadPrefix = strings.TrimRight(c.cfg.UploadPrefix, "/")
	}
	if c.cfg.Timeout > 0 {
		cld.Upload.Config.API.UploadTimeout = int64(c.cfg.Timeout / time.Second)
	}
	st := &statusTransport{base: c.cfg.Transport}
	cld.Upload.Client = http.Client{Transport: st, Timeout: c.cfg.Timeout}

	resp, err := cld.Upload.Upload(ctx, path, uploader.UploadParams{
		Folder:       c.cfg.Folder,
		ResourceType: "video",
	})
	if rejected := st.rejection(); rejected != nil {
		return nil, rejected
	}
	if err != nil {
		return nil, fmt.Errorf("cdn upload: %w", err)
	}
	if resp == nil {
		return nil, errors.New("cdn upload: empty response")
	}
	if resp.Error.Message != "" {
		return nil, &Error{Message: resp.Error.Message}
	}
	if resp.SecureURL == "" {
		return nil, errors.New("upload response has no secure_url")
	}
	return &Result{SecureURL: resp.SecureURL, PublicID: resp.PublicID, Bytes: int64(resp.Bytes)}, nil
}

// statusTransport records the first non-2xx response so the caller sees the
// HTTP status even when the SDK only reports a decode failure. The body is
// handed back unchanged.
type statusTransport struct {
	base http.RoundTripper

	mu  sync.Mutex
	err *Error
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode < 300 {
		return resp, err
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	t.mu.Lock()
	if t.err == nil {
		t.err = &Error{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	t.mu.Unlock()
	return resp, nil
}

func (t *statusTransport) rejection() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return nil
	}
	return t.err
}

func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
