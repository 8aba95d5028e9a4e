// Package images downloads event images and attaches them to local events.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/metrics"
)

const (
	defaultExt      = ".jpg"
	defaultMaxBytes = 10 << 20
	maxReportErrors = 5
)

// EventImages is the subset of the event store the attacher needs.
type EventImages interface {
	Get(ctx context.Context, id int64) (*domain.Event, error)
	SetImage(ctx context.Context, id int64, path, sourceURL, source string) error
	ListWithoutImage(ctx context.Context) ([]*domain.Event, error)
	RawPayload(ctx context.Context, id int64) (json.RawMessage, error)
}

// Config configures an Attacher.
type Config struct {
	Dir        string
	Timeout    time.Duration
	MaxBytes   int64
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Attacher downloads images into Dir and records them on events.
type Attacher struct {
	dir      string
	maxBytes int64
	http     *http.Client
	events   EventImages
	logger   *slog.Logger
}

// NewAttacher creates an Attacher.
func NewAttacher(cfg Config, events EventImages) *Attacher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Attacher{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxBytes,
		http:     cfg.HTTPClient,
		events:   events,
		logger:   cfg.Logger,
	}
}

// ValidURL reports whether s is an absolute http(s) URL with a host.
func ValidURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SourceURL picks the image URL for an upstream record. Landing pages use
// featuredImage. Marketing events use imageProperty, looked up first among
// custom properties and then as a top-level field.
func SourceURL(rec *domain.UpstreamRecord, imageProperty string) string {
	switch {
	case rec.LandingPage != nil:
		return rec.LandingPage.FeaturedImage
	case rec.MarketingEvent != nil && imageProperty != "":
		for _, cp := range rec.MarketingEvent.CustomProperties {
			if cp.Name == imageProperty {
				if v := cp.StringValue(); v != "" {
					return v
				}
			}
		}
		if v, ok := rec.Field(imageProperty); ok && !domain.IsEmptyValue(v) {
			return domain.Stringify(v)
		}
	}
	return ""
}

// MaybeAttach downloads imageURL onto the event unless the URL is unusable or
// already attached. attached reports whether a new image was stored.
func (a *Attacher) MaybeAttach(ctx context.Context, eventID int64, imageURL string) (attached bool, err error) {
	if imageURL == "" || !ValidURL(imageURL) {
		return false, nil
	}

	e, err := a.events.Get(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("get event: %w", err)
	}
	if e.ImageSourceURL == imageURL && e.HasImage() {
		return false, nil
	}

	if err := a.Attach(ctx, eventID, imageURL); err != nil {
		return false, err
	}
	return true, nil
}

// Attach downloads imageURL and records it as the event's upstream image.
func (a *Attacher) Attach(ctx context.Context, eventID int64, imageURL string) error {
	data, err := a.download(ctx, imageURL)
	if err == nil {
		err = a.store(ctx, eventID, data, imageURL, imageURL, domain.ImageSourceUpstream)
	}
	metrics.RecordImageFetch(domain.ImageSourceUpstream, err)
	if err != nil {
		return &domain.ImageFetchError{URL: imageURL, Err: err}
	}
	return nil
}

func (a *Attacher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, fmt.Errorf("image larger than %d bytes", a.maxBytes)
	}
	return data, nil
}

// store writes data under the image directory and records it on the event.
// nameURL seeds the file name; sourceURL is what the event remembers.
func (a *Attacher) store(ctx context.Context, eventID int64, data []byte, nameURL, sourceURL, source string) error {
	if len(data) == 0 {
		return errors.New("empty image")
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return fmt.Errorf("not an image: %s", mt.String())
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	name := fmt.Sprintf("%d-%016x%s", eventID, xxhash.Sum64String(source+":"+nameURL), extension(nameURL, mt))
	dst := filepath.Join(a.dir, name)

	tmp, err := os.CreateTemp(a.dir, ".img-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename image: %w", err)
	}

	if err := a.events.SetImage(ctx, eventID, dst, sourceURL, source); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	return nil
}

// extension takes the file extension from the URL path, then the sniffed
// content type, then falls back to .jpg.
func extension(rawURL string, mt *mimetype.MIME) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if ext := mt.Extension(); ext != "" {
		return ext
	}
	return defaultExt
}

// FetchMissing attaches upstream images to every event that has none,
// reading featuredImage from the stored raw payload.
func (a *Attacher) FetchMissing(ctx context.Context) (*domain.ImageBackfillResult, error) {
	events, err := a.events.ListWithoutImage(ctx)
	if err != nil {
		return nil, err
	}

	res := &domain.ImageBackfillResult{Errors: []string{}}
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++

		imageURL, err := a.featuredImage(ctx, e.ID)
		if err != nil {
			return res, err
		}
		if imageURL == "" || !ValidURL(imageURL) {
			res.Skipped++
			continue
		}

		if err := a.Attach(ctx, e.ID, imageURL); err != nil {
			res.Failed++
			if len(res.Errors) < maxReportErrors {
				res.Errors = append(res.Errors, fmt.Sprintf("event %d: %v", e.ID, err))
			}
			a.logger.Warn("image backfill failed", "event_id", e.ID, "error", err)
			continue
		}
		res.Success++
	}

	a.logger.Info("image backfill finished",
		"processed", res.Processed, "success", res.Success, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

func (a *Attacher) featuredImage(ctx context.Context, eventID int64) (string, error) {
	raw, err := a.events.RawPayload(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("raw payload: %w", err)
	}
	if len(raw) == 0 {
		return "", nil
	}
	var payload struct {
		FeaturedImage string `json:"featuredImage"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		// A payload without a string featuredImage has nothing to attach.
		return "", nil //nolint:nilerr
	}
	return payload.FeaturedImage, nil
}
