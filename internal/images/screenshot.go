package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/metrics"
)

// Default screenshot service endpoints.
const (
	DefaultMicrolinkURL   = "https://api.microlink.io/"
	DefaultPage2ImagesURL = "http://api.page2images.com/restfullink"
	DefaultPageSpeedURL   = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
)

// Capture is a provider's result: a URL to download, or inline image bytes.
type Capture struct {
	ImageURL string
	Data     []byte
}

// Provider renders a screenshot of a web page.
type Provider interface {
	Name() string
	Capture(ctx context.Context, client *http.Client, pageURL string) (Capture, error)
}

// DefaultProviders returns the providers in the order they are tried.
func DefaultProviders() []Provider {
	return []Provider{
		Microlink{BaseURL: DefaultMicrolinkURL},
		Page2Images{BaseURL: DefaultPage2ImagesURL},
		PageSpeed{BaseURL: DefaultPageSpeedURL},
	}
}

// Screenshot captures pageURL with the first provider that succeeds and
// stores the image on the event with source "screenshot".
func (a *Attacher) Screenshot(ctx context.Context, eventID int64, pageURL string, providers []Provider) error {
	if !ValidURL(pageURL) {
		return &domain.ImageFetchError{URL: pageURL, Err: errors.New("invalid page URL")}
	}
	if _, err := a.events.Get(ctx, eventID); err != nil {
		return fmt.Errorf("get event: %w", err)
	}

	var failures []string
	for _, p := range providers {
		c, err := p.Capture(ctx, a.http, pageURL)
		if err == nil {
			data := c.Data
			if data == nil {
				data, err = a.download(ctx, c.ImageURL)
			}
			if err == nil {
				err = a.store(ctx, eventID, data, pageURL, pageURL, domain.ImageSourceScreenshot)
			}
		}
		metrics.RecordImageFetch(domain.ImageSourceScreenshot, err)
		if err == nil {
			a.logger.Info("screenshot stored", "event_id", eventID, "provider", p.Name())
			return nil
		}
		failures = append(failures, p.Name()+": "+err.Error())
		a.logger.Debug("screenshot provider failed", "provider", p.Name(), "error", err)
	}

	return &domain.ImageFetchError{
		URL: pageURL,
		Err: fmt.Errorf("could not generate screenshot: %s", strings.Join(failures, "; ")),
	}
}

func getJSON(ctx context.Context, client *http.Client, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("status %d: invalid JSON", resp.StatusCode)
	}
	return nil
}

// Microlink uses the microlink.io screenshot API.
type Microlink struct {
	BaseURL string
}

// Name implements Provider.
func (Microlink) Name() string { return "Microlink" }

// Capture implements Provider.
func (m Microlink) Capture(ctx context.Context, client *http.Client, pageURL string) (Capture, error) {
	q := url.Values{
		"url":             {pageURL},
		"screenshot":      {"true"},
		"meta":            {"false"},
		"viewport.width":  {"1280"},
		"viewport.height": {"800"},
	}
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Screenshot struct {
				URL string `json:"url"`
			} `json:"screenshot"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, m.BaseURL+"?"+q.Encode(), &out); err != nil {
		return Capture{}, err
	}
	if out.Status != "success" || out.Data.Screenshot.URL == "" {
		msg := out.Message
		if msg == "" {
			msg = out.Status
		}
		if msg == "" {
			msg = "no screenshot URL"
		}
		return Capture{}, errors.New(msg)
	}
	return Capture{ImageURL: out.Data.Screenshot.URL}, nil
}

// Page2Images uses the page2images.com REST link API.
type Page2Images struct {
	BaseURL string
}

// Name implements Provider.
func (Page2Images) Name() string { return "Page2Images" }

// Capture implements Provider.
func (p Page2Images) Capture(ctx context.Context, client *http.Client, pageURL string) (Capture, error) {
	q := url.Values{
		"p2i_url":      {pageURL},
		"p2i_screen":   {"1280x800"},
		"p2i_size":     {"1280x0"},
		"p2i_fullpage": {"0"},
		"p2i_wait":     {"3"},
	}
	var out struct {
		ImageURL string `json:"image_url"`
		Error    string `json:"error"`
	}
	if err := getJSON(ctx, client, p.BaseURL+"?"+q.Encode(), &out); err != nil {
		return Capture{}, err
	}
	if out.ImageURL == "" {
		if out.Error != "" {
			return Capture{}, errors.New(out.Error)
		}
		return Capture{}, errors.New("no image URL")
	}
	return Capture{ImageURL: out.ImageURL}, nil
}

// PageSpeed extracts the final screenshot from a Google PageSpeed Insights
// Lighthouse run.
type PageSpeed struct {
	BaseURL string
}

// Name implements Provider.
func (PageSpeed) Name() string { return "PageSpeed" }

// Capture implements Provider.
func (p PageSpeed) Capture(ctx context.Context, client *http.Client, pageURL string) (Capture, error) {
	q := url.Values{
		"url":      {pageURL},
		"category": {"performance"},
		"strategy": {"desktop"},
	}
	var out struct {
		LighthouseResult struct {
			Audits struct {
				FinalScreenshot struct {
					Details struct {
						Data string `json:"data"`
					} `json:"details"`
				} `json:"final-screenshot"`
			} `json:"audits"`
		} `json:"lighthouseResult"`
	}
	if err := getJSON(ctx, client, p.BaseURL+"?"+q.Encode(), &out); err != nil {
		return Capture{}, err
	}

	data, err := decodeDataURI(out.LighthouseResult.Audits.FinalScreenshot.Details.Data)
	if err != nil {
		return Capture{}, fmt.Errorf("could not extract screenshot: %w", err)
	}
	return Capture{Data: data}, nil
}

// decodeDataURI decodes a base64 "data:image/...;base64,..." URI.
func decodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "data:image") {
		return nil, errors.New("not an image data URI")
	}
	_, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty data URI")
	}
	return data, nil
}
