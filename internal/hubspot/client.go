// Package hubspot reads landing pages and marketing events from the HubSpot
// API and normalizes them into domain records.
package hubspot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/metrics"
)

// DefaultBaseURL is the public HubSpot API.
const DefaultBaseURL = "https://api.hubapi.com"

// Collection paths.
const (
	LandingPagesPath    = "/cms/v3/pages/landing-pages"
	MarketingEventsPath = "/marketing/v3/marketing-events"
)

const (
	pageLimit = 100

	maxLandingPagePages    = 50
	maxMarketingEventPages = 100

	unknownAPIError = "Unknown API error"
)

// landingPageProperties is the property list requested for landing pages.
var landingPageProperties = []string{
	"id", "name", "slug", "state", "domain", "url", "language",
	"htmlTitle", "metaDescription", "featuredImage", "featuredImageAltText",
	"layoutSections", "createdAt", "updatedAt", "publishDate", "subcategory",
}

// TokenProvider supplies the bearer token for each request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Config configures a Client.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	PageDelay       time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	HTTPClient      *http.Client
	Parser          LayoutParser
	Logger          *slog.Logger
}

// Client is a HubSpot API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	parser  LayoutParser
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *slog.Logger
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// NewClient creates a Client.
func NewClient(cfg Config, tokens TokenProvider) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Parser == nil {
		cfg.Parser = RegexLayoutParser{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		tokens:  tokens,
		parser:  cfg.Parser,
		limiter: rate.NewLimiter(limit, 1),
		logger:  cfg.Logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "hubspot",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return c
}

// Page is one page of a collection.
type Page struct {
	Records []domain.UpstreamRecord
	Total   int
	Next    string
}

type pageEnvelope struct {
	Total   *int              `json:"total"`
	Results []json.RawMessage `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

type errorEnvelope struct {
	Message string `json:"message"`
}

func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, LandingPagesPath):
		return "landing-pages"
	case strings.HasPrefix(path, MarketingEventsPath):
		return "marketing-events"
	}
	return "other"
}

func collectionPath(source domain.DataSource) string {
	if source == domain.SourceMarketingEvents {
		return MarketingEventsPath
	}
	return LandingPagesPath
}

func (c *Client) token(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if c.tokens == nil {
		return "", &domain.ConfigurationError{Message: "HubSpot API not configured"}
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve token: %w", err)
	}
	if tok == "" {
		return "", &domain.ConfigurationError{Message: "HubSpot API not configured"}
	}
	return tok, nil
}

// get performs an authenticated GET through the circuit breaker. Non-2xx
// responses become TransportErrors.
func (c *Client) get(ctx context.Context, token, path string, q url.Values) (*response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	label := endpointLabel(path)

	resp, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		hr, err := c.http.Do(req)
		if err != nil {
			metrics.RecordUpstreamRequest(label, 0, time.Since(start))
			return nil, err
		}
		defer func() { _ = hr.Body.Close() }()

		body, err := io.ReadAll(hr.Body)
		metrics.RecordUpstreamRequest(label, hr.StatusCode, time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		r := &response{status: hr.StatusCode, header: hr.Header, body: body}
		if hr.StatusCode >= 500 || hr.StatusCode == http.StatusTooManyRequests {
			return r, transportError(path, r)
		}
		return r, nil
	})
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, &domain.TransportError{Endpoint: path, Message: err.Error(), Err: err}
	}

	if resp.status < 200 || resp.status >= 300 {
		return nil, transportError(path, resp)
	}
	return resp, nil
}

func transportError(path string, r *response) *domain.TransportError {
	msg := unknownAPIError
	var env errorEnvelope
	if err := json.Unmarshal(r.body, &env); err == nil && env.Message != "" {
		msg = env.Message
	}
	return &domain.TransportError{Status: r.status, Message: msg, Endpoint: path}
}

func (c *Client) fetchPage(ctx context.Context, token string, source domain.DataSource, after string, limit int) (Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if after != "" {
		q.Set("after", after)
	}
	if source == domain.SourceLandingPages {
		q.Set("properties", strings.Join(landingPageProperties, ","))
	}

	path := collectionPath(source)
	resp, err := c.get(ctx, token, path, q)
	if err != nil {
		return Page{}, err
	}

	var env pageEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return Page{}, &domain.TransportError{Status: resp.status, Endpoint: path, Message: "invalid JSON response", Err: err}
	}

	page := Page{Records: make([]domain.UpstreamRecord, 0, len(env.Results))}
	if env.Total != nil {
		page.Total = *env.Total
	} else {
		page.Total = len(env.Results)
	}
	if env.Paging != nil && env.Paging.Next != nil {
		page.Next = env.Paging.Next.After
	}
	for _, raw := range env.Results {
		rec, err := Classify(raw)
		if err != nil {
			c.logger.Warn("skipping undecodable record", "endpoint", path, "error", err)
			continue
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// FetchPage fetches a single page of a collection.
func (c *Client) FetchPage(ctx context.Context, source domain.DataSource, after string) (Page, error) {
	tok, err := c.token(ctx, "")
	if err != nil {
		return Page{}, err
	}
	return c.fetchPage(ctx, tok, source, after, pageLimit)
}

// FetchAll walks every page of a collection. Landing pages are filtered and
// then enriched from their layout. Any page failure aborts the walk with no
// partial result.
func (c *Client) FetchAll(ctx context.Context, source domain.DataSource, f Filters) ([]domain.UpstreamRecord, error) {
	tok, err := c.token(ctx, "")
	if err != nil {
		return nil, err
	}

	maxPages := maxLandingPagePages
	if source == domain.SourceMarketingEvents {
		maxPages = maxMarketingEventPages
	}

	var out []domain.UpstreamRecord
	after := ""
	for n := 0; n < maxPages; n++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := c.fetchPage(ctx, tok, source, after, pageLimit)
		if err != nil {
			return nil, err
		}
		for i := range page.Records {
			rec := page.Records[i]
			if source == domain.SourceLandingPages {
				if !f.Match(&rec) {
					continue
				}
				c.enrich(&rec)
			}
			out = append(out, rec)
		}
		if page.Next == "" {
			return out, nil
		}
		after = page.Next
	}

	c.logger.Warn("page ceiling reached", "source", source, "pages", maxPages)
	return out, nil
}

// FetchSince returns marketing events modified at or after since. Records
// without any timestamp are kept. filteredFrom is the pre-filter count.
func (c *Client) FetchSince(ctx context.Context, since time.Time) (records []domain.UpstreamRecord, filteredFrom int, err error) {
	all, err := c.FetchAll(ctx, domain.SourceMarketingEvents, Filters{})
	if err != nil {
		return nil, 0, err
	}

	for _, rec := range all {
		ts, ok := rec.UpdatedAt()
		if !ok || !ts.Before(since) {
			records = append(records, rec)
		}
	}
	return records, len(all), nil
}

func (c *Client) enrich(rec *domain.UpstreamRecord) {
	lp := rec.LandingPage
	if lp == nil || len(lp.LayoutSections) == 0 {
		return
	}
	if s, ok := c.parser.Schedule(lp.LayoutSections); ok {
		lp.Schedule = s
	}
	if d, ok := c.parser.Description(lp.LayoutSections); ok {
		lp.Description = d
	}
}

func (c *Client) getOne(ctx context.Context, path, id string) (domain.UpstreamRecord, error) {
	tok, err := c.token(ctx, "")
	if err != nil {
		return domain.UpstreamRecord{}, err
	}
	resp, err := c.get(ctx, tok, path+"/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.UpstreamRecord{}, err
	}
	rec, err := Classify(resp.body)
	if err != nil {
		return rec, &domain.TransportError{Status: resp.status, Endpoint: path, Message: "invalid JSON response", Err: err}
	}
	return rec, nil
}

// GetLandingPage fetches and enriches one landing page.
func (c *Client) GetLandingPage(ctx context.Context, id string) (domain.UpstreamRecord, error) {
	rec, err := c.getOne(ctx, LandingPagesPath, id)
	if err != nil {
		return rec, err
	}
	c.enrich(&rec)
	return rec, nil
}

// GetMarketingEvent fetches one marketing event.
func (c *Client) GetMarketingEvent(ctx context.Context, id string) (domain.UpstreamRecord, error) {
	return c.getOne(ctx, MarketingEventsPath, id)
}

// AuthResult reports which collection a token could read.
type AuthResult struct {
	Source domain.DataSource `json:"source"`
	Count  int               `json:"count"`
}

// TestAuth checks that token can read landing pages, falling back to
// marketing events. An empty token uses the configured one.
func (c *Client) TestAuth(ctx context.Context, token string) (AuthResult, error) {
	tok, err := c.token(ctx, token)
	if err != nil {
		return AuthResult{}, err
	}

	page, err := c.fetchPage(ctx, tok, domain.SourceLandingPages, "", 1)
	if err == nil {
		return AuthResult{Source: domain.SourceLandingPages, Count: page.Total}, nil
	}
	c.logger.Debug("landing pages not readable, trying marketing events", "error", err)

	page, err = c.fetchPage(ctx, tok, domain.SourceMarketingEvents, "", 1)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Source: domain.SourceMarketingEvents, Count: page.Total}, nil
}

// RateLimit is the quota reported by HubSpot's rate-limit headers. -1 means
// the header was absent.
type RateLimit struct {
	Daily             int `json:"daily"`
	DailyRemaining    int `json:"daily_remaining"`
	Secondly          int `json:"secondly"`
	SecondlyRemaining int `json:"secondly_remaining"`
}

// RateLimitStatus makes a minimal request and reports the quota headers.
func (c *Client) RateLimitStatus(ctx context.Context) (RateLimit, error) {
	tok, err := c.token(ctx, "")
	if err != nil {
		return RateLimit{}, err
	}
	resp, err := c.get(ctx, tok, MarketingEventsPath, url.Values{"limit": {"1"}})
	if err != nil {
		return RateLimit{}, err
	}
	h := resp.header
	return RateLimit{
		Daily:             headerInt(h, "X-HubSpot-RateLimit-Daily"),
		DailyRemaining:    headerInt(h, "X-HubSpot-RateLimit-Daily-Remaining"),
		Secondly:          headerInt(h, "X-HubSpot-RateLimit-Secondly"),
		SecondlyRemaining: headerInt(h, "X-HubSpot-RateLimit-Secondly-Remaining"),
	}, nil
}

func headerInt(h http.Header, name string) int {
	n, err := strconv.Atoi(h.Get(name))
	if err != nil {
		return -1
	}
	return n
}

// CustomProperties lists the custom properties seen across all marketing
// events, with occurrence counts and up to ten distinct sample values.
func (c *Client) CustomProperties(ctx context.Context) ([]domain.CustomPropertyInfo, error) {
	records, err := c.FetchAll(ctx, domain.SourceMarketingEvents, Filters{})
	if err != nil {
		return nil, err
	}
	return SummarizeCustomProperties(records), nil
}

// SummarizeCustomProperties aggregates custom properties by name.
func SummarizeCustomProperties(records []domain.UpstreamRecord) []domain.CustomPropertyInfo {
	byName := make(map[string]*domain.CustomPropertyInfo)
	seen := make(map[string]map[string]bool)
	for _, rec := range records {
		if rec.MarketingEvent == nil {
			continue
		}
		for _, p := range rec.MarketingEvent.CustomProperties {
			if p.Name == "" {
				continue
			}
			info, ok := byName[p.Name]
			if !ok {
				info = &domain.CustomPropertyInfo{Name: p.Name, Values: []string{}}
				byName[p.Name] = info
				seen[p.Name] = make(map[string]bool)
			}
			info.Count++
			v := p.StringValue()
			if v != "" && !seen[p.Name][v] && len(info.Values) < 10 {
				seen[p.Name][v] = true
				info.Values = append(info.Values, v)
			}
		}
	}

	out := make([]domain.CustomPropertyInfo, 0, len(byName))
	for _, info := range byName {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
