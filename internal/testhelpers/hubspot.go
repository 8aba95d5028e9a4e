package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// Upstream collection paths served by FakeHubSpot.
const (
	LandingPagesPath    = "/cms/v3/pages/landing-pages"
	MarketingEventsPath = "/marketing/v3/marketing-events"
)

// FakeHubSpot is an httptest server speaking the subset of the HubSpot API
// the connector reads: paged collections, single records and rate-limit
// headers.
type FakeHubSpot struct {
	*httptest.Server

	Token string

	mu         sync.Mutex
	pages      []map[string]any
	events     []map[string]any
	pageSize   int
	failStatus int
	failMsg    string
	hits       map[string]int
}

// NewFakeHubSpot starts a fake accepting token "test-token".
func NewFakeHubSpot(t *testing.T) *FakeHubSpot {
	t.Helper()

	f := &FakeHubSpot{
		Token:    "test-token",
		pageSize: 100,
		hits:     make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// SetPages replaces the landing page collection.
func (f *FakeHubSpot) SetPages(pages ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = pages
}

// SetEvents replaces the marketing event collection.
func (f *FakeHubSpot) SetEvents(events ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

// SetPageSize caps how many results each page returns.
func (f *FakeHubSpot) SetPageSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

// Fail makes every request answer with status and an error message.
// Status 0 restores normal behaviour.
func (f *FakeHubSpot) Fail(status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = status
	f.failMsg = message
}

// Hits returns how many requests reached path.
func (f *FakeHubSpot) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *FakeHubSpot) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hits[r.URL.Path]++

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-HubSpot-RateLimit-Daily", "250000")
	w.Header().Set("X-HubSpot-RateLimit-Daily-Remaining", "249000")
	w.Header().Set("X-HubSpot-RateLimit-Secondly", "10")
	w.Header().Set("X-HubSpot-RateLimit-Secondly-Remaining", "9")

	if r.Header.Get("Authorization") != "Bearer "+f.Token {
		writeFake(w, http.StatusUnauthorized, map[string]any{"status": "error", "message": "Authentication credentials not found"})
		return
	}
	if f.failStatus != 0 {
		body := map[string]any{"status": "error"}
		if f.failMsg != "" {
			body["message"] = f.failMsg
		}
		writeFake(w, f.failStatus, body)
		return
	}

	var coll []map[string]any
	var base string
	switch {
	case strings.HasPrefix(r.URL.Path, LandingPagesPath):
		coll, base = f.pages, LandingPagesPath
	case strings.HasPrefix(r.URL.Path, MarketingEventsPath):
		coll, base = f.events, MarketingEventsPath
	default:
		writeFake(w, http.StatusNotFound, map[string]any{"status": "error", "message": "not found"})
		return
	}

	if id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, base), "/"); id != "" {
		for _, rec := range coll {
			if recordID(rec) == id {
				writeFake(w, http.StatusOK, rec)
				return
			}
		}
		writeFake(w, http.StatusNotFound, map[string]any{"status": "error", "message": "resource not found"})
		return
	}

	limit := f.pageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < limit {
		limit = v
	}
	start := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("after")); err == nil && v > 0 {
		start = v
	}
	if start > len(coll) {
		start = len(coll)
	}
	end := start + limit
	if end > len(coll) {
		end = len(coll)
	}

	resp := map[string]any{
		"total":   len(coll),
		"results": coll[start:end],
	}
	if end < len(coll) {
		resp["paging"] = map[string]any{"next": map[string]any{"after": strconv.Itoa(end)}}
	}
	writeFake(w, http.StatusOK, resp)
}

func recordID(rec map[string]any) string {
	for _, k := range []string{"objectId", "id"} {
		switch v := rec[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case int:
			return strconv.Itoa(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func writeFake(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
