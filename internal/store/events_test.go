package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/store"
	"github.com/johnwards/hsevents/internal/testhelpers"
)

// Verify interface compliance at compile time.
var _ store.EventStore = (*store.SQLiteEventStore)(nil)

func setupEventStore(t *testing.T) *store.SQLiteEventStore {
	t.Helper()
	return store.NewSQLiteEventStore(testhelpers.NewMigratedDB(t))
}

// record builds an upstream record the way the client would, keeping the
// top-level fields and raw payload in step with the typed view.
func record(t *testing.T, kind domain.SourceKind, fields map[string]any) *domain.UpstreamRecord {
	t.Helper()
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec := &domain.UpstreamRecord{Kind: kind, Fields: fields, Raw: raw}
	switch kind {
	case domain.KindLandingPage:
		rec.LandingPage = &domain.LandingPage{}
		if err := json.Unmarshal(raw, rec.LandingPage); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	case domain.KindMarketingEvent:
		rec.MarketingEvent = &domain.MarketingEvent{}
		if err := json.Unmarshal(raw, rec.MarketingEvent); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	return rec
}

func TestUpsertLandingPage(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	rec := record(t, domain.KindLandingPage, map[string]any{
		"id":              "101",
		"htmlTitle":       "Go Concurrency - MWT 2024 | Example Site",
		"name":            "ignored",
		"metaDescription": "Meta text",
		"url":             "https://example.com/webinar",
		"language":        "pl",
		"slug":            "go-webinar",
		"state":           "PUBLISHED",
		"updatedAt":       "2024-05-01T10:00:00Z",
	})
	rec.LandingPage.Schedule = &domain.Schedule{DateTime: "2024-06-14 10:00", Date: "2024-06-14", Time: "10:00", Location: "Warsaw"}

	id, created, err := s.Upsert(ctx, rec, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Title != "Go Concurrency" {
		t.Errorf("Title = %q, want %q", e.Title, "Go Concurrency")
	}
	if e.Body != "Meta text" {
		t.Errorf("Body = %q, want %q", e.Body, "Meta text")
	}
	if e.EventType != "Webinar" {
		t.Errorf("EventType = %q, want Webinar", e.EventType)
	}
	if e.StartDateTime != "2024-06-14 10:00" || e.EventTime != "10:00" || e.Location != "Warsaw" {
		t.Errorf("schedule columns = %q %q %q", e.StartDateTime, e.EventTime, e.Location)
	}
	if e.UpstreamID != "101" || e.SourceKind != domain.KindLandingPage {
		t.Errorf("identity = %q/%q", e.UpstreamID, e.SourceKind)
	}
	if e.LastSyncedAt != 1000 {
		t.Errorf("LastSyncedAt = %d, want 1000", e.LastSyncedAt)
	}

	raw, err := s.RawPayload(ctx, id)
	if err != nil {
		t.Fatalf("raw payload: %v", err)
	}
	if string(raw) != string(rec.Raw) {
		t.Errorf("RawPayload = %s, want %s", raw, rec.Raw)
	}
}

func TestUpsertUntitledFallbacks(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *domain.UpstreamRecord
		want string
	}{
		{"page", record(t, domain.KindLandingPage, map[string]any{"id": "1", "slug": "x"}), "Untitled Webinar"},
		{"event", record(t, domain.KindMarketingEvent, map[string]any{"objectId": "2"}), "Untitled Event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, _, err := s.Upsert(ctx, tt.rec, time.Now())
			if err != nil {
				t.Fatalf("upsert: %v", err)
			}
			e, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if e.Title != tt.want {
				t.Errorf("Title = %q, want %q", e.Title, tt.want)
			}
		})
	}
}

func TestUpsertMarketingEvent(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	rec := record(t, domain.KindMarketingEvent, map[string]any{
		"objectId":         "me-1",
		"eventName":        "<b>Go</b> Summit",
		"eventDescription": "<p>Talks</p>",
		"eventType":        "Conference",
		"eventOrganizer":   "Gophers",
		"startDateTime":    "2030-01-01T09:00:00Z",
		"eventCancelled":   true,
		"registrants":      40,
		"attendees":        31,
		"customProperties": []any{
			map[string]any{"name": "Track Name", "value": "Backend"},
			map[string]any{"name": "empty", "value": nil},
		},
	})

	id, _, err := s.Upsert(ctx, rec, time.Now())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Title != "Go Summit" {
		t.Errorf("Title = %q, want %q", e.Title, "Go Summit")
	}
	if e.Body != "<p>Talks</p>" {
		t.Errorf("Body = %q", e.Body)
	}
	if e.Organizer != "Gophers" || e.EventType != "Conference" {
		t.Errorf("Organizer/EventType = %q/%q", e.Organizer, e.EventType)
	}
	if !e.Cancelled || e.Registered != 40 || e.Attended != 31 {
		t.Errorf("status = cancelled:%v registered:%d attended:%d", e.Cancelled, e.Registered, e.Attended)
	}
	if got := e.Meta["custom_trackname"]; got != "Backend" {
		t.Errorf("custom_trackname = %q, want Backend", got)
	}
	if _, ok := e.Meta["custom_empty"]; ok {
		t.Error("null custom property should not be stored")
	}
}

func TestUpsertUpdatesInPlace(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	first := record(t, domain.KindMarketingEvent, map[string]any{"objectId": "9", "eventName": "Old"})
	id1, created, err := s.Upsert(ctx, first, time.Unix(2000, 0))
	if err != nil || !created {
		t.Fatalf("first upsert: id=%d created=%v err=%v", id1, created, err)
	}

	second := record(t, domain.KindMarketingEvent, map[string]any{"objectId": "9", "eventName": "New"})
	id2, created, err := s.Upsert(ctx, second, time.Unix(1500, 0))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("expected created=false on second upsert")
	}
	if id1 != id2 {
		t.Errorf("id = %d, want %d", id2, id1)
	}

	e, err := s.FindByUpstreamID(ctx, "9")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if e.Title != "New" {
		t.Errorf("Title = %q, want New", e.Title)
	}
	if e.LastSyncedAt != 2000 {
		t.Errorf("LastSyncedAt = %d, want 2000 (never decreases)", e.LastSyncedAt)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestUpsertMissingID(t *testing.T) {
	s := setupEventStore(t)

	_, _, err := s.Upsert(context.Background(), record(t, domain.KindMarketingEvent, map[string]any{"eventName": "x"}), time.Now())
	if !errors.Is(err, domain.ErrMissingUpstreamID) {
		t.Errorf("err = %v, want ErrMissingUpstreamID", err)
	}
}

func TestFindByUpstreamIDNotFound(t *testing.T) {
	s := setupEventStore(t)

	if _, err := s.FindByUpstreamID(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyCustomMapping(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	rec := record(t, domain.KindLandingPage, map[string]any{
		"id":        "5",
		"slug":      "s",
		"name":      "<i>Mapped</i> Title",
		"domain":    "events.example.com",
		"archived":  false,
		"subdomain": "",
	})
	id, _, err := s.Upsert(ctx, rec, time.Now())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rules := []domain.FieldMapping{
		{HubSpot: "name", Local: "post_title"},
		{HubSpot: "domain", Local: "venue_host"},
		{HubSpot: "archived", Local: "archived_flag"},
		{HubSpot: "subdomain", Local: "excerpt"},
		{HubSpot: "missing", Local: "body"},
	}
	if err := s.ApplyCustomMapping(ctx, id, rec, rules); err != nil {
		t.Fatalf("apply mapping: %v", err)
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Title != "Mapped Title" {
		t.Errorf("Title = %q, want %q", e.Title, "Mapped Title")
	}
	if e.Meta["venue_host"] != "events.example.com" {
		t.Errorf("venue_host = %q", e.Meta["venue_host"])
	}
	if _, ok := e.Meta["archived_flag"]; ok {
		t.Error("false value should be skipped")
	}
	if e.Excerpt != "" {
		t.Errorf("Excerpt = %q, want empty", e.Excerpt)
	}
}

func TestApplyCustomMappingCoreColumns(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	rec := record(t, domain.KindMarketingEvent, map[string]any{
		"objectId":  "77",
		"eventName": "Summit",
		"venue":     "Hall <b>B</b>",
		"signupUrl": "https://events.example.com/summit",
		"locale":    "de",
		"hostedBy":  "Acme",
	})
	id, _, err := s.Upsert(ctx, rec, time.Now())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rules := []domain.FieldMapping{
		{HubSpot: "venue", Local: "_event_location"},
		{HubSpot: "signupUrl", Local: "event_url"},
		{HubSpot: "locale", Local: "language"},
		{HubSpot: "hostedBy", Local: "organizer"},
	}
	if err := s.ApplyCustomMapping(ctx, id, rec, rules); err != nil {
		t.Fatalf("apply mapping: %v", err)
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Location != "Hall B" {
		t.Errorf("Location = %q, want %q", e.Location, "Hall B")
	}
	if e.EventURL != "https://events.example.com/summit" {
		t.Errorf("EventURL = %q", e.EventURL)
	}
	if e.Language != "de" {
		t.Errorf("Language = %q, want %q", e.Language, "de")
	}
	if e.Organizer != "Acme" {
		t.Errorf("Organizer = %q, want %q", e.Organizer, "Acme")
	}
	for _, key := range []string{"_event_location", "event_url", "language", "organizer"} {
		if _, ok := e.Meta[key]; ok {
			t.Errorf("meta %q set, want core column only", key)
		}
	}
}

func TestApplyCustomMappingNotFound(t *testing.T) {
	s := setupEventStore(t)

	rec := record(t, domain.KindMarketingEvent, map[string]any{"objectId": "1", "eventName": "x"})
	err := s.ApplyCustomMapping(context.Background(), 42, rec, []domain.FieldMapping{{HubSpot: "eventName", Local: "title"}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetImageAndListWithoutImage(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	a, _, _ := s.Upsert(ctx, record(t, domain.KindMarketingEvent, map[string]any{"objectId": "a"}), time.Now())
	b, _, _ := s.Upsert(ctx, record(t, domain.KindMarketingEvent, map[string]any{"objectId": "b"}), time.Now())

	if err := s.SetImage(ctx, a, "/img/a.png", "https://x/a.png", domain.ImageSourceUpstream); err != nil {
		t.Fatalf("set image: %v", err)
	}

	missing, err := s.ListWithoutImage(ctx)
	if err != nil {
		t.Fatalf("list without image: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != b {
		t.Errorf("without image = %v, want only %d", missing, b)
	}

	e, _ := s.Get(ctx, a)
	if !e.HasImage() || e.ImageSourceURL != "https://x/a.png" || e.ImageSource != domain.ImageSourceUpstream {
		t.Errorf("image fields = %q %q %q", e.ImagePath, e.ImageSourceURL, e.ImageSource)
	}

	if err := s.SetImage(ctx, 999, "p", "u", domain.ImageSourceUpstream); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListPagination(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if _, _, err := s.Upsert(ctx, record(t, domain.KindMarketingEvent, map[string]any{"objectId": id}), time.Now()); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	page, hasMore, next, err := s.List(ctx, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || !hasMore || next == "" {
		t.Fatalf("page1 len=%d hasMore=%v next=%q", len(page), hasMore, next)
	}

	page, hasMore, _, err = s.List(ctx, 2, next)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || hasMore {
		t.Errorf("page2 len=%d hasMore=%v", len(page), hasMore)
	}
}

func TestNeedingAttention(t *testing.T) {
	db := testhelpers.NewMigratedDB(t)
	s := store.NewSQLiteEventStore(db)
	ctx := context.Background()

	if _, _, err := s.Upsert(ctx, record(t, domain.KindMarketingEvent, map[string]any{"objectId": "fresh"}), time.Now()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	old := time.Now().Add(-10 * 24 * time.Hour)
	if _, _, err := s.Upsert(ctx, record(t, domain.KindMarketingEvent, map[string]any{"objectId": "old"}), old); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO events (title, created_at, updated_at) VALUES ('hand made', '', '')`); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}

	rep, err := s.NeedingAttention(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("needing attention: %v", err)
	}
	if len(rep.Orphaned) != 1 || rep.Orphaned[0].Title != "hand made" {
		t.Errorf("Orphaned = %v", rep.Orphaned)
	}
	if len(rep.Stale) != 1 || rep.Stale[0].UpstreamID != "old" {
		t.Errorf("Stale = %v", rep.Stale)
	}
}

func TestDeleteAll(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2"} {
		if _, _, err := s.Upsert(ctx, record(t, domain.KindMarketingEvent, map[string]any{"objectId": id}), time.Now()); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	n, err := s.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if c, _ := s.Count(ctx); c != 0 {
		t.Errorf("Count = %d, want 0", c)
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Webinar: Go | Site", "Webinar: Go"},
		{"Webinar - mwt 2024", "Webinar"},
		{"Plain", "Plain"},
		{"  <b>Bold</b>   title ", "Bold title"},
	}
	for _, tt := range tests {
		if got := store.CleanTitle(tt.in); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
