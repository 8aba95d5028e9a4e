package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/domain"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"2024-03-01T10:00:00Z", 1709287200, true},
		{"2024-03-01T10:00:00.123Z", 1709287200, true},
		{"2024-03-01 10:00:00", 1709287200, true},
		{"1709287200", 1709287200, true},
		{"1709287200000", 1709287200, true},
		{"", 0, false},
		{"not a date", 0, false},
	}
	for _, tt := range tests {
		got, ok := domain.ParseTimestamp(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseTimestamp(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got.Unix() != tt.want {
			t.Errorf("ParseTimestamp(%q) = %d, want %d", tt.in, got.Unix(), tt.want)
		}
	}
}

func TestUpstreamIDFallback(t *testing.T) {
	var me domain.MarketingEvent
	if err := json.Unmarshal([]byte(`{"id":42,"eventName":"x"}`), &me); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec := domain.UpstreamRecord{Kind: domain.KindMarketingEvent, MarketingEvent: &me}
	if got := rec.UpstreamID(); got != "42" {
		t.Errorf("UpstreamID() = %q, want %q", got, "42")
	}

	me.ObjectID = "obj-1"
	if got := rec.UpstreamID(); got != "obj-1" {
		t.Errorf("UpstreamID() = %q, want %q", got, "obj-1")
	}
}

func TestLandingPageEventType(t *testing.T) {
	rec := domain.UpstreamRecord{Kind: domain.KindLandingPage, LandingPage: &domain.LandingPage{}}
	if got := rec.EventType(); got != domain.DefaultEventType {
		t.Errorf("EventType() = %q, want %q", got, domain.DefaultEventType)
	}
	rec.LandingPage.Subcategory = "Workshop"
	if got := rec.EventType(); got != "Workshop" {
		t.Errorf("EventType() = %q, want %q", got, "Workshop")
	}
}

func TestUpdatedAtFallsBackToCreated(t *testing.T) {
	rec := domain.UpstreamRecord{
		Kind:           domain.KindMarketingEvent,
		MarketingEvent: &domain.MarketingEvent{CreatedAt: "2024-01-01T00:00:00Z"},
	}
	got, ok := rec.UpdatedAt()
	if !ok {
		t.Fatal("expected timestamp")
	}
	if !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt() = %v", got)
	}

	rec.MarketingEvent.CreatedAt = ""
	if _, ok := rec.UpdatedAt(); ok {
		t.Error("expected no timestamp")
	}
}

func TestSettingsSanitize(t *testing.T) {
	s := domain.Settings{
		DataSource:        "bogus",
		EventStatusFilter: "sometimes",
		SyncInterval:      "weekly",
		FilterKeyword:     "  webinar ",
		FieldMappings: []domain.FieldMapping{
			{HubSpot: "eventName", Local: "title"},
			{HubSpot: "", Local: "body"},
			{HubSpot: "x", Local: " "},
		},
	}
	s.Sanitize()

	if s.DataSource != domain.SourceLandingPages {
		t.Errorf("DataSource = %q, want %q", s.DataSource, domain.SourceLandingPages)
	}
	if s.EventStatusFilter != domain.StatusFilterAll {
		t.Errorf("EventStatusFilter = %q, want %q", s.EventStatusFilter, domain.StatusFilterAll)
	}
	if s.SyncInterval != domain.IntervalHourly {
		t.Errorf("SyncInterval = %q, want %q", s.SyncInterval, domain.IntervalHourly)
	}
	if s.FilterKeyword != "webinar" {
		t.Errorf("FilterKeyword = %q, want %q", s.FilterKeyword, "webinar")
	}
	if len(s.FieldMappings) != 1 {
		t.Errorf("len(FieldMappings) = %d, want 1", len(s.FieldMappings))
	}
}

func TestIntervalDuration(t *testing.T) {
	if d, ok := domain.IntervalDuration(domain.IntervalTwiceDaily); !ok || d != 12*time.Hour {
		t.Errorf("twicedaily = %v, %v", d, ok)
	}
	if _, ok := domain.IntervalDuration(domain.IntervalManual); ok {
		t.Error("manual should have no period")
	}
}

func TestSplitList(t *testing.T) {
	got := domain.SplitList(" pl, en ,,de ")
	want := []string{"pl", "en", "de"}
	if len(got) != len(want) {
		t.Fatalf("SplitList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SplitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if domain.SplitList("  ") != nil {
		t.Error("expected nil for blank list")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := error(&domain.RecordError{UpstreamID: "7", Err: base})
	if !errors.Is(err, base) {
		t.Error("RecordError should unwrap")
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		t.Error("RecordError is not a TransportError")
	}
}
