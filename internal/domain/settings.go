package domain

import (
	"strings"
	"time"
)

// Event status filters for the marketing events source.
const (
	StatusFilterAll      = "all"
	StatusFilterUpcoming = "upcoming"
	StatusFilterPast     = "past"
)

// Sync interval names.
const (
	IntervalEvery15Minutes = "every_15_minutes"
	IntervalEvery30Minutes = "every_30_minutes"
	IntervalHourly         = "hourly"
	IntervalTwiceDaily     = "twicedaily"
	IntervalDaily          = "daily"
	IntervalManual         = "manual"
)

var intervals = map[string]time.Duration{
	IntervalEvery15Minutes: 15 * time.Minute,
	IntervalEvery30Minutes: 30 * time.Minute,
	IntervalHourly:         time.Hour,
	IntervalTwiceDaily:     12 * time.Hour,
	IntervalDaily:          24 * time.Hour,
	IntervalManual:         0,
}

// IntervalDuration maps an interval name to its period. Manual and unknown
// names report ok=false.
func IntervalDuration(name string) (time.Duration, bool) {
	d, ok := intervals[name]
	if !ok || d == 0 {
		return 0, false
	}
	return d, true
}

// FieldMapping copies an upstream field onto a local attribute.
type FieldMapping struct {
	HubSpot string `json:"hubspot" validate:"required"`
	Local   string `json:"local" validate:"required"`
}

// Settings is the operator-editable sync configuration.
type Settings struct {
	APIToken          string         `json:"api_token,omitempty"`
	DataSource        DataSource     `json:"data_source" validate:"required,oneof=landing_pages marketing_events"`
	FilterKeyword     string         `json:"filter_keyword"`
	LanguageFilter    string         `json:"language_filter"`
	SyncInterval      string         `json:"sync_interval" validate:"required,oneof=every_15_minutes every_30_minutes hourly twicedaily daily manual"`
	EventStatusFilter string         `json:"event_status_filter" validate:"required,oneof=all upcoming past"`
	ImageProperty     string         `json:"image_property"`
	FieldMappings     []FieldMapping `json:"field_mappings" validate:"dive"`
}

// DefaultSettings returns the settings used before any are saved.
func DefaultSettings() Settings {
	return Settings{
		DataSource:        SourceLandingPages,
		FilterKeyword:     "webinar",
		SyncInterval:      IntervalHourly,
		EventStatusFilter: StatusFilterAll,
	}
}

// Sanitize replaces out-of-range values with defaults and drops incomplete
// field mappings.
func (s *Settings) Sanitize() {
	if !s.DataSource.Valid() {
		s.DataSource = SourceLandingPages
	}
	switch s.EventStatusFilter {
	case StatusFilterAll, StatusFilterUpcoming, StatusFilterPast:
	default:
		s.EventStatusFilter = StatusFilterAll
	}
	if _, ok := intervals[s.SyncInterval]; !ok {
		s.SyncInterval = IntervalHourly
	}
	s.FilterKeyword = strings.TrimSpace(s.FilterKeyword)
	s.LanguageFilter = strings.TrimSpace(s.LanguageFilter)
	s.ImageProperty = strings.TrimSpace(s.ImageProperty)

	kept := s.FieldMappings[:0]
	for _, m := range s.FieldMappings {
		m.HubSpot = strings.TrimSpace(m.HubSpot)
		m.Local = strings.TrimSpace(m.Local)
		if m.HubSpot == "" || m.Local == "" {
			continue
		}
		kept = append(kept, m)
	}
	s.FieldMappings = kept
}

// Languages splits the language allow-list. Empty means no restriction.
func (s *Settings) Languages() []string {
	return SplitList(s.LanguageFilter)
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
