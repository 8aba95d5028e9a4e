package store

import (
	"regexp"
	"strings"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/textutil"
)

const (
	untitledWebinar = "Untitled Webinar"
	untitledEvent   = "Untitled Event"
)

var (
	titleSiteSuffix = regexp.MustCompile(`\s*\|.*$`)
	titleMWTSuffix  = regexp.MustCompile(`(?i)\s*-\s*MWT.*$`)
)

// mapped is the local shape of one upstream record: column values plus
// extension attributes.
type mapped struct {
	event domain.Event
	meta  map[string]string
}

func mapRecord(rec *domain.UpstreamRecord) (mapped, error) {
	switch {
	case rec.Kind == domain.KindLandingPage && rec.LandingPage != nil:
		return mapLandingPage(rec.LandingPage), nil
	case rec.Kind == domain.KindMarketingEvent && rec.MarketingEvent != nil:
		return mapMarketingEvent(rec.MarketingEvent), nil
	}
	return mapped{}, &domain.RecordError{UpstreamID: rec.UpstreamID(), Err: errUnclassified}
}

// CleanTitle removes site-name and MWT suffixes from a landing page title.
func CleanTitle(title string) string {
	title = titleSiteSuffix.ReplaceAllString(title, "")
	title = titleMWTSuffix.ReplaceAllString(title, "")
	return textutil.SanitizeText(title)
}

func mapLandingPage(p *domain.LandingPage) mapped {
	e := domain.Event{
		SourceKind:  domain.KindLandingPage,
		Title:       CleanTitle(firstNonEmpty(p.HTMLTitle, p.Name, untitledWebinar)),
		Body:        firstNonEmpty(p.Description, p.MetaDescription),
		EventURL:    p.URL,
		Language:    p.Language,
		EventType:   firstNonEmpty(p.Subcategory, domain.DefaultEventType),
		Slug:        p.Slug,
		Domain:      p.Domain,
		State:       p.State,
		PublishDate: p.PublishDate,
		HSCreatedAt: p.CreatedAt,
		HSUpdatedAt: p.UpdatedAt,
	}
	if e.Title == "" {
		e.Title = untitledWebinar
	}
	if s := p.Schedule; s != nil {
		e.StartDateTime = firstNonEmpty(s.DateTime, s.Date)
		e.EventTime = s.Time
		e.Location = s.Location
	}
	return mapped{event: e, meta: map[string]string{}}
}

func mapMarketingEvent(m *domain.MarketingEvent) mapped {
	e := domain.Event{
		SourceKind:        domain.KindMarketingEvent,
		Title:             textutil.SanitizeText(firstNonEmpty(m.EventName, untitledEvent)),
		Body:              m.EventDescription,
		EventURL:          m.EventURL,
		StartDateTime:     m.StartDateTime,
		EndDateTime:       m.EndDateTime,
		EventType:         m.EventType,
		Organizer:         m.EventOrganizer,
		Registered:        m.Registrants,
		Attended:          m.Attendees,
		Cancellations:     m.Cancellations,
		NoShows:           m.NoShows,
		Cancelled:         m.EventCancelled,
		Completed:         m.EventCompleted,
		EventStatus:       m.EventStatus,
		ExternalEventID:   string(m.ExternalEventID),
		ExternalAccountID: string(m.ExternalAccountID),
		HSCreatedAt:       m.CreatedAt,
		HSUpdatedAt:       m.UpdatedAt,
	}
	if e.Title == "" {
		e.Title = untitledEvent
	}

	meta := make(map[string]string, len(m.CustomProperties))
	for _, cp := range m.CustomProperties {
		key := textutil.SanitizeKey(cp.Name)
		if key == "" || cp.Value == nil {
			continue
		}
		meta[CustomMetaKey(cp.Name)] = textutil.SanitizeText(cp.StringValue())
	}
	return mapped{event: e, meta: meta}
}

// CustomMetaKey is the extension attribute name for a custom property.
func CustomMetaKey(name string) string {
	return "custom_" + textutil.SanitizeKey(name)
}

// mappingColumns maps custom mapping targets to core event columns.
var mappingColumns = map[string]string{
	"title":           "title",
	"post_title":      "title",
	"body":            "body",
	"post_content":    "body",
	"excerpt":         "excerpt",
	"post_excerpt":    "excerpt",
	"event_url":       "event_url",
	"url":             "event_url",
	"start_datetime":  "start_datetime",
	"end_datetime":    "end_datetime",
	"event_time":      "event_time",
	"location":        "location",
	"event_location":  "location",
	"language":        "language",
	"event_language":  "language",
	"event_type":      "event_type",
	"organizer":       "organizer",
	"event_organizer": "organizer",
	"event_status":    "event_status",
}

// mappingTarget resolves a custom mapping target to a core column, or "" for
// an extension attribute. A leading underscore is ignored.
func mappingTarget(local string) string {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(local)), "_")
	return mappingColumns[key]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
