package domain

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// SourceKind identifies which upstream schema a record was classified as.
type SourceKind string

const (
	KindLandingPage    SourceKind = "landing_page"
	KindMarketingEvent SourceKind = "marketing_event"
)

// DefaultEventType is the event type of a landing page without a subcategory.
const DefaultEventType = "Webinar"

// DataSource is the configured upstream collection to sync from.
type DataSource string

const (
	SourceLandingPages    DataSource = "landing_pages"
	SourceMarketingEvents DataSource = "marketing_events"
)

// Valid reports whether d names a known collection.
func (d DataSource) Valid() bool {
	return d == SourceLandingPages || d == SourceMarketingEvents
}

// FlexString decodes a JSON string or number into a string. HubSpot ids are
// strings in most payloads but numeric in some older ones.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// Schedule is the date/time/location information recovered from a landing
// page layout.
type Schedule struct {
	DateTime string `json:"datetime"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Location string `json:"location,omitempty"`
}

// LandingPage is a CMS landing page representing a webinar.
type LandingPage struct {
	ID                   FlexString      `json:"id"`
	Name                 string          `json:"name"`
	Slug                 string          `json:"slug"`
	State                string          `json:"state"`
	Domain               string          `json:"domain"`
	URL                  string          `json:"url"`
	Language             string          `json:"language"`
	HTMLTitle            string          `json:"htmlTitle"`
	MetaDescription      string          `json:"metaDescription"`
	FeaturedImage        string          `json:"featuredImage"`
	FeaturedImageAltText string          `json:"featuredImageAltText"`
	LayoutSections       json.RawMessage `json:"layoutSections,omitempty"`
	CreatedAt            string          `json:"createdAt"`
	UpdatedAt            string          `json:"updatedAt"`
	PublishDate          string          `json:"publishDate"`
	Subcategory          string          `json:"subcategory"`

	// Populated by enrichment, never decoded.
	Schedule    *Schedule `json:"-"`
	Description string    `json:"-"`
}

// CustomProperty is a name/value pair attached to a marketing event.
type CustomProperty struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// StringValue renders the property value as text. Empty for null.
func (c CustomProperty) StringValue() string {
	return Stringify(c.Value)
}

// MarketingEvent is a record from the Marketing Events API.
type MarketingEvent struct {
	ObjectID          FlexString       `json:"objectId"`
	ID                FlexString       `json:"id"`
	EventName         string           `json:"eventName"`
	EventDescription  string           `json:"eventDescription"`
	EventType         string           `json:"eventType"`
	EventOrganizer    string           `json:"eventOrganizer"`
	EventURL          string           `json:"eventUrl"`
	ExternalEventID   FlexString       `json:"externalEventId"`
	ExternalAccountID FlexString       `json:"externalAccountId"`
	StartDateTime     string           `json:"startDateTime"`
	EndDateTime       string           `json:"endDateTime"`
	EventCancelled    bool             `json:"eventCancelled"`
	EventCompleted    bool             `json:"eventCompleted"`
	EventStatus       string           `json:"eventStatus"`
	Registrants       int              `json:"registrants"`
	Attendees         int              `json:"attendees"`
	Cancellations     int              `json:"cancellations"`
	NoShows           int              `json:"noShows"`
	CustomProperties  []CustomProperty `json:"customProperties"`
	CreatedAt         string           `json:"createdAt"`
	UpdatedAt         string           `json:"updatedAt"`
}

// UpstreamRecord is one record as received from HubSpot. Exactly one of
// LandingPage or MarketingEvent is set, matching Kind. Raw holds the
// verbatim payload and is only ever stored or replayed.
type UpstreamRecord struct {
	Kind           SourceKind
	LandingPage    *LandingPage
	MarketingEvent *MarketingEvent
	Fields         map[string]any
	Raw            json.RawMessage
}

// UpstreamID returns the HubSpot identifier, or "" when the payload has none.
func (r *UpstreamRecord) UpstreamID() string {
	switch r.Kind {
	case KindLandingPage:
		if r.LandingPage != nil {
			return string(r.LandingPage.ID)
		}
	case KindMarketingEvent:
		if r.MarketingEvent != nil {
			if r.MarketingEvent.ObjectID != "" {
				return string(r.MarketingEvent.ObjectID)
			}
			return string(r.MarketingEvent.ID)
		}
	}
	return ""
}

func (r *UpstreamRecord) timestamps() (updated, created string) {
	switch r.Kind {
	case KindLandingPage:
		if r.LandingPage != nil {
			return r.LandingPage.UpdatedAt, r.LandingPage.CreatedAt
		}
	case KindMarketingEvent:
		if r.MarketingEvent != nil {
			return r.MarketingEvent.UpdatedAt, r.MarketingEvent.CreatedAt
		}
	}
	return "", ""
}

// UpdatedAt returns the record's upstream modification time, falling back to
// its creation time. ok is false when neither parses.
func (r *UpstreamRecord) UpdatedAt() (time.Time, bool) {
	updated, created := r.timestamps()
	if t, ok := ParseTimestamp(updated); ok {
		return t, true
	}
	return ParseTimestamp(created)
}

// EventType returns the record's event type, if any. Landing pages fall
// back to DefaultEventType.
func (r *UpstreamRecord) EventType() string {
	switch r.Kind {
	case KindLandingPage:
		if r.LandingPage != nil {
			if r.LandingPage.Subcategory != "" {
				return r.LandingPage.Subcategory
			}
			return DefaultEventType
		}
	case KindMarketingEvent:
		if r.MarketingEvent != nil {
			return r.MarketingEvent.EventType
		}
	}
	return ""
}

// Field returns a top-level upstream field by name.
func (r *UpstreamRecord) Field(name string) (any, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// ParseTimestamp parses the timestamp shapes HubSpot emits: RFC 3339 strings,
// plain "YYYY-MM-DD HH:MM:SS" strings and epoch seconds or milliseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Stringify renders a decoded JSON value as plain text.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// IsEmptyValue mirrors loose "empty" semantics: null, "", false, zero and
// empty containers are empty.
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == "" || x == "0"
	case bool:
		return !x
	case float64:
		return x == 0
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}
