package domain

// Image sources recorded on an event.
const (
	ImageSourceUpstream   = "upstream"
	ImageSourceScreenshot = "screenshot"
)

// Event is a locally stored event entry.
type Event struct {
	ID                int64             `json:"id"`
	UpstreamID        string            `json:"upstreamId,omitempty"`
	SourceKind        SourceKind        `json:"sourceKind,omitempty"`
	Title             string            `json:"title"`
	Body              string            `json:"body"`
	Excerpt           string            `json:"excerpt,omitempty"`
	EventURL          string            `json:"eventUrl,omitempty"`
	StartDateTime     string            `json:"startDateTime,omitempty"`
	EndDateTime       string            `json:"endDateTime,omitempty"`
	EventTime         string            `json:"eventTime,omitempty"`
	Location          string            `json:"location,omitempty"`
	Language          string            `json:"language,omitempty"`
	EventType         string            `json:"eventType,omitempty"`
	Organizer         string            `json:"organizer,omitempty"`
	Registered        int               `json:"registered"`
	Attended          int               `json:"attended"`
	Cancellations     int               `json:"cancellations"`
	NoShows           int               `json:"noShows"`
	Cancelled         bool              `json:"cancelled"`
	Completed         bool              `json:"completed"`
	EventStatus       string            `json:"eventStatus,omitempty"`
	Slug              string            `json:"slug,omitempty"`
	Domain            string            `json:"domain,omitempty"`
	State             string            `json:"state,omitempty"`
	PublishDate       string            `json:"publishDate,omitempty"`
	ExternalEventID   string            `json:"externalEventId,omitempty"`
	ExternalAccountID string            `json:"externalAccountId,omitempty"`
	HSCreatedAt       string            `json:"hsCreatedAt,omitempty"`
	HSUpdatedAt       string            `json:"hsUpdatedAt,omitempty"`
	LastSyncedAt      int64             `json:"lastSyncedAt,omitempty"`
	ImagePath         string            `json:"imagePath,omitempty"`
	ImageSourceURL    string            `json:"imageSourceUrl,omitempty"`
	ImageSource       string            `json:"imageSource,omitempty"`
	Meta              map[string]string `json:"meta,omitempty"`
	CreatedAt         string            `json:"createdAt"`
	UpdatedAt         string            `json:"updatedAt"`
}

// HasImage reports whether an image file is attached.
func (e *Event) HasImage() bool {
	return e.ImagePath != ""
}

// AttentionReport lists local events that need manual review.
type AttentionReport struct {
	Orphaned []*Event `json:"orphaned"`
	Stale    []*Event `json:"stale"`
}

// ImageBackfillResult summarizes a fetch-missing-images run.
type ImageBackfillResult struct {
	Processed int      `json:"processed"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}
