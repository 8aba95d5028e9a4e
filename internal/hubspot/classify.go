package hubspot

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/domain"
)

// landingPageMarkers are fields only CMS pages carry. Any one of them being
// present and non-null classifies a payload as a landing page.
var landingPageMarkers = []string{"htmlTitle", "featuredImage", "slug"}

// Classify decodes one upstream payload into a tagged record. The raw bytes
// are kept verbatim.
func Classify(raw []byte) (domain.UpstreamRecord, error) {
	rec := domain.UpstreamRecord{
		Raw: append(json.RawMessage(nil), raw...),
	}

	if err := json.Unmarshal(raw, &rec.Fields); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}

	if isLandingPage(rec.Fields) {
		var lp domain.LandingPage
		if err := json.Unmarshal(raw, &lp); err != nil {
			return rec, fmt.Errorf("decode landing page: %w", err)
		}
		rec.Kind = domain.KindLandingPage
		rec.LandingPage = &lp
		return rec, nil
	}

	var me domain.MarketingEvent
	if err := json.Unmarshal(raw, &me); err != nil {
		return rec, fmt.Errorf("decode marketing event: %w", err)
	}
	rec.Kind = domain.KindMarketingEvent
	rec.MarketingEvent = &me
	return rec, nil
}

func isLandingPage(fields map[string]any) bool {
	for _, k := range landingPageMarkers {
		if v, ok := fields[k]; ok && v != nil {
			return true
		}
	}
	return false
}
