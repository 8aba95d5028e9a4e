package hubspot

import (
	"slices"
	"strings"

	"github.com/johnwards/hsevents/internal/domain"
)

// Filters restrict which landing pages a fetch keeps. Both conditions must
// hold. Zero values match everything.
type Filters struct {
	Keyword   string
	Languages []string
}

// Match reports whether a record passes the filters. It reads the raw
// top-level fields so unclassifiable pages are judged the same way.
func (f Filters) Match(rec *domain.UpstreamRecord) bool {
	if rec == nil {
		return false
	}
	if kw := strings.ToLower(strings.TrimSpace(f.Keyword)); kw != "" {
		haystack := strings.ToLower(strings.Join([]string{
			fieldString(rec, "url"),
			fieldString(rec, "name"),
			fieldString(rec, "htmlTitle"),
			fieldString(rec, "slug"),
		}, " "))
		if !strings.Contains(haystack, kw) {
			return false
		}
	}
	if len(f.Languages) > 0 && !slices.Contains(f.Languages, fieldString(rec, "language")) {
		return false
	}
	return true
}

func fieldString(rec *domain.UpstreamRecord, name string) string {
	v, _ := rec.Field(name)
	s, _ := v.(string)
	return s
}
