package domain

// Core taxonomy names. These always exist.
const (
	TaxonomyEventType      = "hs_event_type"
	TaxonomyEventOrganizer = "hs_event_organizer"
	TaxonomyEventLanguage  = "hs_event_language"
)

// MaxTaxonomyNameLen is the longest taxonomy name the store accepts.
const MaxTaxonomyNameLen = 32

// TaxonomyConfig describes a classification structure.
type TaxonomyConfig struct {
	Name         string `json:"name"`
	Field        string `json:"field,omitempty"`
	Singular     string `json:"singular"`
	Plural       string `json:"plural"`
	Slug         string `json:"slug"`
	Hierarchical bool   `json:"hierarchical"`
	Core         bool   `json:"core"`
}

// Term is a label within a taxonomy.
type Term struct {
	ID       int64  `json:"id"`
	Taxonomy string `json:"taxonomy"`
	Label    string `json:"label"`
}

// TaxonomyStat reports how many terms a taxonomy holds.
type TaxonomyStat struct {
	TaxonomyConfig
	TermCount int `json:"termCount"`
}

// FieldStats describes the distribution of one categorical upstream field.
type FieldStats struct {
	Unique  int      `json:"unique"`
	Total   int      `json:"total"`
	Samples []string `json:"samples"`
}

// Suggestion recommendation levels.
const (
	RecommendationRecommended = "recommended"
	RecommendationOptional    = "optional"
)

// TaxonomySuggestion proposes materializing a taxonomy for a field.
type TaxonomySuggestion struct {
	Field          string   `json:"field"`
	TaxonomyName   string   `json:"taxonomy_name"`
	UniqueValues   int      `json:"unique_values"`
	SampleValues   []string `json:"sample_values"`
	Recommendation string   `json:"recommendation"`
}

// CustomPropertyInfo summarizes one custom property seen across events.
type CustomPropertyInfo struct {
	Name   string   `json:"name"`
	Count  int      `json:"count"`
	Values []string `json:"values"`
}
