package taxonomy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/textutil"
)

const hashedPrefixLen = 25

var (
	categoryWord   = regexp.MustCompile(`(?i)category`)
	categorysWord  = regexp.MustCompile(`(?i)categorys`)
	labelSeparator = strings.NewReplacer("_", " ", "-", " ")
)

// Core returns the taxonomies that always exist.
func Core() []domain.TaxonomyConfig {
	return []domain.TaxonomyConfig{
		{Name: domain.TaxonomyEventType, Singular: "Event Type", Plural: "Event Types", Slug: "hs-event-type", Hierarchical: true, Core: true},
		{Name: domain.TaxonomyEventOrganizer, Singular: "Organizer", Plural: "Organizers", Slug: "hs-event-organizer", Core: true},
		{Name: domain.TaxonomyEventLanguage, Singular: "Language", Plural: "Languages", Slug: "hs-event-language", Core: true},
	}
}

// Name derives the taxonomy name for an upstream field. Names that would
// exceed the store limit are truncated and suffixed with a hash of the full
// name so distinct long fields stay distinct.
func Name(field string) string {
	name := "hs_" + textutil.SanitizeKey(field)
	if len(name) <= domain.MaxTaxonomyNameLen {
		return name
	}
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(name))
	return name[:hashedPrefixLen] + "_" + sum[:6]
}

// Config builds the taxonomy definition for a discovered field.
func Config(field string) domain.TaxonomyConfig {
	singular := textutil.UCWords(labelSeparator.Replace(field))
	plural := singular + "s"
	if categoryWord.MatchString(field) {
		singular = categoryWord.ReplaceAllString(singular, "Category")
		plural = categorysWord.ReplaceAllString(plural, "Categories")
	}
	return domain.TaxonomyConfig{
		Name:         Name(field),
		Field:        field,
		Singular:     singular,
		Plural:       plural,
		Slug:         "hs-" + textutil.Slugify(field),
		Hierarchical: categoryWord.MatchString(field),
	}
}

var languageNames = map[string]string{
	"pl": "Polski",
	"en": "English",
	"hu": "Magyar",
	"cs": "Čeština",
	"ro": "Română",
	"sk": "Slovenčina",
	"lt": "Lietuvių",
	"lv": "Latviešu",
	"et": "Eesti",
	"de": "Deutsch",
	"fr": "Français",
	"es": "Español",
	"it": "Italiano",
}

// LanguageName maps a language code to its display name. Unknown codes are
// upper-cased.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return strings.ToUpper(code)
}
