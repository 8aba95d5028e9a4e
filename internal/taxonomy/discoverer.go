// Package taxonomy discovers categorical fields in upstream events and turns
// them into local classification structures.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/metrics"
	"github.com/johnwards/hsevents/internal/state"
	"github.com/johnwards/hsevents/internal/store"
)

const (
	fieldEventType      = "eventType"
	fieldEventOrganizer = "eventOrganizer"
	customFieldPrefix   = "custom_"

	maxSamples         = 10
	maxRecommendUnique = 20
)

// indicators mark custom property names worth analyzing.
var indicators = []string{"category", "type", "tag", "group", "level", "track", "theme"}

// Registry maps taxonomy names to their definitions.
type Registry map[string]domain.TaxonomyConfig

// Discoverer analyzes records and maintains taxonomies and term links.
type Discoverer struct {
	taxonomies store.TaxonomyStore
	state      state.Store
	logger     *slog.Logger
}

// New creates a Discoverer.
func New(taxonomies store.TaxonomyStore, st state.Store, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{taxonomies: taxonomies, state: st, logger: logger}
}

type collector struct {
	stats map[string]*domain.FieldStats
	seen  map[string]map[string]bool
}

func (c *collector) add(field, value string) {
	if value == "" {
		return
	}
	fs, ok := c.stats[field]
	if !ok {
		fs = &domain.FieldStats{Samples: []string{}}
		c.stats[field] = fs
		c.seen[field] = make(map[string]bool)
	}
	fs.Total++
	if c.seen[field][value] {
		return
	}
	c.seen[field][value] = true
	fs.Unique++
	if len(fs.Samples) < maxSamples {
		fs.Samples = append(fs.Samples, value)
	}
}

// Analyze collects value statistics for eventType, eventOrganizer and
// custom properties whose names suggest a category.
func Analyze(records []domain.UpstreamRecord) map[string]domain.FieldStats {
	c := &collector{stats: map[string]*domain.FieldStats{}, seen: map[string]map[string]bool{}}
	for i := range records {
		me := records[i].MarketingEvent
		if me == nil {
			continue
		}
		c.add(fieldEventType, me.EventType)
		c.add(fieldEventOrganizer, me.EventOrganizer)
		for _, cp := range me.CustomProperties {
			if cp.Name == "" || domain.IsEmptyValue(cp.Value) || !hasIndicator(cp.Name) {
				continue
			}
			c.add(customFieldPrefix+cp.Name, cp.StringValue())
		}
	}

	out := make(map[string]domain.FieldStats, len(c.stats))
	for field, fs := range c.stats {
		out[field] = *fs
	}
	return out
}

func hasIndicator(name string) bool {
	lower := strings.ToLower(name)
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// IsCandidate reports whether a field shows enough reuse to be a taxonomy:
// more than one distinct value, and fewer distinct values than half the
// occurrences.
func IsCandidate(fs domain.FieldStats) bool {
	return fs.Unique > 1 && float64(fs.Unique) < 0.5*float64(fs.Total)
}

// Suggestions proposes taxonomies for candidate fields other than the core
// ones, sorted by field.
func Suggestions(records []domain.UpstreamRecord) []domain.TaxonomySuggestion {
	out := []domain.TaxonomySuggestion{}
	for field, fs := range Analyze(records) {
		if field == fieldEventType || field == fieldEventOrganizer || !IsCandidate(fs) {
			continue
		}
		rec := domain.RecommendationOptional
		if fs.Unique <= maxRecommendUnique {
			rec = domain.RecommendationRecommended
		}
		out = append(out, domain.TaxonomySuggestion{
			Field:          field,
			TaxonomyName:   Name(field),
			UniqueValues:   fs.Unique,
			SampleValues:   fs.Samples,
			Recommendation: rec,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Registry returns the dynamic taxonomy registry.
func (d *Discoverer) Registry(ctx context.Context) (Registry, error) {
	reg, ok, err := state.Load[Registry](ctx, d.state, state.KeyDynamicTaxonomies)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy registry: %w", err)
	}
	if !ok || reg == nil {
		reg = Registry{}
	}
	return reg, nil
}

// Materialize creates the taxonomy for field, recording it in the registry.
// It is idempotent.
func (d *Discoverer) Materialize(ctx context.Context, field string) (domain.TaxonomyConfig, bool, error) {
	cfg := Config(field)
	reg, err := d.Registry(ctx)
	if err != nil {
		return cfg, false, err
	}

	created := false
	if existing, ok := reg[cfg.Name]; ok {
		cfg = existing
	} else {
		reg[cfg.Name] = cfg
		if err := state.Save(ctx, d.state, state.KeyDynamicTaxonomies, reg); err != nil {
			return cfg, false, fmt.Errorf("save taxonomy registry: %w", err)
		}
		created = true
	}

	if err := d.taxonomies.Ensure(ctx, cfg); err != nil {
		return cfg, false, err
	}
	if created {
		metrics.TaxonomiesCreated.Inc()
		d.logger.Info("taxonomy created", "taxonomy", cfg.Name, "field", field)
	}
	return cfg, created, nil
}

// AutoCreate materializes every recommended suggestion and returns their
// names.
func (d *Discoverer) AutoCreate(ctx context.Context, records []domain.UpstreamRecord) ([]string, error) {
	names := []string{}
	for _, s := range Suggestions(records) {
		if s.Recommendation != domain.RecommendationRecommended {
			continue
		}
		cfg, _, err := d.Materialize(ctx, s.Field)
		if err != nil {
			return names, err
		}
		names = append(names, cfg.Name)
	}
	return names, nil
}

// RegisterAll ensures the core taxonomies and every registry entry exist.
func (d *Discoverer) RegisterAll(ctx context.Context) error {
	for _, cfg := range Core() {
		if err := d.taxonomies.Ensure(ctx, cfg); err != nil {
			return err
		}
	}
	reg, err := d.Registry(ctx)
	if err != nil {
		return err
	}
	for _, cfg := range reg {
		if err := d.taxonomies.Ensure(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// Assign links an event to the terms derived from its upstream record:
// event type, organizer, language and registered custom properties. Every
// assignment is attempted; failures are joined.
func (d *Discoverer) Assign(ctx context.Context, eventID int64, rec *domain.UpstreamRecord) error {
	var errs []error
	assign := func(taxonomy, label string) {
		if err := d.assign(ctx, eventID, taxonomy, label); err != nil {
			errs = append(errs, err)
		}
	}

	assign(domain.TaxonomyEventType, rec.EventType())
	if me := rec.MarketingEvent; me != nil {
		assign(domain.TaxonomyEventOrganizer, me.EventOrganizer)
	}
	if lp := rec.LandingPage; lp != nil && lp.Language != "" {
		assign(domain.TaxonomyEventLanguage, LanguageName(lp.Language))
	} else if v, ok := rec.Field("language"); ok {
		if code := domain.Stringify(v); code != "" {
			assign(domain.TaxonomyEventLanguage, LanguageName(code))
		}
	}

	if me := rec.MarketingEvent; me != nil && len(me.CustomProperties) > 0 {
		reg, err := d.Registry(ctx)
		if err != nil {
			return err
		}
		for _, cp := range me.CustomProperties {
			if cp.Name == "" || domain.IsEmptyValue(cp.Value) {
				continue
			}
			if name := Name(customFieldPrefix + cp.Name); reg[name].Name != "" {
				assign(name, cp.StringValue())
			} else if name := Name(cp.Name); reg[name].Name != "" {
				assign(name, cp.StringValue())
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Discoverer) assign(ctx context.Context, eventID int64, taxonomy, label string) error {
	if label == "" {
		return nil
	}
	ok, err := d.taxonomies.Exists(ctx, taxonomy)
	if err != nil || !ok {
		return err
	}
	term, err := d.taxonomies.GetOrCreateTerm(ctx, taxonomy, label)
	if err != nil {
		return fmt.Errorf("term %s/%s: %w", taxonomy, label, err)
	}
	return d.taxonomies.Link(ctx, eventID, term.ID)
}

// Stats reports the term count of every taxonomy.
func (d *Discoverer) Stats(ctx context.Context) ([]domain.TaxonomyStat, error) {
	return d.taxonomies.Stats(ctx)
}
