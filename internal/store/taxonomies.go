package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/johnwards/hsevents/internal/domain"
)

// TaxonomyStore defines the interface for taxonomy and term persistence.
type TaxonomyStore interface {
	Ensure(ctx context.Context, cfg domain.TaxonomyConfig) error
	Exists(ctx context.Context, name string) (bool, error)
	GetOrCreateTerm(ctx context.Context, taxonomy, label string) (*domain.Term, error)
	Link(ctx context.Context, eventID, termID int64) error
	EventTerms(ctx context.Context, eventID int64) ([]domain.Term, error)
	Stats(ctx context.Context) ([]domain.TaxonomyStat, error)
}

// SQLiteTaxonomyStore implements TaxonomyStore backed by SQLite.
type SQLiteTaxonomyStore struct {
	db *sql.DB
}

// NewSQLiteTaxonomyStore creates a new SQLiteTaxonomyStore.
func NewSQLiteTaxonomyStore(db *sql.DB) *SQLiteTaxonomyStore {
	return &SQLiteTaxonomyStore{db: db}
}

// Ensure registers a taxonomy, refreshing its labels if it already exists.
func (s *SQLiteTaxonomyStore) Ensure(ctx context.Context, cfg domain.TaxonomyConfig) error {
	if cfg.Name == "" || len(cfg.Name) > domain.MaxTaxonomyNameLen {
		return fmt.Errorf("taxonomy name %q: must be 1-%d characters", cfg.Name, domain.MaxTaxonomyNameLen)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO taxonomies (name, field, singular, plural, slug, hierarchical, core, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			field = excluded.field, singular = excluded.singular, plural = excluded.plural,
			slug = excluded.slug, hierarchical = excluded.hierarchical, core = excluded.core`,
		cfg.Name, cfg.Field, cfg.Singular, cfg.Plural, cfg.Slug, cfg.Hierarchical, cfg.Core, now(),
	)
	if err != nil {
		return fmt.Errorf("ensure taxonomy %s: %w", cfg.Name, err)
	}
	return nil
}

// Exists reports whether a taxonomy is registered.
func (s *SQLiteTaxonomyStore) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM taxonomies WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check taxonomy: %w", err)
	}
	return n > 0, nil
}

// GetOrCreateTerm returns the term with the given label, creating it if
// needed. Concurrent callers converge on the same row.
func (s *SQLiteTaxonomyStore) GetOrCreateTerm(ctx context.Context, taxonomy, label string) (*domain.Term, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO terms (taxonomy, label, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(taxonomy, label) DO NOTHING`,
		taxonomy, label, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert term: %w", err)
	}

	t := domain.Term{Taxonomy: taxonomy, Label: label}
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM terms WHERE taxonomy = ? AND label = ?`, taxonomy, label,
	).Scan(&t.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get term: %w", err)
	}
	return &t, nil
}

// Link attaches a term to an event. Linking twice is a no-op.
func (s *SQLiteTaxonomyStore) Link(ctx context.Context, eventID, termID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_terms (event_id, term_id) VALUES (?, ?)`, eventID, termID,
	)
	if err != nil {
		return fmt.Errorf("link term: %w", err)
	}
	return nil
}

// EventTerms returns the terms linked to an event.
func (s *SQLiteTaxonomyStore) EventTerms(ctx context.Context, eventID int64) ([]domain.Term, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.taxonomy, t.label FROM terms t
		 JOIN event_terms et ON et.term_id = t.id
		 WHERE et.event_id = ? ORDER BY t.taxonomy, t.label`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("event terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var terms []domain.Term
	for rows.Next() {
		var t domain.Term
		if err := rows.Scan(&t.ID, &t.Taxonomy, &t.Label); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// Stats returns every taxonomy with its term count, core taxonomies first.
func (s *SQLiteTaxonomyStore) Stats(ctx context.Context) ([]domain.TaxonomyStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x.name, x.field, x.singular, x.plural, x.slug, x.hierarchical, x.core, COUNT(t.id)
		 FROM taxonomies x LEFT JOIN terms t ON t.taxonomy = x.name
		 GROUP BY x.name
		 ORDER BY x.core DESC, x.name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("taxonomy stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []domain.TaxonomyStat{}
	for rows.Next() {
		var st domain.TaxonomyStat
		if err := rows.Scan(&st.Name, &st.Field, &st.Singular, &st.Plural, &st.Slug,
			&st.Hierarchical, &st.Core, &st.TermCount); err != nil {
			return nil, fmt.Errorf("scan taxonomy stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
