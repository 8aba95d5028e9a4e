package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/textutil"
)

var errUnclassified = errors.New("record is neither a landing page nor a marketing event")

// EventStore defines the interface for local event persistence.
type EventStore interface {
	FindByUpstreamID(ctx context.Context, upstreamID string) (*domain.Event, error)
	Get(ctx context.Context, id int64) (*domain.Event, error)
	Upsert(ctx context.Context, rec *domain.UpstreamRecord, syncedAt time.Time) (int64, bool, error)
	ApplyCustomMapping(ctx context.Context, id int64, rec *domain.UpstreamRecord, rules []domain.FieldMapping) error
	SetImage(ctx context.Context, id int64, path, sourceURL, source string) error
	RawPayload(ctx context.Context, id int64) (json.RawMessage, error)
	List(ctx context.Context, limit int, after string) ([]*domain.Event, bool, string, error)
	ListWithoutImage(ctx context.Context) ([]*domain.Event, error)
	NeedingAttention(ctx context.Context, staleBefore time.Time) (*domain.AttentionReport, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// SQLiteEventStore implements EventStore backed by SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

// NewSQLiteEventStore creates a new SQLiteEventStore.
func NewSQLiteEventStore(db *sql.DB) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

const eventColumns = `id, upstream_id, source_kind, title, body, excerpt, event_url,
	start_datetime, end_datetime, event_time, location, language, event_type, organizer,
	registered, attended, cancellations, no_shows, cancelled, completed, event_status,
	slug, domain, state, publish_date, external_event_id, external_account_id,
	hs_created_at, hs_updated_at, last_synced_at, image_path, image_source_url, image_source,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var e domain.Event
	var upstreamID, start, end sql.NullString
	var lastSynced sql.NullInt64
	var kind string

	err := row.Scan(&e.ID, &upstreamID, &kind, &e.Title, &e.Body, &e.Excerpt, &e.EventURL,
		&start, &end, &e.EventTime, &e.Location, &e.Language, &e.EventType, &e.Organizer,
		&e.Registered, &e.Attended, &e.Cancellations, &e.NoShows, &e.Cancelled, &e.Completed, &e.EventStatus,
		&e.Slug, &e.Domain, &e.State, &e.PublishDate, &e.ExternalEventID, &e.ExternalAccountID,
		&e.HSCreatedAt, &e.HSUpdatedAt, &lastSynced, &e.ImagePath, &e.ImageSourceURL, &e.ImageSource,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.UpstreamID = upstreamID.String
	e.SourceKind = domain.SourceKind(kind)
	e.StartDateTime = start.String
	e.EndDateTime = end.String
	e.LastSyncedAt = lastSynced.Int64
	return &e, nil
}

func (s *SQLiteEventStore) queryEvents(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return events, nil
}

// FindByUpstreamID returns the local event for an upstream id. When several
// rows share the id the oldest wins.
func (s *SQLiteEventStore) FindByUpstreamID(ctx context.Context, upstreamID string) (*domain.Event, error) {
	if upstreamID == "" {
		return nil, ErrNotFound
	}
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE upstream_id = ? ORDER BY id ASC LIMIT 1`,
		upstreamID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return e, nil
}

// Get retrieves an event by local id, including its extension attributes.
func (s *SQLiteEventStore) Get(ctx context.Context, id int64) (*domain.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT meta_key, value FROM event_meta WHERE event_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get event meta: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan event meta: %w", err)
		}
		if e.Meta == nil {
			e.Meta = make(map[string]string)
		}
		e.Meta[k] = v.String
	}
	return e, rows.Err()
}

// Upsert creates or updates the local event for rec in one transaction.
// last_synced_at never moves backwards.
func (s *SQLiteEventStore) Upsert(ctx context.Context, rec *domain.UpstreamRecord, syncedAt time.Time) (int64, bool, error) {
	upstreamID := rec.UpstreamID()
	if upstreamID == "" {
		return 0, false, &domain.RecordError{Err: domain.ErrMissingUpstreamID}
	}
	m, err := mapRecord(rec)
	if err != nil {
		return 0, false, err
	}
	e := m.event
	ts := now()
	synced := syncedAt.Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	var id int64
	created := false
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM events WHERE upstream_id = ? ORDER BY id ASC LIMIT 1`, upstreamID,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (upstream_id, source_kind, title, body, event_url,
				start_datetime, end_datetime, event_time, location, language, event_type, organizer,
				registered, attended, cancellations, no_shows, cancelled, completed, event_status,
				slug, domain, state, publish_date, external_event_id, external_account_id,
				hs_created_at, hs_updated_at, last_synced_at, raw_payload, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			upstreamID, string(e.SourceKind), e.Title, e.Body, e.EventURL,
			nullString(e.StartDateTime), nullString(e.EndDateTime), e.EventTime, e.Location, e.Language, e.EventType, e.Organizer,
			e.Registered, e.Attended, e.Cancellations, e.NoShows, e.Cancelled, e.Completed, e.EventStatus,
			e.Slug, e.Domain, e.State, e.PublishDate, e.ExternalEventID, e.ExternalAccountID,
			e.HSCreatedAt, e.HSUpdatedAt, synced, string(rec.Raw), ts, ts,
		)
		if err != nil {
			return 0, false, fmt.Errorf("insert event: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, false, fmt.Errorf("last insert id: %w", err)
		}
		created = true
	case err != nil:
		return 0, false, fmt.Errorf("lookup event: %w", err)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE events SET source_kind = ?, title = ?, body = ?, event_url = ?,
				start_datetime = ?, end_datetime = ?, event_time = ?, location = ?, language = ?, event_type = ?, organizer = ?,
				registered = ?, attended = ?, cancellations = ?, no_shows = ?, cancelled = ?, completed = ?, event_status = ?,
				slug = ?, domain = ?, state = ?, publish_date = ?, external_event_id = ?, external_account_id = ?,
				hs_created_at = ?, hs_updated_at = ?,
				last_synced_at = MAX(COALESCE(last_synced_at, 0), ?),
				raw_payload = ?, updated_at = ?
			 WHERE id = ?`,
			string(e.SourceKind), e.Title, e.Body, e.EventURL,
			nullString(e.StartDateTime), nullString(e.EndDateTime), e.EventTime, e.Location, e.Language, e.EventType, e.Organizer,
			e.Registered, e.Attended, e.Cancellations, e.NoShows, e.Cancelled, e.Completed, e.EventStatus,
			e.Slug, e.Domain, e.State, e.PublishDate, e.ExternalEventID, e.ExternalAccountID,
			e.HSCreatedAt, e.HSUpdatedAt,
			synced,
			string(rec.Raw), ts,
			id,
		)
		if err != nil {
			return 0, false, fmt.Errorf("update event: %w", err)
		}
	}

	for k, v := range m.meta {
		if err := setMeta(ctx, tx, id, k, v); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return id, created, nil
}

func setMeta(ctx context.Context, tx *sql.Tx, eventID int64, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO event_meta (event_id, meta_key, value) VALUES (?, ?, ?)
		 ON CONFLICT(event_id, meta_key) DO UPDATE SET value = excluded.value`,
		eventID, key, value,
	)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// ApplyCustomMapping copies top-level upstream fields onto the event. Empty
// upstream values leave the target untouched.
func (s *SQLiteEventStore) ApplyCustomMapping(ctx context.Context, id int64, rec *domain.UpstreamRecord, rules []domain.FieldMapping) error {
	if len(rules) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check event: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	ts := now()
	for _, rule := range rules {
		v, ok := rec.Field(rule.HubSpot)
		if !ok || domain.IsEmptyValue(v) {
			continue
		}
		value := domain.Stringify(v)

		col := mappingTarget(rule.Local)
		if col == "" {
			if err := setMeta(ctx, tx, id, strings.TrimSpace(rule.Local), textutil.SanitizeText(value)); err != nil {
				return err
			}
			continue
		}
		if col != "body" {
			value = textutil.SanitizeText(value)
		}
		// col comes from mappingColumns.
		if _, err := tx.ExecContext(ctx,
			`UPDATE events SET `+col+` = ?, updated_at = ? WHERE id = ?`, value, ts, id,
		); err != nil {
			return fmt.Errorf("map %s: %w", rule.HubSpot, err)
		}
	}
	return tx.Commit()
}

// SetImage records the attached image for an event.
func (s *SQLiteEventStore) SetImage(ctx context.Context, id int64, path, sourceURL, source string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET image_path = ?, image_source_url = ?, image_source = ?, updated_at = ? WHERE id = ?`,
		path, sourceURL, source, now(), id,
	)
	if err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RawPayload returns the verbatim upstream payload last stored for an event.
func (s *SQLiteEventStore) RawPayload(ctx context.Context, id int64) (json.RawMessage, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT raw_payload FROM events WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get raw payload: %w", err)
	}
	if !raw.Valid {
		return nil, nil
	}
	return json.RawMessage(raw.String), nil
}

// List returns a page of events ordered by id.
//
//nolint:gocritic // named results provide clarity for multiple return values
func (s *SQLiteEventStore) List(ctx context.Context, limit int, after string) ([]*domain.Event, bool, string, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	args := []any{}
	if after != "" {
		query += ` WHERE id > ?`
		args = append(args, after)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit+1)

	events, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, false, "", err
	}

	hasMore := false
	nextAfter := ""
	if len(events) > limit {
		hasMore = true
		nextAfter = strconv.FormatInt(events[limit-1].ID, 10)
		events = events[:limit]
	}
	return events, hasMore, nextAfter, nil
}

// ListWithoutImage returns events with no attached image.
func (s *SQLiteEventStore) ListWithoutImage(ctx context.Context) ([]*domain.Event, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE image_path = '' ORDER BY id ASC`)
}

// NeedingAttention reports rows without an upstream id and rows last synced
// before staleBefore.
func (s *SQLiteEventStore) NeedingAttention(ctx context.Context, staleBefore time.Time) (*domain.AttentionReport, error) {
	orphaned, err := s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE upstream_id IS NULL OR upstream_id = '' ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	stale, err := s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE upstream_id IS NOT NULL AND upstream_id != '' AND last_synced_at IS NOT NULL AND last_synced_at < ?
		 ORDER BY id ASC`,
		staleBefore.Unix(),
	)
	if err != nil {
		return nil, err
	}
	if orphaned == nil {
		orphaned = []*domain.Event{}
	}
	if stale == nil {
		stale = []*domain.Event{}
	}
	return &domain.AttentionReport{Orphaned: orphaned, Stale: stale}, nil
}

// Count returns the number of stored events.
func (s *SQLiteEventStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// DeleteAll removes every event along with its attributes and term links.
func (s *SQLiteEventStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
