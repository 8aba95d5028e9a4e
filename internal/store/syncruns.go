package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/johnwards/hsevents/internal/domain"
)

// SyncRunStore defines the interface for sync history persistence.
type SyncRunStore interface {
	Record(ctx context.Context, r *domain.SyncResult) (int64, error)
	Get(ctx context.Context, id int64) (*domain.SyncResult, error)
	List(ctx context.Context, limit int, before string) ([]*domain.SyncResult, bool, string, error)
}

// SQLiteSyncRunStore implements SyncRunStore backed by SQLite.
type SQLiteSyncRunStore struct {
	db *sql.DB
}

// NewSQLiteSyncRunStore creates a new SQLiteSyncRunStore.
func NewSQLiteSyncRunStore(db *sql.DB) *SQLiteSyncRunStore {
	return &SQLiteSyncRunStore{db: db}
}

const runTimeLayout = time.RFC3339Nano

// Record appends a sync result and its error messages to the history.
func (s *SQLiteSyncRunStore) Record(ctx context.Context, r *domain.SyncResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sync_runs (success, sync_type, data_source, created, updated, skipped, errored,
			total_fetched, filtered_from, stopped, error, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Success, string(r.SyncType), string(r.DataSource), r.Created, r.Updated, r.Skipped, r.Errored,
		r.TotalFetched, r.FilteredFrom, r.Stopped, r.Error,
		r.StartTime.UTC().Format(runTimeLayout), r.EndTime.UTC().Format(runTimeLayout),
		int64(r.Duration*1000),
	)
	if err != nil {
		return 0, fmt.Errorf("insert sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	for _, msg := range r.Errors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_run_errors (run_id, message) VALUES (?, ?)`, id, msg,
		); err != nil {
			return 0, fmt.Errorf("insert sync run error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

const runColumns = `id, success, sync_type, data_source, created, updated, skipped, errored,
	total_fetched, filtered_from, stopped, error, started_at, finished_at, duration_ms`

func scanRun(row rowScanner) (*domain.SyncResult, error) {
	var r domain.SyncResult
	var syncType, source, started, finished string
	var durationMS int64
	err := row.Scan(&r.ID, &r.Success, &syncType, &source, &r.Created, &r.Updated, &r.Skipped, &r.Errored,
		&r.TotalFetched, &r.FilteredFrom, &r.Stopped, &r.Error, &started, &finished, &durationMS)
	if err != nil {
		return nil, err
	}
	r.SyncType = domain.SyncType(syncType)
	r.DataSource = domain.DataSource(source)
	r.StartTime, _ = time.Parse(runTimeLayout, started)
	r.EndTime, _ = time.Parse(runTimeLayout, finished)
	r.Duration = float64(durationMS) / 1000
	if r.Stopped {
		r.StopMessage = domain.StopMessage
	}
	r.Errors = []string{}
	return &r, nil
}

// Get retrieves a sync run with its error messages.
func (s *SQLiteSyncRunStore) Get(ctx context.Context, id int64) (*domain.SyncResult, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sync run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT message FROM sync_run_errors WHERE run_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("get sync run errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, fmt.Errorf("scan sync run error: %w", err)
		}
		r.Errors = append(r.Errors, msg)
	}
	return r, rows.Err()
}

// List returns sync runs newest first. before is an exclusive id cursor.
// Error messages are not loaded; use Get for those.
//
//nolint:gocritic // named results provide clarity for multiple return values
func (s *SQLiteSyncRunStore) List(ctx context.Context, limit int, before string) ([]*domain.SyncResult, bool, string, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM sync_runs`
	args := []any{}
	if before != "" {
		query += ` WHERE id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, "", fmt.Errorf("list sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*domain.SyncResult
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, false, "", fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, "", fmt.Errorf("rows iteration: %w", err)
	}

	hasMore := false
	next := ""
	if len(runs) > limit {
		hasMore = true
		next = strconv.FormatInt(runs[limit-1].ID, 10)
		runs = runs[:limit]
	}
	return runs, hasMore, next, nil
}
