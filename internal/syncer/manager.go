// Package syncer runs HubSpot to local store synchronizations under an
// advisory lock.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/hubspot"
	"github.com/johnwards/hsevents/internal/images"
	"github.com/johnwards/hsevents/internal/metrics"
	"github.com/johnwards/hsevents/internal/notify"
	"github.com/johnwards/hsevents/internal/state"
	"github.com/johnwards/hsevents/internal/store"
)

const (
	firstSyncNoticeTTL = 60 * time.Second
	staleAfter         = 7 * 24 * time.Hour
)

// Upstream is the subset of the HubSpot client a sync reads from.
type Upstream interface {
	FetchAll(ctx context.Context, source domain.DataSource, f hubspot.Filters) ([]domain.UpstreamRecord, error)
	FetchSince(ctx context.Context, since time.Time) ([]domain.UpstreamRecord, int, error)
	GetLandingPage(ctx context.Context, id string) (domain.UpstreamRecord, error)
	GetMarketingEvent(ctx context.Context, id string) (domain.UpstreamRecord, error)
}

// ImageAttacher attaches upstream images to events.
type ImageAttacher interface {
	MaybeAttach(ctx context.Context, eventID int64, url string) (bool, error)
}

// Classifier creates taxonomies and assigns terms.
type Classifier interface {
	AutoCreate(ctx context.Context, records []domain.UpstreamRecord) ([]string, error)
	RegisterAll(ctx context.Context) error
	Assign(ctx context.Context, eventID int64, rec *domain.UpstreamRecord) error
}

// Publisher delivers sync notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// Config wires a Manager. Images, Taxonomies and Publisher are optional.
type Config struct {
	Upstream   Upstream
	Tokens     hubspot.TokenProvider
	Store      *store.Store
	State      state.Store
	Images     ImageAttacher
	Taxonomies Classifier
	Publisher  Publisher
	Clock      Clock
	Logger     *slog.Logger
}

// Manager orchestrates syncs.
type Manager struct {
	upstream   Upstream
	tokens     hubspot.TokenProvider
	store      *store.Store
	state      state.Store
	images     ImageAttacher
	taxonomies Classifier
	publisher  Publisher
	lock       *Lock
	now        Clock
	logger     *slog.Logger
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		upstream:   cfg.Upstream,
		tokens:     cfg.Tokens,
		store:      cfg.Store,
		state:      cfg.State,
		images:     cfg.Images,
		taxonomies: cfg.Taxonomies,
		publisher:  cfg.Publisher,
		lock:       NewLock(cfg.State, cfg.Clock),
		now:        cfg.Clock,
		logger:     cfg.Logger,
	}
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeSkipped
)

func (o outcome) String() string {
	switch o {
	case outcomeCreated:
		return "created"
	case outcomeUpdated:
		return "updated"
	default:
		return "skipped"
	}
}

func (m *Manager) checkConfigured(ctx context.Context) error {
	if m.tokens == nil {
		return &domain.ConfigurationError{Message: "HubSpot API not configured"}
	}
	tok, err := m.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if tok == "" {
		return &domain.ConfigurationError{Message: "HubSpot API not configured"}
	}
	return nil
}

// Sync runs one synchronization. full forces a complete refetch and
// overwrites every matched record. Configuration and concurrency failures
// return a nil result. An upstream failure returns the failed result along
// with the error.
func (m *Manager) Sync(ctx context.Context, full bool) (*domain.SyncResult, error) {
	if err := m.checkConfigured(ctx); err != nil {
		return nil, err
	}

	ok, err := m.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		metrics.SyncLockContention.Inc()
		return nil, &domain.ConcurrencyError{Message: "Sync already in progress"}
	}
	defer func() {
		if err := m.lock.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error("release sync lock", "error", err)
		}
	}()

	settings, err := state.LoadSettings(ctx, m.state)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	lastSync, hasLast, err := state.Load[time.Time](ctx, m.state, state.KeyLastSyncTime)
	if err != nil {
		return nil, fmt.Errorf("load last sync time: %w", err)
	}

	res := &domain.SyncResult{
		Errors:     []string{},
		DataSource: settings.DataSource,
		StartTime:  m.now(),
	}
	discover := full || !hasLast

	m.logger.Info("sync started", "data_source", settings.DataSource, "full", full, "first", !hasLast)

	recs, err := m.fetch(ctx, settings, discover, lastSync, res)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		m.finish(ctx, res, false, 0)
		return res, err
	}
	res.TotalFetched = len(recs)

	taxonomiesCreated := 0
	if discover {
		taxonomiesCreated = m.discover(ctx, recs)
	}

	forced := full
	for i := range recs {
		if m.stopRequested(ctx) {
			res.Stopped = true
			res.StopMessage = domain.StopMessage
			m.logger.Info("sync stop observed", "processed", res.Processed(), "total", len(recs))
			break
		}
		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
			break
		}
		m.process(ctx, &recs[i], settings, forced, res)
	}

	res.Success = res.Error == ""
	m.finish(ctx, res, res.Success && !hasLast, taxonomiesCreated)
	return res, nil
}

// fetch pulls the records for this run and sets the sync type.
func (m *Manager) fetch(ctx context.Context, s domain.Settings, full bool, since time.Time, res *domain.SyncResult) ([]domain.UpstreamRecord, error) {
	var (
		recs []domain.UpstreamRecord
		err  error
	)
	switch {
	case s.DataSource == domain.SourceLandingPages:
		res.SyncType = domain.SyncFull
		recs, err = m.upstream.FetchAll(ctx, s.DataSource, hubspot.Filters{
			Keyword:   s.FilterKeyword,
			Languages: s.Languages(),
		})
	case full:
		res.SyncType = domain.SyncFull
		recs, err = m.upstream.FetchAll(ctx, s.DataSource, hubspot.Filters{})
	default:
		res.SyncType = domain.SyncIncremental
		recs, res.FilteredFrom, err = m.upstream.FetchSince(ctx, since)
	}
	if err != nil {
		return nil, err
	}

	if s.DataSource == domain.SourceMarketingEvents {
		recs = filterByStatus(recs, s.EventStatusFilter, m.now())
	}
	return recs, nil
}

// discover creates taxonomies for the batch and records the event types
// seen. Failures are logged.
func (m *Manager) discover(ctx context.Context, recs []domain.UpstreamRecord) int {
	if err := state.Save(ctx, m.state, state.KeyEventTypes, eventTypes(recs)); err != nil {
		m.logger.Warn("save event types", "error", err)
	}
	if m.taxonomies == nil {
		return 0
	}
	names, err := m.taxonomies.AutoCreate(ctx, recs)
	if err != nil {
		m.logger.Warn("auto-create taxonomies", "error", err)
	}
	if err := m.taxonomies.RegisterAll(ctx); err != nil {
		m.logger.Warn("register taxonomies", "error", err)
	}
	return len(names)
}

func (m *Manager) stopRequested(ctx context.Context) bool {
	stop, err := m.lock.StopRequested(ctx)
	if err != nil {
		m.logger.Warn("read stop flag", "error", err)
		return false
	}
	return stop
}

// process handles one record and tallies it into res.
func (m *Manager) process(ctx context.Context, rec *domain.UpstreamRecord, s domain.Settings, forced bool, res *domain.SyncResult) {
	out, id, err := m.upsert(ctx, rec, forced)
	if err != nil {
		res.Errored++
		res.Errors = append(res.Errors, err.Error())
		m.logger.Warn("record failed", "upstream_id", rec.UpstreamID(), "error", err)
		return
	}

	switch out {
	case outcomeSkipped:
		res.Skipped++
		return
	case outcomeCreated:
		res.Created++
	case outcomeUpdated:
		res.Updated++
	}
	m.enrich(ctx, id, rec, s)
}

// upsert decides and performs the write for one record. Existing rows are
// skipped when not forced and the upstream copy is no newer than the last
// sync of the local copy.
func (m *Manager) upsert(ctx context.Context, rec *domain.UpstreamRecord, forced bool) (outcome, int64, error) {
	uid := rec.UpstreamID()
	if uid == "" {
		return outcomeSkipped, 0, &domain.RecordError{Err: domain.ErrMissingUpstreamID}
	}

	existing, err := m.store.Events.FindByUpstreamID(ctx, uid)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case err != nil:
		return outcomeSkipped, 0, &domain.RecordError{UpstreamID: uid, Err: err}
	}

	if existing != nil && !forced && upToDate(existing, rec) {
		return outcomeSkipped, existing.ID, nil
	}

	id, created, err := m.store.Events.Upsert(ctx, rec, m.now())
	if err != nil {
		return outcomeSkipped, 0, &domain.RecordError{UpstreamID: uid, Err: err}
	}
	if created {
		return outcomeCreated, id, nil
	}
	return outcomeUpdated, id, nil
}

func upToDate(local *domain.Event, rec *domain.UpstreamRecord) bool {
	upstream, ok := rec.UpdatedAt()
	if !ok || local.LastSyncedAt == 0 {
		return false
	}
	return upstream.Unix() <= local.LastSyncedAt
}

// enrich runs the post-write steps. Each failure is logged and ignored.
func (m *Manager) enrich(ctx context.Context, id int64, rec *domain.UpstreamRecord, s domain.Settings) {
	if len(s.FieldMappings) > 0 {
		if err := m.store.Events.ApplyCustomMapping(ctx, id, rec, s.FieldMappings); err != nil {
			m.logger.Warn("custom field mapping", "event_id", id, "error", err)
		}
	}
	if m.images != nil {
		if _, err := m.images.MaybeAttach(ctx, id, images.SourceURL(rec, s.ImageProperty)); err != nil {
			m.logger.Warn("attach image", "event_id", id, "error", err)
		}
	}
	if m.taxonomies != nil {
		if err := m.taxonomies.Assign(ctx, id, rec); err != nil {
			m.logger.Warn("assign taxonomies", "event_id", id, "error", err)
		}
	}
}

// finish stamps and persists the result, updates metrics and publishes
// notifications. It runs even when ctx is cancelled.
func (m *Manager) finish(ctx context.Context, res *domain.SyncResult, firstSuccess bool, taxonomiesCreated int) {
	ctx = context.WithoutCancel(ctx)

	res.EndTime = m.now()
	elapsed := res.EndTime.Sub(res.StartTime)
	res.Duration = elapsed.Seconds()

	if err := state.Save(ctx, m.state, state.KeyLastSyncTime, res.EndTime); err != nil {
		m.logger.Error("save last sync time", "error", err)
	}
	if id, err := m.store.SyncRuns.Record(ctx, res); err != nil {
		m.logger.Error("record sync run", "error", err)
	} else {
		res.ID = id
	}
	if err := state.Save(ctx, m.state, state.KeyLastSyncResult, res); err != nil {
		m.logger.Error("save last sync result", "error", err)
	}

	metrics.RecordSync(string(res.SyncType), res.Success, res.Stopped, elapsed,
		res.Created, res.Updated, res.Skipped, res.Errored)

	m.logger.Info("sync finished",
		"success", res.Success,
		"sync_type", res.SyncType,
		"fetched", res.TotalFetched,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"errors", res.Errored,
		"stopped", res.Stopped,
		"duration", elapsed,
	)

	m.publish(ctx, notify.TopicSyncCompleted, res)
	if !firstSuccess {
		return
	}

	notice := domain.FirstSyncNotice{
		Created:           res.Created,
		Duration:          res.Duration,
		TaxonomiesCreated: taxonomiesCreated,
	}
	if err := state.SaveWithTTL(ctx, m.state, state.KeyFirstSyncNotice, notice, firstSyncNoticeTTL); err != nil {
		m.logger.Error("save first sync notice", "error", err)
	}
	m.publish(ctx, notify.TopicFirstSyncCompleted, notice)
}

func (m *Manager) publish(ctx context.Context, topic string, v any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, topic, v); err != nil {
		m.logger.Warn("publish notification", "topic", topic, "error", err)
	}
}

// RequestStop asks a running sync to stop before its next record.
func (m *Manager) RequestStop(ctx context.Context) error {
	return m.lock.RequestStop(ctx)
}

// ForceStop clears the lock and the stop flag. A sync still running is not
// interrupted.
func (m *Manager) ForceStop(ctx context.Context) error {
	return m.lock.Release(ctx)
}

// IsRunning reports whether a live sync lock exists.
func (m *Manager) IsRunning(ctx context.Context) (bool, error) {
	return m.lock.Held(ctx)
}

// SingleResult reports what SyncSingleByID did.
type SingleResult struct {
	Action  string `json:"action"`
	EventID int64  `json:"event_id"`
}

// SyncSingleByID fetches one record from the configured source and
// processes it without forcing an update.
func (m *Manager) SyncSingleByID(ctx context.Context, upstreamID string) (*SingleResult, error) {
	if err := m.checkConfigured(ctx); err != nil {
		return nil, err
	}
	settings, err := state.LoadSettings(ctx, m.state)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var rec domain.UpstreamRecord
	if settings.DataSource == domain.SourceLandingPages {
		rec, err = m.upstream.GetLandingPage(ctx, upstreamID)
	} else {
		rec, err = m.upstream.GetMarketingEvent(ctx, upstreamID)
	}
	if err != nil {
		return nil, err
	}

	out, id, err := m.upsert(ctx, &rec, false)
	if err != nil {
		return nil, err
	}
	if out != outcomeSkipped {
		m.enrich(ctx, id, &rec, settings)
	}
	return &SingleResult{Action: out.String(), EventID: id}, nil
}

// NeedingAttention lists orphaned events and events not synced in a week.
func (m *Manager) NeedingAttention(ctx context.Context) (*domain.AttentionReport, error) {
	return m.store.Events.NeedingAttention(ctx, m.now().Add(-staleAfter))
}

// DeleteAll removes every local event and forgets the sync history markers
// so the next run starts over.
func (m *Manager) DeleteAll(ctx context.Context) (int64, error) {
	n, err := m.store.Events.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.state.Delete(ctx, state.KeyLastSyncTime, state.KeyLastSyncResult); err != nil {
		return n, fmt.Errorf("reset sync state: %w", err)
	}
	m.logger.Info("all events deleted", "count", n)
	return n, nil
}

// Status reports the last run, the event count and whether a sync is in
// progress. NextScheduled is left for the scheduler to fill in.
func (m *Manager) Status(ctx context.Context) (*domain.SyncStatus, error) {
	st := &domain.SyncStatus{}

	if t, ok, err := state.Load[time.Time](ctx, m.state, state.KeyLastSyncTime); err != nil {
		return nil, err
	} else if ok {
		st.LastSync = &t
	}
	if r, ok, err := state.Load[domain.SyncResult](ctx, m.state, state.KeyLastSyncResult); err != nil {
		return nil, err
	} else if ok {
		st.LastResult = &r
	}

	n, err := m.store.Events.Count(ctx)
	if err != nil {
		return nil, err
	}
	st.TotalEvents = n

	if st.IsRunning, err = m.lock.Held(ctx); err != nil {
		return nil, err
	}

	settings, err := state.LoadSettings(ctx, m.state)
	if err != nil {
		return nil, err
	}
	st.SyncInterval = settings.SyncInterval
	return st, nil
}
