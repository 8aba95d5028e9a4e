// Package admin serves the operator JSON API for the sync connector.
package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/johnwards/hsevents/internal/api"
	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/hubspot"
	"github.com/johnwards/hsevents/internal/images"
	"github.com/johnwards/hsevents/internal/state"
	"github.com/johnwards/hsevents/internal/store"
	"github.com/johnwards/hsevents/internal/syncer"
	"github.com/johnwards/hsevents/internal/taxonomy"
)

const (
	defaultLimit = 20
	maxLimit     = 100

	// DeleteConfirmation must be sent verbatim to delete every event.
	DeleteConfirmation = "DELETE ALL EVENTS"
)

// Scheduler is the part of the interval scheduler the API drives.
type Scheduler interface {
	Next() *time.Time
	Reschedule(interval string)
}

// Deps are the services behind the admin API. Scheduler may be nil.
type Deps struct {
	Syncer      *syncer.Manager
	Client      *hubspot.Client
	Store       *store.Store
	State       state.Store
	Images      *images.Attacher
	Screenshots []images.Provider
	Taxonomies  *taxonomy.Discoverer
	Scheduler   Scheduler
	Nonces      *api.Nonces
}

// Handler serves the admin API.
type Handler struct {
	Deps
	validate *validator.Validate
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.Screenshots == nil {
		deps.Screenshots = images.DefaultProviders()
	}
	return &Handler{
		Deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Nonce issues a request nonce for the current bucket.
func (h *Handler) Nonce(w http.ResponseWriter, _ *http.Request) {
	api.WriteSuccess(w, "Nonce issued", map[string]string{"nonce": h.Nonces.Issue()})
}

type testConnectionRequest struct {
	Token string `json:"token"`
}

// TestConnection checks that a token (or the configured one) can read
// HubSpot.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Client.TestAuth(r.Context(), req.Token)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "Connection successful", res)
}

type runSyncRequest struct {
	Full bool `json:"full"`
}

// RunSync runs a sync to completion. The run is detached from the request
// so a dropped client does not abandon it half way.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	var req runSyncRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Syncer.Sync(context.WithoutCancel(r.Context()), req.Full)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	msg := "Sync completed"
	if res.Stopped {
		msg = "Sync stopped"
	}
	api.WriteSuccess(w, msg, res)
}

// RequestStop asks the running sync to stop.
func (h *Handler) RequestStop(w http.ResponseWriter, r *http.Request) {
	if err := h.Syncer.RequestStop(r.Context()); err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "Stop requested", nil)
}

// ForceStop clears a stuck lock.
func (h *Handler) ForceStop(w http.ResponseWriter, r *http.Request) {
	if err := h.Syncer.ForceStop(r.Context()); err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "Sync lock cleared", nil)
}

// Status reports the sync subsystem state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.Syncer.Status(r.Context())
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	if h.Scheduler != nil {
		st.NextScheduled = h.Scheduler.Next()
	}
	api.WriteSuccess(w, "", st)
}

// ListRuns pages through the sync history, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	runs, hasMore, next, err := h.Store.SyncRuns.List(r.Context(), limit, r.URL.Query().Get("after"))
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", api.NewCollection(runs, hasMore, next))
}

// GetRun returns one sync run with its errors.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "runID")
	if !ok {
		return
	}
	run, err := h.Store.SyncRuns.Get(r.Context(), id)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", run)
}

// SyncRecord syncs a single upstream record by id.
func (h *Handler) SyncRecord(w http.ResponseWriter, r *http.Request) {
	res, err := h.Syncer.SyncSingleByID(r.Context(), chi.URLParam(r, "upstreamID"))
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "Record "+res.Action, res)
}

// ListEvents pages through local events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	events, hasMore, next, err := h.Store.Events.List(r.Context(), limit, r.URL.Query().Get("after"))
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", api.NewCollection(events, hasMore, next))
}

// GetEvent returns one local event.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "eventID")
	if !ok {
		return
	}
	ev, err := h.Store.Events.Get(r.Context(), id)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", ev)
}

type deleteAllRequest struct {
	Confirmation string `json:"confirmation" validate:"eq=DELETE ALL EVENTS"`
}

// DeleteAll removes every event once the confirmation phrase matches.
func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	var req deleteAllRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	n, err := h.Syncer.DeleteAll(r.Context())
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "All events deleted", map[string]int64{"deleted": n})
}

// NeedingAttention lists orphaned and stale events.
func (h *Handler) NeedingAttention(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Syncer.NeedingAttention(r.Context())
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", rep)
}

type screenshotRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// Screenshot captures a page and stores it as the event image.
func (h *Handler) Screenshot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req screenshotRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if err := h.Images.Screenshot(r.Context(), id, req.URL, h.Screenshots); err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "Screenshot saved", nil)
}

// FetchMissingImages backfills images for events that have none.
func (h *Handler) FetchMissingImages(w http.ResponseWriter, r *http.Request) {
	res, err := h.Images.FetchMissing(context.WithoutCancel(r.Context()))
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "Image backfill finished", res)
}

type settingsResponse struct {
	domain.Settings
	APITokenSet bool `json:"api_token_set"`
}

func viewSettings(s domain.Settings) settingsResponse {
	out := settingsResponse{Settings: s, APITokenSet: s.APIToken != ""}
	out.APIToken = ""
	return out
}

// GetSettings returns the current settings with the token masked.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := state.LoadSettings(r.Context(), h.State)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", viewSettings(s))
}

// PutSettings validates and saves settings, rescheduling the periodic sync
// when its interval changes.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var in domain.Settings
	if !h.decodeValid(w, r, &in) {
		return
	}
	ctx := r.Context()

	prev, err := state.LoadSettings(ctx, h.State)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	saved, err := state.SaveSettings(ctx, h.State, in)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	if h.Scheduler != nil && saved.SyncInterval != prev.SyncInterval {
		h.Scheduler.Reschedule(saved.SyncInterval)
	}
	api.WriteSuccess(w, "Settings saved", viewSettings(saved))
}

// TaxonomyStats lists taxonomies with their term and usage counts.
func (h *Handler) TaxonomyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Taxonomies.Stats(r.Context())
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", stats)
}

type createTaxonomyRequest struct {
	Field string `json:"field" validate:"required"`
}

// CreateTaxonomy materializes the taxonomy for a discovered field.
func (h *Handler) CreateTaxonomy(w http.ResponseWriter, r *http.Request) {
	var req createTaxonomyRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	cfg, created, err := h.Taxonomies.Materialize(r.Context(), req.Field)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	msg := "Taxonomy already exists"
	if created {
		msg = "Taxonomy created"
	}
	api.WriteSuccess(w, msg, cfg)
}

// TaxonomySuggestions analyzes the configured source and proposes
// taxonomies for its classifying fields.
func (h *Handler) TaxonomySuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := state.LoadSettings(ctx, h.State)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	recs, err := h.Client.FetchAll(ctx, s.DataSource, hubspot.Filters{})
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", taxonomy.Suggestions(recs))
}

// Notices returns and clears the first-sync notice, if any.
func (h *Handler) Notices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notice, ok, err := state.Load[domain.FirstSyncNotice](ctx, h.State, state.KeyFirstSyncNotice)
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	if !ok {
		api.WriteSuccess(w, "", nil)
		return
	}
	if err := h.State.Delete(ctx, state.KeyFirstSyncNotice); err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", notice)
}

// RateLimit reports HubSpot's remaining API quota.
func (h *Handler) RateLimit(w http.ResponseWriter, r *http.Request) {
	rl, err := h.Client.RateLimitStatus(r.Context())
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", rl)
}

// CustomProperties lists the custom properties seen on marketing events.
func (h *Handler) CustomProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.Client.CustomProperties(r.Context())
	if err != nil {
		api.WriteErr(w, r, err)
		return
	}
	api.WriteSuccess(w, "", props)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := api.DecodeJSON(r, v); err != nil {
		api.WriteError(w, http.StatusBadRequest,
			api.NewValidationError("Invalid JSON body", api.CorrelationID(r.Context()), nil))
		return false
	}
	return true
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if !h.decode(w, r, v) {
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		api.WriteErr(w, r, err)
		return false
	}
	return true
}

func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		api.WriteError(w, http.StatusBadRequest, api.NewValidationError(
			"limit must be a positive integer", api.CorrelationID(r.Context()),
			[]api.ErrorDetail{{Message: "invalid limit", Code: "INVALID_limit", In: "limit"}}))
		return 0, false
	}
	return min(n, maxLimit), true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id < 1 {
		api.WriteError(w, http.StatusBadRequest, api.NewValidationError(
			"Invalid id", api.CorrelationID(r.Context()),
			[]api.ErrorDetail{{Message: "id must be a positive integer", Code: "INVALID_id", In: param}}))
		return 0, false
	}
	return id, true
}
