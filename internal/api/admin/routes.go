package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnwards/hsevents/internal/api"
)

// RouterConfig holds the HTTP-level settings for NewRouter.
type RouterConfig struct {
	AuthToken string
	// RateLimit is the per-IP request budget per minute. Zero disables it.
	RateLimit int
}

// NewRouter builds the admin HTTP handler: health and metrics at the root,
// the authenticated JSON API under /api/v1.
func NewRouter(cfg RouterConfig, deps Deps) http.Handler {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(api.Recovery(), api.RequestID(), api.Logging())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.Limit(cfg.RateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited),
			))
		}
		r.Use(api.Auth(cfg.AuthToken))

		r.Get("/nonce", h.Nonce)

		r.Group(func(r chi.Router) {
			r.Use(deps.Nonces.Require())
			RegisterRoutes(r, h)
		})
	})

	return r
}

// RegisterRoutes registers the nonce-protected admin endpoints on r.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/connection/test", h.TestConnection)

	r.Post("/sync", h.RunSync)
	r.Post("/sync/stop", h.RequestStop)
	r.Post("/sync/force-stop", h.ForceStop)
	r.Get("/sync/status", h.Status)
	r.Get("/sync/runs", h.ListRuns)
	r.Get("/sync/runs/{runID}", h.GetRun)
	r.Post("/sync/records/{upstreamID}", h.SyncRecord)

	r.Get("/events", h.ListEvents)
	r.Delete("/events", h.DeleteAll)
	r.Get("/events/attention", h.NeedingAttention)
	r.Get("/events/{eventID}", h.GetEvent)
	r.Post("/events/{eventID}/screenshot", h.Screenshot)
	r.Post("/images/fetch-missing", h.FetchMissingImages)

	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)

	r.Get("/taxonomies", h.TaxonomyStats)
	r.Post("/taxonomies", h.CreateTaxonomy)
	r.Get("/taxonomies/suggestions", h.TaxonomySuggestions)

	r.Get("/notices", h.Notices)

	r.Get("/hubspot/rate-limit", h.RateLimit)
	r.Get("/hubspot/custom-properties", h.CustomProperties)
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	api.WriteError(w, http.StatusTooManyRequests, &api.Error{
		Status:        "error",
		Message:       "Too many requests",
		CorrelationID: api.CorrelationID(r.Context()),
		Category:      api.CategoryRateLimits,
	})
}
