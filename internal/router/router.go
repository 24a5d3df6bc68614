// Package router is the HTTP adapter: route registration, bearer auth,
// request decoding, and error-to-status translation.
package router

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/calndr/calndr/internal/auth"
	"github.com/calndr/calndr/internal/config"
	"github.com/calndr/calndr/internal/custody"
	"github.com/calndr/calndr/internal/events"
	"github.com/calndr/calndr/internal/storage"
	calsync "github.com/calndr/calndr/internal/sync"
)

type Router struct {
	engine     *custody.Engine
	events     *events.View
	pipeline   *calsync.Pipeline
	discoverer *calsync.Discoverer
	store      storage.Store
	bearer     *auth.BearerAuth
	logger     zerolog.Logger
	maxBody    int64
}

func New(
	cfg *config.Config,
	engine *custody.Engine,
	view *events.View,
	pipeline *calsync.Pipeline,
	discoverer *calsync.Discoverer,
	store storage.Store,
	bearer *auth.BearerAuth,
	logger zerolog.Logger,
) http.Handler {
	r := &Router{
		engine:     engine,
		events:     view,
		pipeline:   pipeline,
		discoverer: discoverer,
		store:      store,
		bearer:     bearer,
		logger:     logger,
		maxBody:    cfg.HTTP.MaxBodyBytes,
	}
	return accessLog(logger, r.routes())
}

func (r *Router) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)

	mux.Handle("POST /custody", r.authed(r.handleCreateCustody))
	mux.Handle("POST /custody/bulk", r.authed(r.handleBulkCustody))
	mux.Handle("PUT /custody/date/{date}", r.authed(r.handleUpdateCustody))
	mux.Handle("GET /custody/{year}/{month}", r.authed(r.handleGetMonth))
	mux.Handle("GET /custody/handoff-only/{year}/{month}", r.authed(r.handleGetMonthHandoffs))

	mux.Handle("GET /events/{year}/{month}", r.authed(r.handleEventsMonth))
	mux.Handle("GET /events/{$}", r.authed(r.handleEventsRange))

	mux.Handle("GET /schedule-templates", r.authed(r.handleListTemplates))
	mux.Handle("POST /schedule-templates", r.authed(r.handleCreateTemplate))
	mux.Handle("PUT /schedule-templates/{id}", r.authed(r.handleUpdateTemplate))
	mux.Handle("POST /schedule-templates/apply", r.authed(r.handleApplyTemplate))

	mux.Handle("GET /custody-maintenance/integrity-check", r.authed(r.handleIntegrityCheck))
	mux.Handle("POST /custody-maintenance/fix-mismatches", r.authed(r.handleFixMismatches))

	for prefix, kind := range map[string]storage.ProviderKind{
		"school-providers":  storage.KindSchool,
		"daycare-providers": storage.KindDaycare,
	} {
		mux.Handle("POST /"+prefix+"/{id}/parse-events", r.authed(r.handleParseEvents(kind)))
		mux.Handle("GET /"+prefix+"/{id}/discover-calendar", r.authed(r.handleDiscoverCalendar(kind)))
		mux.Handle("GET /"+prefix+"/{id}/sync-status", r.authed(r.handleSyncStatus(kind)))
	}

	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authed resolves the bearer principal and rejects anonymous requests.
func (r *Router) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		authz := req.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		p, err := r.bearer.Authenticate(req.Context(), strings.TrimSpace(authz[7:]))
		if err != nil || p == nil {
			r.logger.Info().
				Bool("auth_success", false).
				Str("path", req.URL.Path).
				Str("ip", realIP(req)).
				AnErr("error", err).
				Msg("auth attempt")
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, req.WithContext(auth.WithPrincipal(req.Context(), p)))
	})
}
