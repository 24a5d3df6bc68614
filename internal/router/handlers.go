package router

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/calndr/calndr/internal/auth"
	"github.com/calndr/calndr/internal/custody"
	"github.com/calndr/calndr/internal/storage"
)

type custodyBody struct {
	Date            string  `json:"date"`
	CustodianID     string  `json:"custodian_id"`
	HandoffDay      *bool   `json:"handoff_day,omitempty"`
	HandoffTime     *string `json:"handoff_time,omitempty"`
	HandoffLocation *string `json:"handoff_location,omitempty"`
}

func (b custodyBody) toInput(date string) (custody.MutationInput, error) {
	d, err := custody.ParseDate(date)
	if err != nil {
		return custody.MutationInput{}, err
	}
	return custody.MutationInput{
		Date:            d,
		CustodianID:     b.CustodianID,
		HandoffDay:      b.HandoffDay,
		HandoffTime:     b.HandoffTime,
		HandoffLocation: b.HandoffLocation,
	}, nil
}

func (r *Router) handleCreateCustody(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	var body custodyBody
	if !r.decode(w, req, &body) {
		return
	}
	in, err := body.toInput(body.Date)
	if err != nil {
		r.writeError(w, err)
		return
	}

	rec, err := r.engine.Create(req.Context(), p.FamilyID, in, p.UserID)
	if err != nil {
		r.writeError(w, err)
		return
	}

	// Re-read for the joined custodian name.
	full, err := r.store.GetCustodyByDate(req.Context(), p.FamilyID, rec.Date)
	if err != nil {
		full = rec
	}
	writeJSON(w, http.StatusCreated, custody.ProjectDay(full))
}

func (r *Router) handleBulkCustody(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	var bodies []custodyBody
	if !r.decode(w, req, &bodies) {
		return
	}

	items := make([]custody.MutationInput, 0, len(bodies))
	for _, b := range bodies {
		in, err := b.toInput(b.Date)
		if err != nil {
			r.writeError(w, err)
			return
		}
		items = append(items, in)
	}

	n, err := r.engine.BulkCreate(req.Context(), p.FamilyID, items, p.UserID)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":          "ok",
		"records_created": n,
		"message":         fmt.Sprintf("created %d custody records", n),
	})
}

func (r *Router) handleUpdateCustody(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	var body custodyBody
	if !r.decode(w, req, &body) {
		return
	}
	in, err := body.toInput(req.PathValue("date"))
	if err != nil {
		r.writeError(w, err)
		return
	}

	rec, err := r.engine.UpdateByDate(req.Context(), p.FamilyID, in, p.UserID)
	if err != nil {
		r.writeError(w, err)
		return
	}

	full, err := r.store.GetCustodyByDate(req.Context(), p.FamilyID, rec.Date)
	if err != nil {
		full = rec
	}
	writeJSON(w, http.StatusOK, custody.ProjectDay(full))
}

func monthParams(req *http.Request) (int, time.Month, bool) {
	year, err := strconv.Atoi(req.PathValue("year"))
	if err != nil || year < 1 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(req.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, time.Month(month), true
}

func (r *Router) handleGetMonth(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	year, month, ok := monthParams(req)
	if !ok {
		badRequest(w, "invalid year/month")
		return
	}
	views, err := r.engine.GetMonth(req.Context(), p.FamilyID, year, month)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (r *Router) handleGetMonthHandoffs(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	year, month, ok := monthParams(req)
	if !ok {
		badRequest(w, "invalid year/month")
		return
	}
	views, err := r.engine.GetMonthHandoffs(req.Context(), p.FamilyID, year, month)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (r *Router) handleEventsMonth(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	year, month, ok := monthParams(req)
	if !ok {
		badRequest(w, "invalid year/month")
		return
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	out, err := r.events.Get(req.Context(), p.FamilyID, start, end)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleEventsRange(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	q := req.URL.Query()

	start, err := time.Parse("2006-01-02", q.Get("start_date"))
	if err != nil {
		badRequest(w, "invalid start_date, expected YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", q.Get("end_date"))
	if err != nil {
		badRequest(w, "invalid end_date, expected YYYY-MM-DD")
		return
	}

	out, err := r.events.Get(req.Context(), p.FamilyID, start, end)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type templateBody struct {
	Name                    string                `json:"name"`
	PatternType             storage.PatternType   `json:"pattern_type"`
	WeeklyPattern           storage.WeeklyPattern `json:"weekly_pattern,omitempty"`
	AlternatingWeeksPattern map[string]string     `json:"alternating_weeks_pattern,omitempty"`
	IsActive                bool                  `json:"is_active"`
}

type templateView struct {
	ID                      int64                 `json:"id"`
	Name                    string                `json:"name"`
	PatternType             storage.PatternType   `json:"pattern_type"`
	WeeklyPattern           storage.WeeklyPattern `json:"weekly_pattern,omitempty"`
	AlternatingWeeksPattern map[string]string     `json:"alternating_weeks_pattern,omitempty"`
	IsActive                bool                  `json:"is_active"`
	CreatedAt               time.Time             `json:"created_at"`
}

func projectTemplate(t *storage.ScheduleTemplate) templateView {
	return templateView{
		ID:                      t.ID,
		Name:                    t.Name,
		PatternType:             t.PatternType,
		WeeklyPattern:           t.WeeklyPattern,
		AlternatingWeeksPattern: t.AlternatingWeeksPattern,
		IsActive:                t.IsActive,
		CreatedAt:               t.CreatedAt,
	}
}

func (r *Router) handleListTemplates(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	templates, err := r.store.ListScheduleTemplates(req.Context(), p.FamilyID)
	if err != nil {
		r.writeError(w, err)
		return
	}
	out := make([]templateView, 0, len(templates))
	for _, t := range templates {
		out = append(out, projectTemplate(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleCreateTemplate(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	var body templateBody
	if !r.decode(w, req, &body) {
		return
	}
	if body.Name == "" {
		badRequest(w, "name is required")
		return
	}

	t := &storage.ScheduleTemplate{
		FamilyID:                p.FamilyID,
		Name:                    body.Name,
		PatternType:             body.PatternType,
		WeeklyPattern:           body.WeeklyPattern,
		AlternatingWeeksPattern: body.AlternatingWeeksPattern,
		IsActive:                body.IsActive,
	}
	if err := r.store.CreateScheduleTemplate(req.Context(), t); err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectTemplate(t))
}

func (r *Router) handleUpdateTemplate(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid template id")
		return
	}
	var body templateBody
	if !r.decode(w, req, &body) {
		return
	}

	t := &storage.ScheduleTemplate{
		ID:                      id,
		FamilyID:                p.FamilyID,
		Name:                    body.Name,
		PatternType:             body.PatternType,
		WeeklyPattern:           body.WeeklyPattern,
		AlternatingWeeksPattern: body.AlternatingWeeksPattern,
		IsActive:                body.IsActive,
	}
	if err := r.store.UpdateScheduleTemplate(req.Context(), t); err != nil {
		r.writeError(w, err)
		return
	}

	full, err := r.store.GetScheduleTemplate(req.Context(), p.FamilyID, id)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectTemplate(full))
}

type applyBody struct {
	TemplateID        int64   `json:"template_id"`
	StartDate         *string `json:"start_date,omitempty"`
	EndDate           *string `json:"end_date,omitempty"`
	OverwriteExisting bool    `json:"overwrite_existing"`
}

func (r *Router) handleApplyTemplate(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	var body applyBody
	if !r.decode(w, req, &body) {
		return
	}

	tmpl, err := r.store.GetScheduleTemplate(req.Context(), p.FamilyID, body.TemplateID)
	if err != nil {
		r.writeError(w, err)
		return
	}

	// Default range: tomorrow through ninety days out. ApplyTemplate itself
	// coerces the start to no earlier than tomorrow.
	start := time.Now()
	end := start.AddDate(0, 0, 90)
	if body.StartDate != nil {
		if start, err = custody.ParseDate(*body.StartDate); err != nil {
			r.writeError(w, err)
			return
		}
	}
	if body.EndDate != nil {
		if end, err = custody.ParseDate(*body.EndDate); err != nil {
			r.writeError(w, err)
			return
		}
	}

	res, err := r.engine.ApplyTemplate(req.Context(), p.FamilyID, tmpl, start, end,
		!body.OverwriteExisting, p.UserID)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"message":               fmt.Sprintf("applied template %q to %d days", tmpl.Name, res.DaysApplied),
		"days_applied":          res.DaysApplied,
		"conflicts_overwritten": res.ConflictsOverwritten,
	})
}

func (r *Router) handleIntegrityCheck(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	report, err := r.engine.IntegrityCheck(req.Context(), p.FamilyID)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (r *Router) handleFixMismatches(w http.ResponseWriter, req *http.Request) {
	p, _ := auth.PrincipalFrom(req.Context())
	dryRun := req.URL.Query().Get("dry_run") == "true"
	res, err := r.engine.FixMismatches(req.Context(), p.FamilyID, dryRun)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (r *Router) provider(w http.ResponseWriter, req *http.Request, kind storage.ProviderKind) (*storage.Provider, bool) {
	p, _ := auth.PrincipalFrom(req.Context())
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid provider id")
		return nil, false
	}
	provider, err := r.store.GetProvider(req.Context(), kind, p.FamilyID, id)
	if err != nil {
		r.writeError(w, err)
		return nil, false
	}
	return provider, true
}

func (r *Router) handleParseEvents(kind storage.ProviderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		provider, ok := r.provider(w, req, kind)
		if !ok {
			return
		}
		var body struct {
			CalendarURL string `json:"calendar_url"`
		}
		if !r.decode(w, req, &body) {
			return
		}
		if body.CalendarURL == "" {
			badRequest(w, "calendar_url is required")
			return
		}

		count, err := r.pipeline.SyncProvider(req.Context(), kind, provider, body.CalendarURL)
		if err != nil {
			r.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events_count": count,
			"success":      true,
		})
	}
}

func (r *Router) handleDiscoverCalendar(kind storage.ProviderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		provider, ok := r.provider(w, req, kind)
		if !ok {
			return
		}
		if provider.Website == nil || *provider.Website == "" {
			badRequest(w, "provider has no website")
			return
		}

		discovered, err := r.discoverer.Discover(req.Context(), *provider.Website)
		if err != nil {
			r.writeError(w, err)
			return
		}
		var url *string
		if discovered != "" {
			url = &discovered
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"discovered_calendar_url": url,
			"success":                 url != nil,
		})
	}
}

func (r *Router) handleSyncStatus(kind storage.ProviderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		provider, ok := r.provider(w, req, kind)
		if !ok {
			return
		}
		sync, err := r.store.GetCalendarSyncByProvider(req.Context(), kind, provider.ID)
		if err != nil {
			r.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":                sync.ID,
			"provider_id":       sync.ProviderID,
			"calendar_url":      sync.CalendarURL,
			"sync_enabled":      sync.SyncEnabled,
			"last_sync_at":      sync.LastSyncAt,
			"last_sync_success": sync.LastSyncSuccess,
			"last_sync_error":   sync.LastSyncError,
			"events_count":      sync.EventsCount,
		})
	}
}
