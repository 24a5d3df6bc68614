package custody

import (
	"context"
	"strings"
	"time"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/storage"
)

// DayView is the projected response shape for one custody day.
type DayView struct {
	ID              int64   `json:"id"`
	EventDate       string  `json:"event_date"`
	Content         string  `json:"content"`
	CustodianID     string  `json:"custodian_id"`
	HandoffDay      bool    `json:"handoff_day"`
	HandoffTime     *string `json:"handoff_time,omitempty"`
	HandoffLocation *string `json:"handoff_location,omitempty"`
}

// ProjectDay maps a stored record to its response shape. Custodian ids are
// lowercased to keep client-side comparisons stable.
func ProjectDay(r *storage.CustodyRecord) DayView {
	return DayView{
		ID:              r.ID,
		EventDate:       r.Date.Format("2006-01-02"),
		Content:         r.CustodianFirstName,
		CustodianID:     strings.ToLower(r.CustodianID),
		HandoffDay:      r.HandoffDay,
		HandoffTime:     r.HandoffTime,
		HandoffLocation: r.HandoffLocation,
	}
}

// GetMonth returns the month's custody days, read through the cache. An
// empty month entirely in the future is lazily materialized from the
// family's active weekly template before the second query.
func (e *Engine) GetMonth(ctx context.Context, familyID string, year int, month time.Month) ([]DayView, error) {
	key := cache.CustodyMonthKey(familyID, cache.Month{Year: year, Month: month})

	// An empty cached month is treated as stale and re-queried.
	var cached []DayView
	if e.cache.GetJSON(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}

	start, end := monthRange(year, month)
	recs, err := e.store.ListCustodyRange(ctx, familyID, start, end, false)
	if err != nil {
		return nil, err
	}

	if len(recs) == 0 && start.After(e.today()) {
		if generated, err := e.lazyGenerate(ctx, familyID, start, end); err != nil {
			e.logger.Warn().Err(err).Str("family_id", familyID).Msg("lazy month generation failed")
		} else if generated {
			recs, err = e.store.ListCustodyRange(ctx, familyID, start, end, false)
			if err != nil {
				return nil, err
			}
		}
	}

	views := make([]DayView, 0, len(recs))
	for _, r := range recs {
		views = append(views, ProjectDay(r))
	}

	e.cache.SetJSON(ctx, key, views, e.monthTTL(year, month))
	return views, nil
}

// GetMonthHandoffs returns only the month's handoff days that carry a time.
// Unlike GetMonth, an empty cached value is a valid empty result.
func (e *Engine) GetMonthHandoffs(ctx context.Context, familyID string, year int, month time.Month) ([]DayView, error) {
	key := cache.HandoffMonthKey(familyID, cache.Month{Year: year, Month: month})

	var cached []DayView
	if e.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	start, end := monthRange(year, month)
	recs, err := e.store.ListCustodyRange(ctx, familyID, start, end, true)
	if err != nil {
		return nil, err
	}

	views := make([]DayView, 0, len(recs))
	for _, r := range recs {
		views = append(views, ProjectDay(r))
	}

	e.cache.SetJSON(ctx, key, views, cache.TTLHandoffOnly)
	return views, nil
}

func (e *Engine) lazyGenerate(ctx context.Context, familyID string, start, end time.Time) (bool, error) {
	tmpl, err := e.store.GetActiveScheduleTemplate(ctx, familyID)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if tmpl.PatternType != storage.PatternWeekly {
		return false, nil
	}

	res, err := e.ApplyTemplate(ctx, familyID, tmpl, start, end, true, "")
	if err != nil {
		return false, err
	}
	return res.DaysApplied > 0, nil
}

func (e *Engine) monthTTL(year int, month time.Month) time.Duration {
	today := e.today()
	if year > today.Year() || (year == today.Year() && month >= today.Month()) {
		return cache.TTLCustodyCurrent
	}
	return cache.TTLCustodyPast
}
