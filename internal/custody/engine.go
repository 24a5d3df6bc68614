// Package custody holds the scheduling core: template materialization,
// single-day and bulk mutations with handoff adjacency repair, month-scoped
// cached reads, and the integrity auditor.
package custody

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/notify"
	"github.com/calndr/calndr/internal/storage"
)

type Engine struct {
	store    storage.Store
	cache    cache.Cache
	notifier notify.Notifier
	loc      *time.Location
	logger   zerolog.Logger

	// now is injectable so tests can pin "today".
	now func() time.Time
}

func NewEngine(store storage.Store, c cache.Cache, notifier notify.Notifier, loc *time.Location, logger zerolog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		store:    store,
		cache:    c,
		notifier: notifier,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// today is the current civil date in the configured timezone.
func (e *Engine) today() time.Time {
	return CivilDate(e.now().In(e.loc))
}

func monthRange(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}
