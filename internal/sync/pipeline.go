package sync

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/storage"
)

const maxFeedBytes = 8 << 20

// Keyword classes checked in order; the first hit wins.
var eventTypeRules = []struct {
	eventType string
	keywords  []string
}{
	{"closure", []string{"closed", "closure", "holiday", "break", "vacation"}},
	{"early_dismissal", []string{"early dismissal", "early release", "half day", "dismissal"}},
	{"pd_day", []string{"pd day", "professional development", "teacher workday"}},
}

func classifyEventType(title string) string {
	lower := strings.ToLower(title)
	for _, rule := range eventTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.eventType
			}
		}
	}
	return "event"
}

// Report is the per-kind outcome of a batch run.
type Report struct {
	Total        int `json:"total"`
	Successful   int `json:"successful"`
	Failed       int `json:"failed"`
	EventsSynced int `json:"events_synced"`
}

type Pipeline struct {
	store  storage.Store
	cache  cache.Cache
	client *http.Client
	ua     string
	logger zerolog.Logger
	now    func() time.Time
}

func NewPipeline(store storage.Store, c cache.Cache, client *http.Client, userAgent string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		cache:  c,
		client: client,
		ua:     userAgent,
		logger: logger,
		now:    time.Now,
	}
}

// SyncProvider fetches and parses one provider's calendar, replaces its
// stored events, and records the outcome on the sync row. A fetch or parse
// failure is bookkept but leaves the previously synced events untouched.
func (p *Pipeline) SyncProvider(ctx context.Context, kind storage.ProviderKind, provider *storage.Provider, calendarURL string) (int, error) {
	parsed, err := p.fetchEvents(ctx, calendarURL)
	if err != nil {
		msg := err.Error()
		if _, _, rerr := p.store.RecordSyncResult(ctx, kind, provider.ID, calendarURL, storage.SyncResult{
			At:      p.now().UTC(),
			Success: false,
			Error:   &msg,
		}); rerr != nil {
			p.logger.Error().Err(rerr).
				Str("kind", string(kind)).
				Int64("provider_id", provider.ID).
				Msg("failed to record sync failure")
		}
		return 0, err
	}

	events := make([]*storage.ProviderEvent, 0, len(parsed))
	for _, e := range parsed {
		events = append(events, &storage.ProviderEvent{
			ProviderID: provider.ID,
			Date:       e.Date,
			Title:      e.Title,
			EventType:  classifyEventType(e.Title),
			AllDay:     true,
		})
	}

	count, err := p.store.ReplaceProviderEvents(ctx, kind, provider.ID, events)
	if err != nil {
		return 0, fmt.Errorf("replace events: %w", err)
	}

	syncID, adopted, err := p.store.RecordSyncResult(ctx, kind, provider.ID, calendarURL, storage.SyncResult{
		At:          p.now().UTC(),
		Success:     true,
		EventsCount: count,
	})
	if err != nil {
		return count, fmt.Errorf("record sync result: %w", err)
	}
	if adopted {
		if err := p.store.SetFamilySyncAssignment(ctx, provider.FamilyID, kind, syncID); err != nil {
			p.logger.Error().Err(err).
				Str("family_id", provider.FamilyID).
				Str("kind", string(kind)).
				Int64("sync_id", syncID).
				Msg("failed to point family at new sync")
		}
	}

	p.cache.DeletePattern(ctx, cache.FamilyEventsPattern(provider.FamilyID))

	p.logger.Info().
		Str("kind", string(kind)).
		Int64("provider_id", provider.ID).
		Int("events", count).
		Msg("provider calendar synced")
	return count, nil
}

// RunAll refreshes every enabled sync of both kinds, sequentially, and
// returns a per-kind report. Individual failures never abort the batch.
func (p *Pipeline) RunAll(ctx context.Context) map[storage.ProviderKind]*Report {
	reports := make(map[storage.ProviderKind]*Report, 2)
	for _, kind := range []storage.ProviderKind{storage.KindSchool, storage.KindDaycare} {
		reports[kind] = p.runKind(ctx, kind)
	}
	return reports
}

func (p *Pipeline) runKind(ctx context.Context, kind storage.ProviderKind) *Report {
	report := &Report{}

	syncs, err := p.store.ListEnabledCalendarSyncs(ctx, kind)
	if err != nil {
		p.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to list enabled syncs")
		return report
	}

	for _, s := range syncs {
		if ctx.Err() != nil {
			return report
		}
		report.Total++

		provider, err := p.store.GetProviderByID(ctx, kind, s.ProviderID)
		if err != nil {
			report.Failed++
			p.logger.Error().Err(err).
				Str("kind", string(kind)).
				Int64("provider_id", s.ProviderID).
				Msg("sync references missing provider")
			continue
		}

		count, err := p.SyncProvider(ctx, kind, provider, s.CalendarURL)
		if err != nil {
			report.Failed++
			p.logger.Warn().Err(err).
				Str("kind", string(kind)).
				Int64("provider_id", provider.ID).
				Msg("provider sync failed")
			continue
		}
		report.Successful++
		report.EventsSynced += count
	}
	return report
}

// fetchEvents downloads the calendar and routes it to the iCalendar or HTML
// parser based on what came back.
func (p *Pipeline) fetchEvents(ctx context.Context, calendarURL string) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, calendarURL, nil)
	if err != nil {
		return nil, err
	}
	if p.ua != "" {
		req.Header.Set("User-Agent", p.ua)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", calendarURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, err
	}

	if isICS(calendarURL, resp.Header.Get("Content-Type"), body) {
		return ParseICSEvents(body, p.now())
	}
	return ParseHTMLEvents(strings.NewReader(string(body)), p.now())
}

func isICS(calendarURL, contentType string, body []byte) bool {
	if strings.HasSuffix(strings.ToLower(strings.SplitN(calendarURL, "?", 2)[0]), ".ics") {
		return true
	}
	if strings.Contains(strings.ToLower(contentType), "text/calendar") {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(string(body[:min(len(body), 64)])), "BEGIN:VCALENDAR")
}

// Scheduler re-runs the batch on a fixed interval until the context ends.
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	logger   zerolog.Logger
}

func NewScheduler(pipeline *Pipeline, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{pipeline: pipeline, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. An interval of zero disables the
// scheduler entirely.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("calendar sync scheduler disabled")
		<-ctx.Done()
		return
	}

	// Jittered start so restarted replicas don't sync in lockstep.
	if jitter := s.interval / 10; jitter > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(rand.Int64N(int64(jitter)))):
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("calendar sync scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reports := s.pipeline.RunAll(ctx)
			for kind, r := range reports {
				s.logger.Info().
					Str("kind", string(kind)).
					Int("total", r.Total).
					Int("successful", r.Successful).
					Int("failed", r.Failed).
					Int("events", r.EventsSynced).
					Msg("sync batch finished")
			}
		}
	}
}
