package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/calndr/calndr/internal/storage"
)

func (s *Store) ListFamilyEvents(ctx context.Context, familyID string, start, end time.Time) ([]*storage.FamilyEvent, error) {
	rows, err := s.pool.Query(ctx, `
		select id, family_id::text, date, content, event_type
		from events
		where family_id::text = $1
		  and date between $2::date and $3::date
		  and event_type <> 'custody'
		order by date asc`, familyID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.FamilyEvent
	for rows.Next() {
		var e storage.FamilyEvent
		if err := rows.Scan(&e.ID, &e.FamilyID, &e.Date, &e.Content, &e.EventType); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Per-kind table names. Kinds are a closed enum; anything else panics early
// rather than reaching the database.
func providerTable(kind storage.ProviderKind) string {
	switch kind {
	case storage.KindSchool:
		return "school_providers"
	case storage.KindDaycare:
		return "daycare_providers"
	}
	panic("unknown provider kind: " + string(kind))
}

func syncTable(kind storage.ProviderKind) string {
	switch kind {
	case storage.KindSchool:
		return "school_calendar_syncs"
	case storage.KindDaycare:
		return "daycare_calendar_syncs"
	}
	panic("unknown provider kind: " + string(kind))
}

func eventsTable(kind storage.ProviderKind) string {
	switch kind {
	case storage.KindSchool:
		return "school_events"
	case storage.KindDaycare:
		return "daycare_events"
	}
	panic("unknown provider kind: " + string(kind))
}

func assignmentColumn(kind storage.ProviderKind) string {
	switch kind {
	case storage.KindSchool:
		return "school_sync_id"
	case storage.KindDaycare:
		return "daycare_sync_id"
	}
	panic("unknown provider kind: " + string(kind))
}

func (s *Store) GetProvider(ctx context.Context, kind storage.ProviderKind, familyID string, id int64) (*storage.Provider, error) {
	q := fmt.Sprintf(`
		select id, family_id::text, name, website, google_place_id
		from %s where id = $1 and family_id::text = $2`, providerTable(kind))
	row := s.pool.QueryRow(ctx, q, id, familyID)
	p := storage.Provider{Kind: kind}
	if err := row.Scan(&p.ID, &p.FamilyID, &p.Name, &p.Website, &p.GooglePlaceID); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Store) GetProviderByID(ctx context.Context, kind storage.ProviderKind, id int64) (*storage.Provider, error) {
	q := fmt.Sprintf(`
		select id, family_id::text, name, website, google_place_id
		from %s where id = $1`, providerTable(kind))
	row := s.pool.QueryRow(ctx, q, id)
	p := storage.Provider{Kind: kind}
	if err := row.Scan(&p.ID, &p.FamilyID, &p.Name, &p.Website, &p.GooglePlaceID); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// ReplaceProviderEvents swaps the provider's event set for the parsed one in
// a single transaction. A failed insert leaves the previous set intact.
func (s *Store) ReplaceProviderEvents(ctx context.Context, kind storage.ProviderKind, providerID int64, events []*storage.ProviderEvent) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := eventsTable(kind)
	if _, err := tx.Exec(ctx, fmt.Sprintf(`delete from %s where provider_id = $1`, table), providerID); err != nil {
		return 0, err
	}

	inserted := 0
	for _, e := range events {
		tag, err := tx.Exec(ctx, fmt.Sprintf(`
			insert into %s (provider_id, event_date, title, description, event_type, all_day)
			values ($1, $2::date, $3, $4, $5, $6)
			on conflict (provider_id, event_date, title) do update set
				description = excluded.description,
				event_type = excluded.event_type,
				all_day = excluded.all_day
		`, table), providerID, e.Date, e.Title, e.Description, e.EventType, e.AllDay)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// RecordSyncResult upserts the sync row keyed by (provider, calendar_url).
// A successful run enables the sync; adopted reports whether the row is new
// or flipped from disabled to enabled, which is when the owning family's
// assignment pointer must be rewritten.
func (s *Store) RecordSyncResult(ctx context.Context, kind storage.ProviderKind, providerID int64, calendarURL string, res storage.SyncResult) (int64, bool, error) {
	table := syncTable(kind)

	var syncID int64
	var wasEnabled *bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		select id, sync_enabled from %s
		where provider_id = $1 and calendar_url = $2`, table), providerID, calendarURL).
		Scan(&syncID, &wasEnabled)
	if err != nil && mapErr(err) != storage.ErrNotFound {
		return 0, false, err
	}

	enable := res.Success
	if wasEnabled != nil && *wasEnabled {
		enable = true
	}

	err = s.pool.QueryRow(ctx, fmt.Sprintf(`
		insert into %s (
			provider_id, calendar_url, sync_enabled, last_sync_at,
			last_sync_success, last_sync_error, events_count
		) values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (provider_id, calendar_url) do update set
			sync_enabled = excluded.sync_enabled,
			last_sync_at = excluded.last_sync_at,
			last_sync_success = excluded.last_sync_success,
			last_sync_error = excluded.last_sync_error,
			events_count = excluded.events_count
		returning id
	`, table), providerID, calendarURL, enable, res.At, res.Success, res.Error, res.EventsCount).Scan(&syncID)
	if err != nil {
		return 0, false, err
	}

	adopted := enable && (wasEnabled == nil || !*wasEnabled)
	return syncID, adopted, nil
}

func (s *Store) GetCalendarSyncByProvider(ctx context.Context, kind storage.ProviderKind, providerID int64) (*storage.CalendarSync, error) {
	q := fmt.Sprintf(`
		select id, provider_id, calendar_url, sync_enabled,
		       last_sync_at, last_sync_success, last_sync_error, events_count
		from %s
		where provider_id = $1
		order by last_sync_at desc nulls last
		limit 1`, syncTable(kind))
	row := s.pool.QueryRow(ctx, q, providerID)
	c := storage.CalendarSync{Kind: kind}
	if err := row.Scan(&c.ID, &c.ProviderID, &c.CalendarURL, &c.SyncEnabled,
		&c.LastSyncAt, &c.LastSyncSuccess, &c.LastSyncError, &c.EventsCount); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *Store) ListEnabledCalendarSyncs(ctx context.Context, kind storage.ProviderKind) ([]*storage.CalendarSync, error) {
	q := fmt.Sprintf(`
		select id, provider_id, calendar_url, sync_enabled,
		       last_sync_at, last_sync_success, last_sync_error, events_count
		from %s
		where sync_enabled
		order by id asc`, syncTable(kind))
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.CalendarSync
	for rows.Next() {
		c := storage.CalendarSync{Kind: kind}
		if err := rows.Scan(&c.ID, &c.ProviderID, &c.CalendarURL, &c.SyncEnabled,
			&c.LastSyncAt, &c.LastSyncSuccess, &c.LastSyncError, &c.EventsCount); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) SetFamilySyncAssignment(ctx context.Context, familyID string, kind storage.ProviderKind, syncID int64) error {
	q := fmt.Sprintf(`update families set %s = $1 where id::text = $2`, assignmentColumn(kind))
	tag, err := s.pool.Exec(ctx, q, syncID, familyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAssignedProviderEvents reads the external events visible to a family:
// those of the provider its assignment points at, through an enabled sync.
func (s *Store) ListAssignedProviderEvents(ctx context.Context, kind storage.ProviderKind, familyID string, start, end time.Time, closuresOnly bool) ([]*storage.ProviderEvent, error) {
	q := fmt.Sprintf(`
		select e.id, e.provider_id, e.event_date, e.title, e.description,
		       e.event_type, e.all_day, p.name
		from families f
		join %s s on s.id = f.%s and s.sync_enabled
		join %s p on p.id = s.provider_id
		join %s e on e.provider_id = p.id
		where f.id::text = $1
		  and e.event_date between $2::date and $3::date`,
		syncTable(kind), assignmentColumn(kind), providerTable(kind), eventsTable(kind))
	if closuresOnly {
		q += ` and e.event_type = 'closure'`
	}
	q += ` order by e.event_date asc, e.title asc`

	rows, err := s.pool.Query(ctx, q, familyID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.ProviderEvent
	for rows.Next() {
		var e storage.ProviderEvent
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.Date, &e.Title, &e.Description,
			&e.EventType, &e.AllDay, &e.ProviderName); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
