// Package storagetest provides an in-memory Store with the same semantics
// as the postgres gateway, for exercising the scheduling core without a
// database.
package storagetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/calndr/calndr/internal/storage"
)

type Store struct {
	mu sync.Mutex

	families  map[string]*storage.Family
	users     map[string]*storage.User
	templates map[int64]*storage.ScheduleTemplate

	// custody is keyed by family, then civil date.
	custody      map[string]map[time.Time]*storage.CustodyRecord
	familyEvents []*storage.FamilyEvent

	providers      map[storage.ProviderKind]map[int64]*storage.Provider
	syncs          map[storage.ProviderKind]map[int64]*storage.CalendarSync
	providerEvents map[storage.ProviderKind]map[int64][]*storage.ProviderEvent

	nextID int64
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		families:       make(map[string]*storage.Family),
		users:          make(map[string]*storage.User),
		templates:      make(map[int64]*storage.ScheduleTemplate),
		custody:        make(map[string]map[time.Time]*storage.CustodyRecord),
		providers:      make(map[storage.ProviderKind]map[int64]*storage.Provider),
		syncs:          make(map[storage.ProviderKind]map[int64]*storage.CalendarSync),
		providerEvents: make(map[storage.ProviderKind]map[int64][]*storage.ProviderEvent),
	}
	for _, kind := range []storage.ProviderKind{storage.KindSchool, storage.KindDaycare} {
		s.providers[kind] = make(map[int64]*storage.Provider)
		s.syncs[kind] = make(map[int64]*storage.CalendarSync)
		s.providerEvents[kind] = make(map[int64][]*storage.ProviderEvent)
	}
	return s
}

func (s *Store) Close() {}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Seeding helpers for tests.

func (s *Store) SeedFamily(f *storage.Family) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families[f.ID] = f
}

func (s *Store) SeedUser(u *storage.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) SeedFamilyEvent(e *storage.FamilyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	e.Date = civil(e.Date)
	s.familyEvents = append(s.familyEvents, e)
}

func (s *Store) SeedProvider(p *storage.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.providers[p.Kind][p.ID] = p
}

func (s *Store) SeedCustody(rec *storage.CustodyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.id()
	rec.Date = civil(rec.Date)
	s.familyCustody(rec.FamilyID)[rec.Date] = rec
}

func (s *Store) familyCustody(familyID string) map[time.Time]*storage.CustodyRecord {
	m, ok := s.custody[familyID]
	if !ok {
		m = make(map[time.Time]*storage.CustodyRecord)
		s.custody[familyID] = m
	}
	return m
}

// Families and users

func (s *Store) GetFamily(_ context.Context, familyID string) (*storage.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[familyID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *Store) ListFamilyUsers(_ context.Context, familyID string) ([]*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.User
	for _, u := range s.users {
		if u.FamilyID == familyID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.CreatedAt != nil && b.CreatedAt != nil && !a.CreatedAt.Equal(*b.CreatedAt):
			return a.CreatedAt.Before(*b.CreatedAt)
		case a.CreatedAt != nil && b.CreatedAt == nil:
			return true
		case a.CreatedAt == nil && b.CreatedAt != nil:
			return false
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetNotificationTarget(_ context.Context, familyID, actorID string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.FamilyID == familyID && u.ID != actorID && u.SNSEndpointARN != nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Schedule templates

func (s *Store) CreateScheduleTemplate(_ context.Context, t *storage.ScheduleTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.IsActive {
		s.deactivateOthersLocked(t.FamilyID, 0)
	}
	t.ID = s.id()
	t.CreatedAt = time.Now().UTC()
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

func (s *Store) UpdateScheduleTemplate(_ context.Context, t *storage.ScheduleTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.templates[t.ID]
	if !ok || existing.FamilyID != t.FamilyID {
		return storage.ErrNotFound
	}
	if t.IsActive {
		s.deactivateOthersLocked(t.FamilyID, t.ID)
	}
	t.CreatedAt = existing.CreatedAt
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

func (s *Store) deactivateOthersLocked(familyID string, exceptID int64) {
	for _, other := range s.templates {
		if other.FamilyID == familyID && other.ID != exceptID {
			other.IsActive = false
		}
	}
}

func (s *Store) GetScheduleTemplate(_ context.Context, familyID string, id int64) (*storage.ScheduleTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok || t.FamilyID != familyID {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListScheduleTemplates(_ context.Context, familyID string) ([]*storage.ScheduleTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.ScheduleTemplate
	for _, t := range s.templates {
		if t.FamilyID == familyID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetActiveScheduleTemplate(_ context.Context, familyID string) (*storage.ScheduleTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *storage.ScheduleTemplate
	for _, t := range s.templates {
		if t.FamilyID == familyID && t.IsActive {
			if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
				latest = t
			}
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// Custody

func (s *Store) withName(rec *storage.CustodyRecord) *storage.CustodyRecord {
	cp := *rec
	if u, ok := s.users[rec.CustodianID]; ok {
		cp.CustodianFirstName = u.FirstName
	}
	return &cp
}

func (s *Store) GetCustodyByDate(_ context.Context, familyID string, date time.Time) (*storage.CustodyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.familyCustody(familyID)[civil(date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.withName(rec), nil
}

func (s *Store) GetLatestCustodyBefore(_ context.Context, familyID string, date time.Time) (*storage.CustodyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := civil(date)
	var latest *storage.CustodyRecord
	for d, rec := range s.familyCustody(familyID) {
		if d.Before(cutoff) && (latest == nil || d.After(latest.Date)) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return s.withName(latest), nil
}

func (s *Store) ListCustodyRange(_ context.Context, familyID string, start, end time.Time, handoffsOnly bool) ([]*storage.CustodyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end = civil(start), civil(end)
	var out []*storage.CustodyRecord
	for d, rec := range s.familyCustody(familyID) {
		if d.Before(start) || d.After(end) {
			continue
		}
		if handoffsOnly && !(rec.HandoffDay && rec.HandoffTime != nil) {
			continue
		}
		out = append(out, s.withName(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) InsertCustody(_ context.Context, rec *storage.CustodyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *Store) insertLocked(rec *storage.CustodyRecord) error {
	rec.Date = civil(rec.Date)
	m := s.familyCustody(rec.FamilyID)
	if _, exists := m[rec.Date]; exists {
		return storage.ErrConflict
	}
	rec.ID = s.id()
	cp := *rec
	m[rec.Date] = &cp
	return nil
}

func (s *Store) BulkInsertCustody(_ context.Context, recs []*storage.CustodyRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// All-or-nothing, like the transactional gateway.
	for _, rec := range recs {
		if _, exists := s.familyCustody(rec.FamilyID)[civil(rec.Date)]; exists {
			return 0, storage.ErrConflict
		}
	}
	for _, rec := range recs {
		_ = s.insertLocked(rec)
	}
	return len(recs), nil
}

func (s *Store) BulkUpsertCustody(_ context.Context, recs []*storage.CustodyRecord) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted, overwritten := 0, 0
	for _, rec := range recs {
		rec.Date = civil(rec.Date)
		m := s.familyCustody(rec.FamilyID)
		if existing, ok := m[rec.Date]; ok {
			rec.ID = existing.ID
			overwritten++
		} else {
			rec.ID = s.id()
			inserted++
		}
		cp := *rec
		m[rec.Date] = &cp
	}
	return inserted, overwritten, nil
}

func (s *Store) UpdateCustodyRecords(_ context.Context, recs []*storage.CustodyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		existing, ok := s.familyCustody(rec.FamilyID)[civil(rec.Date)]
		if !ok || existing.ID != rec.ID {
			return storage.ErrNotFound
		}
	}
	for _, rec := range recs {
		cp := *rec
		cp.Date = civil(rec.Date)
		s.familyCustody(rec.FamilyID)[cp.Date] = &cp
	}
	return nil
}

func (s *Store) CountCustody(_ context.Context, familyID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.familyCustody(familyID)), nil
}

func (s *Store) ListCustodyMismatches(_ context.Context, familyID string) ([]*storage.CustodyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.CustodyRecord
	for _, rec := range s.familyCustody(familyID) {
		u, ok := s.users[rec.CustodianID]
		if ok && u.FamilyID == familyID && u.Status == storage.UserActive {
			continue
		}
		out = append(out, s.withName(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) UpdateCustodyCustodians(_ context.Context, familyID string, fixes map[int64]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := 0
	for _, rec := range s.familyCustody(familyID) {
		if newID, ok := fixes[rec.ID]; ok {
			rec.CustodianID = newID
			applied++
		}
	}
	return applied, nil
}

// Family events

func (s *Store) ListFamilyEvents(_ context.Context, familyID string, start, end time.Time) ([]*storage.FamilyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end = civil(start), civil(end)
	var out []*storage.FamilyEvent
	for _, e := range s.familyEvents {
		if e.FamilyID != familyID || e.EventType == "custody" {
			continue
		}
		if e.Date.Before(start) || e.Date.After(end) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Providers, syncs and provider events

func (s *Store) GetProvider(_ context.Context, kind storage.ProviderKind, familyID string, id int64) (*storage.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[kind][id]
	if !ok || p.FamilyID != familyID {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetProviderByID(_ context.Context, kind storage.ProviderKind, id int64) (*storage.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[kind][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ReplaceProviderEvents(_ context.Context, kind storage.ProviderKind, providerID int64, events []*storage.ProviderEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Last write wins within the batch, mirroring the upsert.
	byKey := make(map[string]*storage.ProviderEvent, len(events))
	var order []string
	for _, e := range events {
		cp := *e
		cp.ProviderID = providerID
		cp.Date = civil(e.Date)
		key := cp.Date.Format("2006-01-02") + "|" + cp.Title
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = &cp
	}
	replaced := make([]*storage.ProviderEvent, 0, len(byKey))
	for _, key := range order {
		e := byKey[key]
		e.ID = s.id()
		replaced = append(replaced, e)
	}
	s.providerEvents[kind][providerID] = replaced
	return len(replaced), nil
}

func (s *Store) RecordSyncResult(_ context.Context, kind storage.ProviderKind, providerID int64, calendarURL string, res storage.SyncResult) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *storage.CalendarSync
	for _, c := range s.syncs[kind] {
		if c.ProviderID == providerID && c.CalendarURL == calendarURL {
			existing = c
			break
		}
	}

	enable := res.Success
	if existing != nil && existing.SyncEnabled {
		enable = true
	}
	adopted := enable && (existing == nil || !existing.SyncEnabled)

	at := res.At
	c := &storage.CalendarSync{
		ProviderID:      providerID,
		Kind:            kind,
		CalendarURL:     calendarURL,
		SyncEnabled:     enable,
		LastSyncAt:      &at,
		LastSyncSuccess: &res.Success,
		LastSyncError:   res.Error,
		EventsCount:     res.EventsCount,
	}
	if existing != nil {
		c.ID = existing.ID
	} else {
		c.ID = s.id()
	}
	s.syncs[kind][c.ID] = c
	return c.ID, adopted, nil
}

func (s *Store) GetCalendarSyncByProvider(_ context.Context, kind storage.ProviderKind, providerID int64) (*storage.CalendarSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *storage.CalendarSync
	for _, c := range s.syncs[kind] {
		if c.ProviderID != providerID {
			continue
		}
		if latest == nil {
			latest = c
			continue
		}
		if c.LastSyncAt != nil && (latest.LastSyncAt == nil || c.LastSyncAt.After(*latest.LastSyncAt)) {
			latest = c
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) ListEnabledCalendarSyncs(_ context.Context, kind storage.ProviderKind) ([]*storage.CalendarSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.CalendarSync
	for _, c := range s.syncs[kind] {
		if c.SyncEnabled {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetFamilySyncAssignment(_ context.Context, familyID string, kind storage.ProviderKind, syncID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[familyID]
	if !ok {
		return storage.ErrNotFound
	}
	switch kind {
	case storage.KindSchool:
		f.SchoolSyncID = &syncID
	case storage.KindDaycare:
		f.DaycareSyncID = &syncID
	}
	return nil
}

func (s *Store) ListAssignedProviderEvents(_ context.Context, kind storage.ProviderKind, familyID string, start, end time.Time, closuresOnly bool) ([]*storage.ProviderEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.families[familyID]
	if !ok {
		return nil, nil
	}
	var syncID *int64
	switch kind {
	case storage.KindSchool:
		syncID = f.SchoolSyncID
	case storage.KindDaycare:
		syncID = f.DaycareSyncID
	}
	if syncID == nil {
		return nil, nil
	}
	c, ok := s.syncs[kind][*syncID]
	if !ok || !c.SyncEnabled {
		return nil, nil
	}
	provider, ok := s.providers[kind][c.ProviderID]
	if !ok {
		return nil, nil
	}

	start, end = civil(start), civil(end)
	var out []*storage.ProviderEvent
	for _, e := range s.providerEvents[kind][provider.ID] {
		if e.Date.Before(start) || e.Date.After(end) {
			continue
		}
		if closuresOnly && e.EventType != "closure" {
			continue
		}
		cp := *e
		cp.ProviderName = provider.Name
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}
