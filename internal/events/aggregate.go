// Package events provides the unified read over family-authored events and
// the school/daycare events consumed through the family's sync assignments.
package events

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/storage"
)

// Aggregated is the uniform projection of one event, whatever its source.
type Aggregated struct {
	ID           int64   `json:"id"`
	FamilyID     string  `json:"family_id"`
	EventDate    string  `json:"event_date"`
	Content      string  `json:"content"`
	SourceType   string  `json:"source_type"`
	EventType    string  `json:"event_type"`
	Description  *string `json:"description,omitempty"`
	StartTime    *string `json:"start_time,omitempty"`
	EndTime      *string `json:"end_time,omitempty"`
	AllDay       *bool   `json:"all_day,omitempty"`
	ProviderID   *int64  `json:"provider_id,omitempty"`
	ProviderName *string `json:"provider_name,omitempty"`
}

type View struct {
	store  storage.Store
	cache  cache.Cache
	logger zerolog.Logger
}

func NewView(store storage.Store, c cache.Cache, logger zerolog.Logger) *View {
	return &View{store: store, cache: c, logger: logger}
}

// Get returns the family's events in [start, end]: family-authored events
// (custody markers excluded), assigned school closures, and all assigned
// daycare events, sorted by date then start time.
func (v *View) Get(ctx context.Context, familyID string, start, end time.Time) ([]Aggregated, error) {
	key := cache.EventsRangeKey(familyID, start, end)

	var cached []Aggregated
	if v.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	family, err := v.store.ListFamilyEvents(ctx, familyID, start, end)
	if err != nil {
		return nil, err
	}
	school, err := v.store.ListAssignedProviderEvents(ctx, storage.KindSchool, familyID, start, end, true)
	if err != nil {
		return nil, err
	}
	daycare, err := v.store.ListAssignedProviderEvents(ctx, storage.KindDaycare, familyID, start, end, false)
	if err != nil {
		return nil, err
	}

	out := make([]Aggregated, 0, len(family)+len(school)+len(daycare))
	for _, e := range family {
		out = append(out, Aggregated{
			ID:         e.ID,
			FamilyID:   familyID,
			EventDate:  e.Date.Format("2006-01-02"),
			Content:    e.Content,
			SourceType: "family",
			EventType:  e.EventType,
		})
	}
	for _, e := range school {
		out = append(out, projectProviderEvent(e, familyID, "school"))
	}
	for _, e := range daycare {
		out = append(out, projectProviderEvent(e, familyID, "daycare"))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EventDate != out[j].EventDate {
			return out[i].EventDate < out[j].EventDate
		}
		return derefOr(out[i].StartTime) < derefOr(out[j].StartTime)
	})

	v.cache.SetJSON(ctx, key, out, cache.TTLEvents)
	return out, nil
}

// Invalidate drops every cached aggregation for the family; called by
// family-event writers.
func (v *View) Invalidate(ctx context.Context, familyID string) {
	v.cache.DeletePattern(ctx, cache.FamilyEventsPattern(familyID))
}

func projectProviderEvent(e *storage.ProviderEvent, familyID, source string) Aggregated {
	allDay := e.AllDay
	providerID := e.ProviderID
	providerName := e.ProviderName
	return Aggregated{
		ID:           e.ID,
		FamilyID:     familyID,
		EventDate:    e.Date.Format("2006-01-02"),
		Content:      e.Title,
		SourceType:   source,
		EventType:    e.EventType,
		Description:  e.Description,
		AllDay:       &allDay,
		ProviderID:   &providerID,
		ProviderName: &providerName,
	}
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
