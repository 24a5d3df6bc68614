package custody

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calndr/calndr/internal/storage"
	"github.com/calndr/calndr/internal/storage/storagetest"
)

func TestGetMonthLazilyGeneratesFutureMonth(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	require.NoError(t, store.CreateScheduleTemplate(context.Background(), weeklyTemplate()))

	e := newTestEngine(store, date(2024, 6, 7))

	// July is empty and entirely in the future.
	views, err := e.GetMonth(context.Background(), famID, 2024, time.July)
	require.NoError(t, err)
	assert.Len(t, views, 31)

	// Every day belongs to one of the two parents, per the template.
	for _, v := range views {
		assert.Contains(t, []string{parentA, parentB}, v.CustodianID)
		assert.NotEmpty(t, v.Content)
	}

	// Second read is served from cache: wipe the store and read again.
	fresh := storagetest.New()
	e.store = fresh
	again, err := e.GetMonth(context.Background(), famID, 2024, time.July)
	require.NoError(t, err)
	assert.Equal(t, views, again)
}

func TestGetMonthPastMonthNeverGenerates(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	require.NoError(t, store.CreateScheduleTemplate(context.Background(), weeklyTemplate()))

	e := newTestEngine(store, date(2024, 6, 7))

	views, err := e.GetMonth(context.Background(), famID, 2024, time.March)
	require.NoError(t, err)
	assert.Empty(t, views)

	n, err := store.CountCustody(context.Background(), famID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetMonthEmptyCacheEntryIsStale(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 7))

	// First read caches an empty March.
	views, err := e.GetMonth(context.Background(), famID, 2024, time.March)
	require.NoError(t, err)
	assert.Empty(t, views)

	// A record appearing later must be visible despite the cached empty.
	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: date(2024, 3, 15), CustodianID: parentA})
	views, err = e.GetMonth(context.Background(), famID, 2024, time.March)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "2024-03-15", views[0].EventDate)
	assert.Equal(t, "Alice", views[0].Content)
}

func TestGetMonthHandoffsEmptyCacheEntryIsValid(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 7))

	views, err := e.GetMonthHandoffs(context.Background(), famID, 2024, time.March)
	require.NoError(t, err)
	assert.Empty(t, views)

	// Unlike the full month read, the cached empty handoff list sticks.
	store.SeedCustody(&storage.CustodyRecord{
		FamilyID: famID, Date: date(2024, 3, 15), CustodianID: parentA,
		HandoffDay: true, HandoffTime: strp("17:00"), HandoffLocation: strp("daycare"),
	})
	views, err = e.GetMonthHandoffs(context.Background(), famID, 2024, time.March)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestGetMonthHandoffsFiltersToTimedHandoffs(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: date(2024, 6, 10), CustodianID: parentA})
	store.SeedCustody(&storage.CustodyRecord{
		FamilyID: famID, Date: date(2024, 6, 11), CustodianID: parentB,
		HandoffDay: true, HandoffTime: strp("17:00"), HandoffLocation: strp("daycare"),
	})
	store.SeedCustody(&storage.CustodyRecord{
		FamilyID: famID, Date: date(2024, 6, 12), CustodianID: parentA,
		HandoffDay: true, // no time recorded
	})

	views, err := e.GetMonthHandoffs(context.Background(), famID, 2024, time.June)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "2024-06-11", views[0].EventDate)
	assert.Equal(t, "17:00", *views[0].HandoffTime)
}

func TestProjectDayLowercasesCustodian(t *testing.T) {
	rec := &storage.CustodyRecord{
		ID:                 7,
		Date:               date(2024, 6, 11),
		CustodianID:        "AAAAAAAA-0000-4000-8000-000000000001",
		CustodianFirstName: "Alice",
	}
	v := ProjectDay(rec)
	assert.Equal(t, parentA, v.CustodianID)
	assert.Equal(t, "2024-06-11", v.EventDate)
	assert.Equal(t, "Alice", v.Content)
}
