package custody

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/storage"
	"github.com/calndr/calndr/internal/storage/storagetest"
)

const (
	famID   = "0f7c6f1e-1111-4a2a-9b9b-000000000001"
	parentA = "aaaaaaaa-0000-4000-8000-000000000001"
	parentB = "bbbbbbbb-0000-4000-8000-000000000002"
)

func seedParents(store *storagetest.Store) {
	t1 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	store.SeedFamily(&storage.Family{ID: famID})
	store.SeedUser(&storage.User{ID: parentA, FamilyID: famID, FirstName: "Alice", Email: "alice@example.com", Status: storage.UserActive, CreatedAt: &t1})
	store.SeedUser(&storage.User{ID: parentB, FamilyID: famID, FirstName: "Bob", Email: "bob@example.com", Status: storage.UserActive, CreatedAt: &t2})
}

func newTestEngine(store *storagetest.Store, today time.Time) *Engine {
	e := NewEngine(store, cache.NewMemory(), nil, nil, zerolog.Nop())
	e.now = func() time.Time { return today }
	return e
}

func weeklyTemplate() *storage.ScheduleTemplate {
	return &storage.ScheduleTemplate{
		ID:          1,
		FamilyID:    famID,
		Name:        "school year",
		PatternType: storage.PatternWeekly,
		WeeklyPattern: storage.WeeklyPattern{
			"monday": "parent1", "tuesday": "parent1", "wednesday": "parent1",
			"thursday": "parent2", "friday": "parent2", "saturday": "parent2", "sunday": "parent2",
		},
		IsActive: true,
	}
}

func TestApplyTemplateMaterializesWeeklyPattern(t *testing.T) {
	store := storagetest.New()
	seedParents(store)

	// Friday. The apply range starts Saturday.
	today := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(store, today)

	// Prior history ends with Alice, so the first generated day hands off.
	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: today, CustodianID: parentA})

	res, err := e.ApplyTemplate(context.Background(), famID, weeklyTemplate(),
		today.AddDate(0, 0, 1), today.AddDate(0, 0, 14), true, parentA)
	require.NoError(t, err)
	assert.Equal(t, 14, res.DaysApplied)
	assert.Equal(t, 0, res.ConflictsOverwritten)

	day := func(d int) *storage.CustodyRecord {
		rec, err := store.GetCustodyByDate(context.Background(), famID, time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		return rec
	}

	// Saturday June 8: Alice -> Bob with weekend defaults.
	sat := day(8)
	assert.Equal(t, parentB, sat.CustodianID)
	require.True(t, sat.HandoffDay)
	assert.Equal(t, "12:00", *sat.HandoffTime)
	assert.Equal(t, "other", *sat.HandoffLocation)

	// Monday June 10 follows a Bob Sunday: weekday defaults.
	mon := day(10)
	assert.Equal(t, parentA, mon.CustodianID)
	require.True(t, mon.HandoffDay)
	assert.Equal(t, "17:00", *mon.HandoffTime)
	assert.Equal(t, "daycare", *mon.HandoffLocation)

	// Thursday June 13: Alice -> Bob.
	thu := day(13)
	assert.Equal(t, parentB, thu.CustodianID)
	require.True(t, thu.HandoffDay)
	assert.Equal(t, "17:00", *thu.HandoffTime)
	assert.Equal(t, "daycare", *thu.HandoffLocation)

	// Mid-stretch days are not handoffs.
	tue := day(11)
	assert.False(t, tue.HandoffDay)
	assert.Nil(t, tue.HandoffTime)
}

func TestApplyTemplateNeverWritesPastOrToday(t *testing.T) {
	store := storagetest.New()
	seedParents(store)

	today := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(store, today)

	// Entire range at or before today collapses to nothing.
	res, err := e.ApplyTemplate(context.Background(), famID, weeklyTemplate(),
		today.AddDate(0, 0, -7), today, true, parentA)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DaysApplied)

	n, err := store.CountCustody(context.Background(), famID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A range reaching into the past is clamped to start tomorrow.
	res, err = e.ApplyTemplate(context.Background(), famID, weeklyTemplate(),
		today.AddDate(0, 0, -7), today.AddDate(0, 0, 3), true, parentA)
	require.NoError(t, err)
	assert.Equal(t, 3, res.DaysApplied)

	_, err = store.GetCustodyByDate(context.Background(), famID, today)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyTemplateRespectExistingSkipsAuthoredDays(t *testing.T) {
	store := storagetest.New()
	seedParents(store)

	today := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(store, today)

	manual := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: manual, CustodianID: parentB})

	res, err := e.ApplyTemplate(context.Background(), famID, weeklyTemplate(),
		today.AddDate(0, 0, 1), today.AddDate(0, 0, 7), true, parentA)
	require.NoError(t, err)
	assert.Equal(t, 6, res.DaysApplied)
	assert.Equal(t, 0, res.ConflictsOverwritten)

	// The manual day survives untouched.
	rec, err := store.GetCustodyByDate(context.Background(), famID, manual)
	require.NoError(t, err)
	assert.Equal(t, parentB, rec.CustodianID)
}

func TestApplyTemplateOverwriteCountsConflicts(t *testing.T) {
	store := storagetest.New()
	seedParents(store)

	today := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(store, today)

	manual := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: manual, CustodianID: parentB})

	res, err := e.ApplyTemplate(context.Background(), famID, weeklyTemplate(),
		today.AddDate(0, 0, 1), today.AddDate(0, 0, 7), false, parentA)
	require.NoError(t, err)
	assert.Equal(t, 7, res.DaysApplied)
	assert.Equal(t, 1, res.ConflictsOverwritten)

	// Monday belongs to parent1 in the template.
	rec, err := store.GetCustodyByDate(context.Background(), famID, manual)
	require.NoError(t, err)
	assert.Equal(t, parentA, rec.CustodianID)
}

func TestApplyTemplateRejectsNonWeeklyPattern(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC))

	tmpl := weeklyTemplate()
	tmpl.PatternType = storage.PatternAlternatingWeeks

	_, err := e.ApplyTemplate(context.Background(), famID, tmpl,
		time.Now(), time.Now().AddDate(0, 0, 7), true, parentA)
	assert.ErrorIs(t, err, ErrUnsupportedPattern)
}

func TestApplyTemplateRequiresTwoMembers(t *testing.T) {
	store := storagetest.New()
	t1 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SeedFamily(&storage.Family{ID: famID})
	store.SeedUser(&storage.User{ID: parentA, FamilyID: famID, FirstName: "Alice", Status: storage.UserActive, CreatedAt: &t1})

	e := newTestEngine(store, time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC))
	_, err := e.ApplyTemplate(context.Background(), famID, weeklyTemplate(),
		time.Now(), time.Now().AddDate(0, 0, 7), true, parentA)
	assert.ErrorIs(t, err, ErrInsufficientFamilyMembers)
}

func TestApplyTemplateUnassignedSlotsLeaveGaps(t *testing.T) {
	store := storagetest.New()
	seedParents(store)

	today := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(store, today)

	tmpl := weeklyTemplate()
	tmpl.WeeklyPattern["sunday"] = "unassigned"

	res, err := e.ApplyTemplate(context.Background(), famID, tmpl,
		today.AddDate(0, 0, 1), today.AddDate(0, 0, 7), true, parentA)
	require.NoError(t, err)
	assert.Equal(t, 6, res.DaysApplied)

	_, err = store.GetCustodyByDate(context.Background(), famID, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
