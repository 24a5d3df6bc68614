package custody

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/notify"
	"github.com/calndr/calndr/internal/storage"
	"github.com/calndr/calndr/internal/storage/storagetest"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strp(s string) *string { return &s }

func boolp(b bool) *bool { return &b }

func TestCreateDefaultsHandoffFromPreviousDay(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: date(2024, 6, 10), CustodianID: parentA})

	// Tuesday June 11, different custodian than Monday: weekday defaults.
	rec, err := e.Create(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 11),
		CustodianID: parentB,
	}, parentA)
	require.NoError(t, err)
	require.True(t, rec.HandoffDay)
	assert.Equal(t, "17:00", *rec.HandoffTime)
	assert.Equal(t, "daycare", *rec.HandoffLocation)

	// Same custodian as the day before: no handoff.
	rec, err = e.Create(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 12),
		CustodianID: parentB,
	}, parentA)
	require.NoError(t, err)
	assert.False(t, rec.HandoffDay)
	assert.Nil(t, rec.HandoffTime)
}

func TestCreateConflictLeavesStoreUnchanged(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	fourth := date(2024, 7, 4)
	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: fourth, CustodianID: parentA})

	_, err := e.Create(context.Background(), famID, MutationInput{
		Date:        fourth,
		CustodianID: parentB,
	}, parentB)
	assert.ErrorIs(t, err, storage.ErrConflict)

	rec, err := store.GetCustodyByDate(context.Background(), famID, fourth)
	require.NoError(t, err)
	assert.Equal(t, parentA, rec.CustodianID)
}

func TestCreateRejectsMalformedTime(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	_, err := e.Create(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 11),
		CustodianID: parentB,
		HandoffTime: strp("25:99"),
	}, parentA)
	assert.True(t, IsValidation(err))
}

func TestCreateRejectsNonUUIDCustodian(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	_, err := e.Create(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 11),
		CustodianID: "not-a-uuid",
	}, parentA)
	assert.True(t, IsValidation(err))
}

func TestUpdateFlipRepairsBothDays(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	for d := 10; d <= 12; d++ {
		store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: date(2024, 6, d), CustodianID: parentA})
	}

	// Flip Tuesday the 11th to Bob.
	_, err := e.UpdateByDate(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 11),
		CustodianID: parentB,
	}, parentA)
	require.NoError(t, err)

	eleventh, err := store.GetCustodyByDate(context.Background(), famID, date(2024, 6, 11))
	require.NoError(t, err)
	require.True(t, eleventh.HandoffDay)
	assert.Equal(t, "17:00", *eleventh.HandoffTime)
	assert.Equal(t, "daycare", *eleventh.HandoffLocation)

	// The 12th flips back to Alice, so it becomes a handoff too.
	twelfth, err := store.GetCustodyByDate(context.Background(), famID, date(2024, 6, 12))
	require.NoError(t, err)
	require.True(t, twelfth.HandoffDay)
	assert.Equal(t, "17:00", *twelfth.HandoffTime)

	// The 10th is untouched.
	tenth, err := store.GetCustodyByDate(context.Background(), famID, date(2024, 6, 10))
	require.NoError(t, err)
	assert.False(t, tenth.HandoffDay)
}

func TestUpdateRevertClearsHandoffAndMovesIt(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: date(2024, 6, 10), CustodianID: parentA})
	store.SeedCustody(&storage.CustodyRecord{
		FamilyID: famID, Date: date(2024, 6, 11), CustodianID: parentB,
		HandoffDay: true, HandoffTime: strp("17:00"), HandoffLocation: strp("daycare"),
	})
	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: date(2024, 6, 12), CustodianID: parentB})

	// Revert the 11th to Alice: its handoff clears and moves to the 12th.
	_, err := e.UpdateByDate(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 11),
		CustodianID: parentA,
	}, parentA)
	require.NoError(t, err)

	eleventh, err := store.GetCustodyByDate(context.Background(), famID, date(2024, 6, 11))
	require.NoError(t, err)
	assert.False(t, eleventh.HandoffDay)
	assert.Nil(t, eleventh.HandoffTime)
	assert.Nil(t, eleventh.HandoffLocation)

	twelfth, err := store.GetCustodyByDate(context.Background(), famID, date(2024, 6, 12))
	require.NoError(t, err)
	require.True(t, twelfth.HandoffDay)
	assert.Equal(t, "17:00", *twelfth.HandoffTime)
}

func TestUpdateMissingDayReturnsNotFound(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	_, err := e.UpdateByDate(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 11),
		CustodianID: parentB,
	}, parentA)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateExplicitHandoffWins(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: date(2024, 6, 10), CustodianID: parentA})
	store.SeedCustody(&storage.CustodyRecord{
		FamilyID: famID, Date: date(2024, 6, 11), CustodianID: parentB,
		HandoffDay: true, HandoffTime: strp("17:00"), HandoffLocation: strp("daycare"),
	})

	// Explicit false overrides what adjacency would infer.
	rec, err := e.UpdateByDate(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 11),
		CustodianID: parentB,
		HandoffDay:  boolp(false),
	}, parentA)
	require.NoError(t, err)
	assert.False(t, rec.HandoffDay)
}

func TestBulkCreateChainsHandoffInference(t *testing.T) {
	store := storagetest.New()
	seedParents(store)
	e := newTestEngine(store, date(2024, 6, 1))

	store.SeedCustody(&storage.CustodyRecord{FamilyID: famID, Date: date(2024, 6, 9), CustodianID: parentB})

	// Deliberately out of order; defaulting must run in date order.
	n, err := e.BulkCreate(context.Background(), famID, []MutationInput{
		{Date: date(2024, 6, 12), CustodianID: parentB},
		{Date: date(2024, 6, 10), CustodianID: parentA},
		{Date: date(2024, 6, 11), CustodianID: parentA},
	}, parentA)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Monday the 10th follows Bob's Sunday: handoff.
	tenth, err := store.GetCustodyByDate(context.Background(), famID, date(2024, 6, 10))
	require.NoError(t, err)
	assert.True(t, tenth.HandoffDay)

	eleventh, err := store.GetCustodyByDate(context.Background(), famID, date(2024, 6, 11))
	require.NoError(t, err)
	assert.False(t, eleventh.HandoffDay)

	twelfth, err := store.GetCustodyByDate(context.Background(), famID, date(2024, 6, 12))
	require.NoError(t, err)
	assert.True(t, twelfth.HandoffDay)
}

func TestMutationsNotifyTheOtherParent(t *testing.T) {
	store := storagetest.New()
	seedParents(store)

	var got []notify.Change
	e := NewEngine(store, cache.NewMemory(), notifierFunc(func(ch notify.Change) {
		got = append(got, ch)
	}), nil, zerolog.Nop())
	e.now = func() time.Time { return date(2024, 6, 1) }

	_, err := e.Create(context.Background(), famID, MutationInput{
		Date:        date(2024, 6, 11),
		CustodianID: parentB,
	}, parentA)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, famID, got[0].FamilyID)
	assert.Equal(t, parentA, got[0].ActorID)
	assert.Equal(t, parentB, got[0].CustodianID)
	assert.Equal(t, date(2024, 6, 11), got[0].Date)
}

type notifierFunc func(notify.Change)

func (f notifierFunc) CustodyChanged(_ context.Context, ch notify.Change) { f(ch) }
