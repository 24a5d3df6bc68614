package custody

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/notify"
	"github.com/calndr/calndr/internal/storage"
)

// MutationInput carries the caller-controlled fields of a custody day.
// HandoffDay nil means "derive from adjacency".
type MutationInput struct {
	Date            time.Time
	CustodianID     string
	HandoffDay      *bool
	HandoffTime     *string
	HandoffLocation *string
}

func (in *MutationInput) normalize() error {
	in.Date = CivilDate(in.Date)
	id, err := uuid.Parse(in.CustodianID)
	if err != nil {
		return validationf("invalid custodian_id %q", in.CustodianID)
	}
	in.CustodianID = id.String()
	if in.HandoffTime != nil {
		t, err := ParseClock(*in.HandoffTime)
		if err != nil {
			return err
		}
		in.HandoffTime = &t
	}
	return nil
}

// Create authors a single custody day. Fails with storage.ErrConflict when
// the day already has a record.
func (e *Engine) Create(ctx context.Context, familyID string, in MutationInput, actorID string) (*storage.CustodyRecord, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	rec := &storage.CustodyRecord{
		FamilyID:        familyID,
		Date:            in.Date,
		CustodianID:     in.CustodianID,
		HandoffTime:     in.HandoffTime,
		HandoffLocation: in.HandoffLocation,
		ActorID:         actorID,
	}

	switch {
	case in.HandoffDay != nil:
		rec.HandoffDay = *in.HandoffDay
	case in.HandoffTime != nil:
		rec.HandoffDay = true
	default:
		prev, err := e.store.GetCustodyByDate(ctx, familyID, in.Date.AddDate(0, 0, -1))
		if err != nil && err != storage.ErrNotFound {
			return nil, err
		}
		rec.HandoffDay = err == nil && prev.CustodianID != in.CustodianID
	}
	if rec.HandoffDay {
		fillHandoffDefaults(rec)
	}

	if err := e.store.InsertCustody(ctx, rec); err != nil {
		return nil, err
	}

	cache.InvalidateFamilyMonths(ctx, e.cache, familyID, []cache.Month{cache.MonthOf(in.Date)}, true)
	e.notifier.CustodyChanged(ctx, notify.Change{
		FamilyID:    familyID,
		ActorID:     actorID,
		CustodianID: rec.CustodianID,
		Date:        rec.Date,
	})
	return rec, nil
}

// UpdateByDate rewrites an existing custody day and repairs the handoff
// adjacency of the day itself and its successor, atomically.
func (e *Engine) UpdateByDate(ctx context.Context, familyID string, in MutationInput, actorID string) (*storage.CustodyRecord, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	cur, err := e.store.GetCustodyByDate(ctx, familyID, in.Date)
	if err != nil {
		return nil, err
	}

	cur.CustodianID = in.CustodianID
	cur.ActorID = actorID
	if in.HandoffTime != nil {
		cur.HandoffTime = in.HandoffTime
	}
	if in.HandoffLocation != nil {
		cur.HandoffLocation = in.HandoffLocation
	}

	switch {
	case in.HandoffDay != nil:
		cur.HandoffDay = *in.HandoffDay
		if cur.HandoffDay {
			fillHandoffDefaults(cur)
		}
	case in.HandoffTime != nil:
		cur.HandoffDay = true
		fillHandoffDefaults(cur)
	default:
		prev, err := e.store.GetCustodyByDate(ctx, familyID, in.Date.AddDate(0, 0, -1))
		if err != nil && err != storage.ErrNotFound {
			return nil, err
		}
		if err == nil && prev.CustodianID != cur.CustodianID {
			cur.HandoffDay = true
			fillHandoffDefaults(cur)
		} else {
			cur.HandoffDay = false
			cur.HandoffTime, cur.HandoffLocation = nil, nil
		}
	}

	updates := []*storage.CustodyRecord{cur}

	next, err := e.store.GetCustodyByDate(ctx, familyID, in.Date.AddDate(0, 0, 1))
	if err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	if err == nil {
		if repairNeighbor(next, cur.CustodianID) {
			updates = append(updates, next)
		}
	}

	if err := e.store.UpdateCustodyRecords(ctx, updates); err != nil {
		return nil, err
	}

	months := []cache.Month{cache.MonthOf(in.Date), cache.MonthOf(in.Date.AddDate(0, 0, 1))}
	cache.InvalidateFamilyMonths(ctx, e.cache, familyID, months, false)

	e.notifier.CustodyChanged(ctx, notify.Change{
		FamilyID:    familyID,
		ActorID:     actorID,
		CustodianID: cur.CustodianID,
		Date:        cur.Date,
	})
	return cur, nil
}

// repairNeighbor restores the adjacency invariant on the record following an
// edited day. Reports whether the neighbor changed.
func repairNeighbor(next *storage.CustodyRecord, prevCustodian string) bool {
	if next.CustodianID != prevCustodian {
		if next.HandoffDay && next.HandoffTime != nil && next.HandoffLocation != nil {
			return false
		}
		next.HandoffDay = true
		fillHandoffDefaults(next)
		return true
	}
	if !next.HandoffDay && next.HandoffTime == nil && next.HandoffLocation == nil {
		return false
	}
	next.HandoffDay = false
	next.HandoffTime, next.HandoffLocation = nil, nil
	return true
}

// BulkCreate inserts a batch of custody days atomically. Entries are sorted
// by date first so intra-batch handoff inference is deterministic; each
// entry defaults like a single-day create with the previous entry's
// custodian as the reference.
func (e *Engine) BulkCreate(ctx context.Context, familyID string, items []MutationInput, actorID string) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	for i := range items {
		if err := items[i].normalize(); err != nil {
			return 0, err
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Date.Before(items[j].Date) })

	prevCustodian := ""
	if prev, err := e.store.GetCustodyByDate(ctx, familyID, items[0].Date.AddDate(0, 0, -1)); err == nil {
		prevCustodian = prev.CustodianID
	} else if err != storage.ErrNotFound {
		return 0, err
	}

	recs := make([]*storage.CustodyRecord, 0, len(items))
	for _, in := range items {
		rec := &storage.CustodyRecord{
			FamilyID:        familyID,
			Date:            in.Date,
			CustodianID:     in.CustodianID,
			HandoffTime:     in.HandoffTime,
			HandoffLocation: in.HandoffLocation,
			ActorID:         actorID,
		}
		switch {
		case in.HandoffDay != nil:
			rec.HandoffDay = *in.HandoffDay
		case in.HandoffTime != nil:
			rec.HandoffDay = true
		default:
			rec.HandoffDay = prevCustodian != "" && prevCustodian != in.CustodianID
		}
		if rec.HandoffDay {
			fillHandoffDefaults(rec)
		}
		recs = append(recs, rec)
		prevCustodian = in.CustodianID
	}

	n, err := e.store.BulkInsertCustody(ctx, recs)
	if err != nil {
		return 0, err
	}

	months := make([]cache.Month, 0, 2)
	for _, r := range recs {
		months = append(months, cache.MonthOf(r.Date))
	}
	cache.InvalidateFamilyMonths(ctx, e.cache, familyID, months, false)
	return n, nil
}

func fillHandoffDefaults(rec *storage.CustodyRecord) {
	if rec.HandoffTime == nil {
		t, _ := defaultHandoff(rec.Date)
		rec.HandoffTime = &t
	}
	if rec.HandoffLocation == nil {
		_, loc := defaultHandoff(rec.Date)
		rec.HandoffLocation = &loc
	}
}
