package custody

import (
	"context"
	"fmt"
	"time"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/storage"
)

// ApplyResult reports what one template application wrote.
type ApplyResult struct {
	DaysApplied          int
	ConflictsOverwritten int
}

// ApplyTemplate materializes per-day custody records from a weekly template
// over [start, end]. The range is coerced to start no earlier than tomorrow;
// past and present days are never authored. With respectExisting, days that
// already have a record are skipped (and feed handoff inference); without
// it, colliding days are overwritten.
func (e *Engine) ApplyTemplate(ctx context.Context, familyID string, tmpl *storage.ScheduleTemplate, start, end time.Time, respectExisting bool, actorID string) (*ApplyResult, error) {
	if tmpl.PatternType != storage.PatternWeekly {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPattern, tmpl.PatternType)
	}

	users, err := e.store.ListFamilyUsers(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if len(users) < 2 {
		return nil, ErrInsufficientFamilyMembers
	}
	parent1, parent2 := users[0], users[1]

	start, end = CivilDate(start), CivilDate(end)
	if tomorrow := e.today().AddDate(0, 0, 1); start.Before(tomorrow) {
		start = tomorrow
	}
	if !end.After(start) {
		return &ApplyResult{}, nil
	}

	slots := parseWeeklyPattern(tmpl.WeeklyPattern)

	existing := map[time.Time]*storage.CustodyRecord{}
	if respectExisting {
		recs, err := e.store.ListCustodyRange(ctx, familyID, start, end, false)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			existing[CivilDate(r.Date)] = r
		}
	}

	prevCustodian := ""
	if prev, err := e.store.GetLatestCustodyBefore(ctx, familyID, start); err == nil {
		prevCustodian = prev.CustodianID
	} else if err != storage.ErrNotFound {
		return nil, err
	}

	var recs []*storage.CustodyRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if r, ok := existing[d]; ok {
			prevCustodian = r.CustodianID
			continue
		}

		custodianID := ""
		switch slots[d.Weekday()] {
		case "parent1":
			custodianID = parent1.ID
		case "parent2":
			custodianID = parent2.ID
		default:
			// Unassigned day.
			continue
		}

		rec := &storage.CustodyRecord{
			FamilyID:    familyID,
			Date:        d,
			CustodianID: custodianID,
			ActorID:     actorID,
		}
		if prevCustodian != "" && prevCustodian != custodianID {
			rec.HandoffDay = true
			t, loc := defaultHandoff(d)
			rec.HandoffTime, rec.HandoffLocation = &t, &loc
		}
		recs = append(recs, rec)
		prevCustodian = custodianID
	}

	inserted, overwritten, err := e.store.BulkUpsertCustody(ctx, recs)
	if err != nil {
		return nil, err
	}

	months := make([]cache.Month, 0, 2)
	for _, r := range recs {
		months = append(months, cache.MonthOf(r.Date))
	}
	cache.InvalidateFamilyMonths(ctx, e.cache, familyID, months, false)

	e.logger.Info().
		Str("family_id", familyID).
		Int64("template_id", tmpl.ID).
		Int("inserted", inserted).
		Int("overwritten", overwritten).
		Msg("template applied")

	return &ApplyResult{DaysApplied: inserted + overwritten, ConflictsOverwritten: overwritten}, nil
}

// parseWeeklyPattern maps weekday names to slots; unknown slot values stay
// in the map and resolve to unassigned at lookup time.
func parseWeeklyPattern(p storage.WeeklyPattern) map[time.Weekday]string {
	out := make(map[time.Weekday]string, 7)
	for name, slot := range p {
		if wd, ok := weekdayNames[name]; ok {
			out[wd] = slot
		}
	}
	return out
}
