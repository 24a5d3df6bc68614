package custody

import (
	"context"
	"time"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/storage"
)

// Mismatch is one custody record whose custodian is no longer an active
// member of the family, with a deterministic replacement suggestion.
type Mismatch struct {
	RecordID           int64  `json:"record_id"`
	Date               string `json:"date"`
	CustodianID        string `json:"custodian_id"`
	SuggestedID        string `json:"suggested_custodian_id"`
	SuggestedFirstName string `json:"suggested_custodian_name"`
}

type IntegrityReport struct {
	TotalRecords      int        `json:"total_records"`
	MismatchedRecords int        `json:"mismatched_records"`
	Mismatches        []Mismatch `json:"mismatches"`
}

type FixResult struct {
	DryRun       bool       `json:"dry_run"`
	FixesApplied int        `json:"fixes_applied,omitempty"`
	Preview      []Mismatch `json:"preview,omitempty"`
}

// IntegrityCheck reports custody records pointing at users who left the
// family, with suggested replacements.
func (e *Engine) IntegrityCheck(ctx context.Context, familyID string) (*IntegrityReport, error) {
	total, err := e.store.CountCustody(ctx, familyID)
	if err != nil {
		return nil, err
	}
	mismatches, err := e.suggestFixes(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return &IntegrityReport{
		TotalRecords:      total,
		MismatchedRecords: len(mismatches),
		Mismatches:        mismatches,
	}, nil
}

// FixMismatches repairs mismatched custodians in one transaction, or
// previews the repairs when dryRun is set. Repairs require the family to
// have exactly two active members.
func (e *Engine) FixMismatches(ctx context.Context, familyID string, dryRun bool) (*FixResult, error) {
	mismatches, err := e.suggestFixes(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return &FixResult{DryRun: true, Preview: mismatches}, nil
	}

	if _, _, ok, err := e.activePair(ctx, familyID); err != nil {
		return nil, err
	} else if !ok {
		return &FixResult{}, nil
	}

	fixes := make(map[int64]string, len(mismatches))
	for _, m := range mismatches {
		fixes[m.RecordID] = m.SuggestedID
	}

	applied, err := e.store.UpdateCustodyCustodians(ctx, familyID, fixes)
	if err != nil {
		return nil, err
	}

	e.cache.DeletePattern(ctx, cache.FamilyCustodyPattern(familyID))
	e.cache.DeletePattern(ctx, cache.FamilyHandoffPattern(familyID))
	e.cache.DeletePattern(ctx, cache.FamilyEventsPattern(familyID))

	e.logger.Info().Str("family_id", familyID).Int("fixes", applied).Msg("custody integrity repaired")
	return &FixResult{FixesApplied: applied}, nil
}

func (e *Engine) activePair(ctx context.Context, familyID string) (*storage.User, *storage.User, bool, error) {
	users, err := e.store.ListFamilyUsers(ctx, familyID)
	if err != nil {
		return nil, nil, false, err
	}
	var active []*storage.User
	for _, u := range users {
		if u.Status == storage.UserActive {
			active = append(active, u)
		}
	}
	if len(active) != 2 {
		return nil, nil, false, nil
	}
	return active[0], active[1], true, nil
}

func (e *Engine) suggestFixes(ctx context.Context, familyID string) ([]Mismatch, error) {
	records, err := e.store.ListCustodyMismatches(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	p1, p2, havePair, err := e.activePair(ctx, familyID)
	if err != nil {
		return nil, err
	}

	// Suggestions already applied earlier in this pass count as the
	// previous day's custodian for later mismatches.
	fixed := make(map[time.Time]string, len(records))

	out := make([]Mismatch, 0, len(records))
	for _, r := range records {
		m := Mismatch{
			RecordID:    r.ID,
			Date:        r.Date.Format("2006-01-02"),
			CustodianID: r.CustodianID,
		}
		if havePair {
			suggested := p1
			prevDate := CivilDate(r.Date).AddDate(0, 0, -1)
			prevCustodian, ok := fixed[prevDate]
			if !ok {
				if prev, err := e.store.GetCustodyByDate(ctx, familyID, prevDate); err == nil {
					prevCustodian = prev.CustodianID
					ok = true
				} else if err != storage.ErrNotFound {
					return nil, err
				}
			}
			if ok {
				switch prevCustodian {
				case p1.ID:
					suggested = p2
				case p2.ID:
					suggested = p1
				}
			}
			m.SuggestedID = suggested.ID
			m.SuggestedFirstName = suggested.FirstName
			fixed[CivilDate(r.Date)] = suggested.ID
		}
		out = append(out, m)
	}
	return out, nil
}
