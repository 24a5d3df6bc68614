package postgres

import (
	"context"
	"encoding/json"

	"github.com/calndr/calndr/internal/storage"
)

func (s *Store) CreateScheduleTemplate(ctx context.Context, t *storage.ScheduleTemplate) error {
	weekly, err := json.Marshal(t.WeeklyPattern)
	if err != nil {
		return err
	}
	alternating, err := json.Marshal(t.AlternatingWeeksPattern)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Invariant: at most one active template per family.
	if t.IsActive {
		if _, err := tx.Exec(ctx, `
			update schedule_templates set is_active = false
			where family_id::text = $1 and is_active`, t.FamilyID); err != nil {
			return err
		}
	}

	err = tx.QueryRow(ctx, `
		insert into schedule_templates (
			family_id, name, pattern_type, weekly_pattern, alternating_weeks_pattern, is_active
		) values (
			$1::uuid, $2, $3, $4, $5, $6
		)
		returning id, created_at
	`, t.FamilyID, t.Name, t.PatternType, weekly, alternating, t.IsActive).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) UpdateScheduleTemplate(ctx context.Context, t *storage.ScheduleTemplate) error {
	weekly, err := json.Marshal(t.WeeklyPattern)
	if err != nil {
		return err
	}
	alternating, err := json.Marshal(t.AlternatingWeeksPattern)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.IsActive {
		if _, err := tx.Exec(ctx, `
			update schedule_templates set is_active = false
			where family_id::text = $1 and is_active and id <> $2`, t.FamilyID, t.ID); err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx, `
		update schedule_templates
		set name = $1, pattern_type = $2, weekly_pattern = $3,
		    alternating_weeks_pattern = $4, is_active = $5
		where id = $6 and family_id::text = $7
	`, t.Name, t.PatternType, weekly, alternating, t.IsActive, t.ID, t.FamilyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit(ctx)
}

const templateColumns = `
	id, family_id::text, name, pattern_type,
	coalesce(weekly_pattern, '{}'::jsonb),
	coalesce(alternating_weeks_pattern, '{}'::jsonb),
	is_active, created_at`

func (s *Store) GetScheduleTemplate(ctx context.Context, familyID string, id int64) (*storage.ScheduleTemplate, error) {
	row := s.pool.QueryRow(ctx, `
		select `+templateColumns+`
		from schedule_templates where id = $1 and family_id::text = $2`, id, familyID)
	return scanTemplate(row)
}

func (s *Store) GetActiveScheduleTemplate(ctx context.Context, familyID string) (*storage.ScheduleTemplate, error) {
	row := s.pool.QueryRow(ctx, `
		select `+templateColumns+`
		from schedule_templates
		where family_id::text = $1 and is_active
		order by created_at desc limit 1`, familyID)
	return scanTemplate(row)
}

func (s *Store) ListScheduleTemplates(ctx context.Context, familyID string) ([]*storage.ScheduleTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		select `+templateColumns+`
		from schedule_templates
		where family_id::text = $1
		order by created_at asc`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.ScheduleTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*storage.ScheduleTemplate, error) {
	var t storage.ScheduleTemplate
	var weekly, alternating []byte
	if err := row.Scan(&t.ID, &t.FamilyID, &t.Name, &t.PatternType, &weekly, &alternating, &t.IsActive, &t.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	if err := json.Unmarshal(weekly, &t.WeeklyPattern); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(alternating, &t.AlternatingWeeksPattern); err != nil {
		return nil, err
	}
	return &t, nil
}
