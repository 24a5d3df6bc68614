package postgres

import (
	"context"
	"time"

	"github.com/calndr/calndr/internal/storage"
)

const custodyColumns = `
	c.id, c.family_id::text, c.date, c.custodian_id::text,
	c.handoff_day, to_char(c.handoff_time, 'HH24:MI'), c.handoff_location,
	coalesce(c.actor_id::text, ''), coalesce(u.first_name, '')`

func scanCustody(row rowScanner) (*storage.CustodyRecord, error) {
	var r storage.CustodyRecord
	if err := row.Scan(&r.ID, &r.FamilyID, &r.Date, &r.CustodianID,
		&r.HandoffDay, &r.HandoffTime, &r.HandoffLocation,
		&r.ActorID, &r.CustodianFirstName); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *Store) GetCustodyByDate(ctx context.Context, familyID string, date time.Time) (*storage.CustodyRecord, error) {
	row := s.pool.QueryRow(ctx, `
		select `+custodyColumns+`
		from custody c
		join users u on u.id = c.custodian_id
		where c.family_id::text = $1 and c.date = $2::date`, familyID, date)
	return scanCustody(row)
}

func (s *Store) GetLatestCustodyBefore(ctx context.Context, familyID string, date time.Time) (*storage.CustodyRecord, error) {
	row := s.pool.QueryRow(ctx, `
		select `+custodyColumns+`
		from custody c
		join users u on u.id = c.custodian_id
		where c.family_id::text = $1 and c.date < $2::date
		order by c.date desc limit 1`, familyID, date)
	return scanCustody(row)
}

func (s *Store) ListCustodyRange(ctx context.Context, familyID string, start, end time.Time, handoffsOnly bool) ([]*storage.CustodyRecord, error) {
	q := `
		select ` + custodyColumns + `
		from custody c
		join users u on u.id = c.custodian_id
		where c.family_id::text = $1 and c.date between $2::date and $3::date`
	if handoffsOnly {
		q += ` and c.handoff_day and c.handoff_time is not null`
	}
	q += ` order by c.date asc`

	rows, err := s.pool.Query(ctx, q, familyID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.CustodyRecord
	for rows.Next() {
		r, err := scanCustody(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertCustody(ctx context.Context, rec *storage.CustodyRecord) error {
	err := s.pool.QueryRow(ctx, `
		insert into custody (
			family_id, date, custodian_id, handoff_day, handoff_time, handoff_location, actor_id
		) values (
			$1::uuid, $2::date, $3::uuid, $4, $5::time, $6, $7::uuid
		)
		returning id
	`, rec.FamilyID, rec.Date, rec.CustodianID, rec.HandoffDay, rec.HandoffTime, rec.HandoffLocation, nullIfEmpty(rec.ActorID)).Scan(&rec.ID)
	return mapErr(err)
}

func (s *Store) BulkInsertCustody(ctx context.Context, recs []*storage.CustodyRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rec := range recs {
		err := tx.QueryRow(ctx, `
			insert into custody (
				family_id, date, custodian_id, handoff_day, handoff_time, handoff_location, actor_id
			) values (
				$1::uuid, $2::date, $3::uuid, $4, $5::time, $6, $7::uuid
			)
			returning id
		`, rec.FamilyID, rec.Date, rec.CustodianID, rec.HandoffDay, rec.HandoffTime, rec.HandoffLocation, nullIfEmpty(rec.ActorID)).Scan(&rec.ID)
		if err != nil {
			return 0, mapErr(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *Store) BulkUpsertCustody(ctx context.Context, recs []*storage.CustodyRecord) (int, int, error) {
	if len(recs) == 0 {
		return 0, 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, overwritten := 0, 0
	for _, rec := range recs {
		var isInsert bool
		err := tx.QueryRow(ctx, `
			insert into custody (
				family_id, date, custodian_id, handoff_day, handoff_time, handoff_location, actor_id
			) values (
				$1::uuid, $2::date, $3::uuid, $4, $5::time, $6, $7::uuid
			)
			on conflict (family_id, date) do update set
				custodian_id = excluded.custodian_id,
				handoff_day = excluded.handoff_day,
				handoff_time = excluded.handoff_time,
				handoff_location = excluded.handoff_location,
				actor_id = excluded.actor_id,
				updated_at = now()
			returning id, (xmax = 0)
		`, rec.FamilyID, rec.Date, rec.CustodianID, rec.HandoffDay, rec.HandoffTime, rec.HandoffLocation, nullIfEmpty(rec.ActorID)).
			Scan(&rec.ID, &isInsert)
		if err != nil {
			return 0, 0, mapErr(err)
		}
		if isInsert {
			inserted++
		} else {
			overwritten++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return inserted, overwritten, nil
}

// UpdateCustodyRecords writes the given records by id in one transaction.
// The mutation engine uses this to commit a day together with its repaired
// neighbor atomically.
func (s *Store) UpdateCustodyRecords(ctx context.Context, recs []*storage.CustodyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rec := range recs {
		tag, err := tx.Exec(ctx, `
			update custody
			set custodian_id = $1::uuid, handoff_day = $2, handoff_time = $3::time,
			    handoff_location = $4, actor_id = $5::uuid, updated_at = now()
			where id = $6 and family_id::text = $7
		`, rec.CustodianID, rec.HandoffDay, rec.HandoffTime, rec.HandoffLocation, nullIfEmpty(rec.ActorID), rec.ID, rec.FamilyID)
		if err != nil {
			return mapErr(err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) CountCustody(ctx context.Context, familyID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		select count(*) from custody where family_id::text = $1`, familyID).Scan(&n)
	return n, err
}

// ListCustodyMismatches returns custody records whose custodian is not an
// active member of the owning family.
func (s *Store) ListCustodyMismatches(ctx context.Context, familyID string) ([]*storage.CustodyRecord, error) {
	rows, err := s.pool.Query(ctx, `
		select `+custodyColumns+`
		from custody c
		left join users u on u.id = c.custodian_id
		where c.family_id::text = $1
		  and not exists (
			select 1 from users m
			where m.id = c.custodian_id
			  and m.family_id = c.family_id
			  and m.status = 'active'
		  )
		order by c.date asc`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.CustodyRecord
	for rows.Next() {
		r, err := scanCustody(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCustodyCustodians(ctx context.Context, familyID string, fixes map[int64]string) (int, error) {
	if len(fixes) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	applied := 0
	for id, custodianID := range fixes {
		tag, err := tx.Exec(ctx, `
			update custody set custodian_id = $1::uuid, updated_at = now()
			where id = $2 and family_id::text = $3
		`, custodianID, id, familyID)
		if err != nil {
			return 0, mapErr(err)
		}
		applied += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return applied, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
