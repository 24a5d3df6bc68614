package postgres

import (
	"context"

	"github.com/calndr/calndr/internal/storage"
)

func (s *Store) GetFamily(ctx context.Context, familyID string) (*storage.Family, error) {
	row := s.pool.QueryRow(ctx, `
		select id::text, school_sync_id, daycare_sync_id
		from families where id::text = $1`, familyID)
	var f storage.Family
	if err := row.Scan(&f.ID, &f.SchoolSyncID, &f.DaycareSyncID); err != nil {
		return nil, mapErr(err)
	}
	return &f, nil
}

func (s *Store) ListFamilyUsers(ctx context.Context, familyID string) ([]*storage.User, error) {
	rows, err := s.pool.Query(ctx, `
		select id::text, family_id::text, first_name, email, status, sns_endpoint_arn, created_at
		from users
		where family_id::text = $1
		order by created_at asc nulls last, id asc`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.User
	for rows.Next() {
		var u storage.User
		if err := rows.Scan(&u.ID, &u.FamilyID, &u.FirstName, &u.Email, &u.Status, &u.SNSEndpointARN, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*storage.User, error) {
	row := s.pool.QueryRow(ctx, `
		select id::text, family_id::text, first_name, email, status, sns_endpoint_arn, created_at
		from users where id::text = $1`, id)
	var u storage.User
	if err := row.Scan(&u.ID, &u.FamilyID, &u.FirstName, &u.Email, &u.Status, &u.SNSEndpointARN, &u.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	row := s.pool.QueryRow(ctx, `
		select id::text, family_id::text, first_name, email, status, sns_endpoint_arn, created_at
		from users where lower(email) = lower($1)`, email)
	var u storage.User
	if err := row.Scan(&u.ID, &u.FamilyID, &u.FirstName, &u.Email, &u.Status, &u.SNSEndpointARN, &u.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) GetNotificationTarget(ctx context.Context, familyID, actorID string) (*storage.User, error) {
	row := s.pool.QueryRow(ctx, `
		select id::text, family_id::text, first_name, email, status, sns_endpoint_arn, created_at
		from users
		where family_id::text = $1 and id::text <> $2 and sns_endpoint_arn is not null
		order by created_at asc nulls last
		limit 1`, familyID, actorID)
	var u storage.User
	if err := row.Scan(&u.ID, &u.FamilyID, &u.FirstName, &u.Email, &u.Status, &u.SNSEndpointARN, &u.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}
