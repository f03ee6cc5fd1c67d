package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"identra.org/internal/membership"
)

func (s *Store) CreateMembership(ctx context.Context, m *membership.Membership) error {
	ids, err := json.Marshal(m.UserIDs)
	if err != nil {
		return fmt.Errorf("encode user ids: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		insert into user_groups (id, group_id, user_ids, created_at, updated_at)
		values ($1, $2, $3, $4, $5)
	`, m.ID, m.GroupID, ids, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("membership already exists for group %s", m.GroupID)
			case pgErrForeignKeyViolation:
				return membership.ErrGroupNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, groupID string) (membership.Membership, error) {
	row, err := scanMembershipRow(s.q(ctx).QueryRowContext(ctx, `
		select id, group_id, user_ids, created_at, updated_at
		from user_groups where group_id = $1
	`, groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return membership.Membership{}, membership.ErrNotFound
	}
	return row, err
}

func (s *Store) ReplaceMembershipUserIDs(ctx context.Context, groupID string, userIDs []string, updatedAt time.Time) error {
	ids, err := json.Marshal(userIDs)
	if err != nil {
		return fmt.Errorf("encode user ids: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		update user_groups set user_ids = $1, updated_at = $2 where group_id = $3
	`, ids, updatedAt, groupID)
	if err != nil {
		return err
	}
	return requireAffected(res, membership.ErrNotFound)
}

// ListMembershipsContaining uses jsonb containment, which the gin index on
// user_ids serves.
func (s *Store) ListMembershipsContaining(ctx context.Context, userID string) ([]membership.Membership, error) {
	needle, err := json.Marshal([]string{userID})
	if err != nil {
		return nil, fmt.Errorf("encode user id: %w", err)
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		select id, group_id, user_ids, created_at, updated_at
		from user_groups where user_ids @> $1
	`, needle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []membership.Membership
	for rows.Next() {
		row, err := scanMembershipRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteMembership(ctx context.Context, groupID string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		delete from user_groups where group_id = $1
	`, groupID)
	return err
}

func (s *Store) MembershipExists(ctx context.Context, groupID string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx, `
		select exists(select 1 from user_groups where group_id = $1)
	`, groupID).Scan(&exists)
	return exists, err
}

func scanMembershipRow(row rowScanner) (membership.Membership, error) {
	var (
		m   membership.Membership
		ids []byte
	)
	if err := row.Scan(&m.ID, &m.GroupID, &ids, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return membership.Membership{}, err
	}
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &m.UserIDs); err != nil {
			return membership.Membership{}, fmt.Errorf("decode user ids: %w", err)
		}
	}
	return m, nil
}
