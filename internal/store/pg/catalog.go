package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"identra.org/internal/catalog"
)

// Permissions live in a jsonb column so the set round-trips without a
// separate permission table.
func (s *Store) CreateGroup(ctx context.Context, g *catalog.Group) error {
	perms, err := json.Marshal(g.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		insert into groups (id, name, permissions, created_at, updated_at)
		values ($1, $2, $3, $4, $5)
	`, g.ID, g.Name, perms, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", catalog.ErrNameTaken, g.Name)
		}
		return err
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (catalog.Group, error) {
	group, err := scanGroupRow(s.q(ctx).QueryRowContext(ctx, `
		select id, name, permissions, created_at, updated_at from groups where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Group{}, catalog.ErrNotFound
	}
	return group, err
}

func (s *Store) ListGroups(ctx context.Context) ([]catalog.Group, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		select id, name, permissions, created_at, updated_at from groups order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []catalog.Group
	for rows.Next() {
		group, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Store) UpdateGroup(ctx context.Context, g catalog.Group) error {
	perms, err := json.Marshal(g.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		update groups set name = $1, permissions = $2, updated_at = $3 where id = $4
	`, g.Name, perms, g.UpdatedAt, g.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", catalog.ErrNameTaken, g.Name)
		}
		return err
	}
	return requireAffected(res, catalog.ErrNotFound)
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		delete from groups where id = $1
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, catalog.ErrNotFound)
}

func (s *Store) GroupExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx, `
		select exists(select 1 from groups where id = $1)
	`, id).Scan(&exists)
	return exists, err
}

func (s *Store) GroupNameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx, `
		select exists(select 1 from groups where name = $1)
	`, name).Scan(&exists)
	return exists, err
}

func scanGroupRow(row rowScanner) (catalog.Group, error) {
	var (
		group catalog.Group
		perms []byte
	)
	if err := row.Scan(&group.ID, &group.Name, &perms, &group.CreatedAt, &group.UpdatedAt); err != nil {
		return catalog.Group{}, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &group.Permissions); err != nil {
			return catalog.Group{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return group, nil
}
