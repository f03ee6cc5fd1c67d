package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"identra.org/internal/directory"
)

const userColumns = `id, login, password_hash, age, refresh_token, is_deleted, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u *directory.User) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		insert into users (id, login, password_hash, age, refresh_token, is_deleted, created_at, updated_at)
		values ($1, $2, $3, $4, nullif($5, ''), $6, $7, $8)
	`, u.ID, u.Login, u.PasswordHash, u.Age, u.RefreshToken, u.IsDeleted, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", directory.ErrLoginTaken, u.Login)
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (directory.User, error) {
	return s.scanUser(s.q(ctx).QueryRowContext(ctx, `
		select `+userColumns+` from users where id = $1
	`, id))
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (directory.User, error) {
	return s.scanUser(s.q(ctx).QueryRowContext(ctx, `
		select `+userColumns+` from users where login = $1
	`, login))
}

func (s *Store) GetUserByRefreshToken(ctx context.Context, token string) (directory.User, error) {
	return s.scanUser(s.q(ctx).QueryRowContext(ctx, `
		select `+userColumns+` from users where refresh_token = $1
	`, token))
}

func (s *Store) UpdateUser(ctx context.Context, u directory.User) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		update users set login = $1, password_hash = $2, age = $3, updated_at = $4
		where id = $5
	`, u.Login, u.PasswordHash, u.Age, u.UpdatedAt, u.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", directory.ErrLoginTaken, u.Login)
		}
		return err
	}
	return requireAffected(res, directory.ErrNotFound)
}

func (s *Store) SetRefreshTokenByLogin(ctx context.Context, login, token string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		update users set refresh_token = nullif($1, '') where login = $2
	`, token, login)
	if err != nil {
		return err
	}
	return requireAffected(res, directory.ErrNotFound)
}

func (s *Store) ClearRefreshToken(ctx context.Context, userID string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		update users set refresh_token = null where id = $1
	`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res, directory.ErrNotFound)
}

func (s *Store) SoftDeleteUser(ctx context.Context, id string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		update users set is_deleted = true, updated_at = now() where id = $1
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, directory.ErrNotFound)
}

func (s *Store) LoginExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx, `
		select exists(select 1 from users where login = $1)
	`, login).Scan(&exists)
	return exists, err
}

func (s *Store) CountUsersByIDs(ctx context.Context, ids []string) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx, `
		select count(*) from users where id = any($1)
	`, ids).Scan(&count)
	return count, err
}

func (s *Store) SearchUsersByLogin(ctx context.Context, substring string) ([]directory.User, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		select `+userColumns+` from users
		where login ilike '%' || $1 || '%'
		order by id
	`, substring)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []directory.User
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row *sql.Row) (directory.User, error) {
	user, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return user, nil
}

func scanUserRow(row rowScanner) (directory.User, error) {
	var (
		user    directory.User
		refresh sql.NullString
	)
	if err := row.Scan(&user.ID, &user.Login, &user.PasswordHash, &user.Age,
		&refresh, &user.IsDeleted, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return directory.User{}, err
	}
	if refresh.Valid {
		user.RefreshToken = refresh.String
	}
	return user, nil
}

func requireAffected(res sql.Result, missing error) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return missing
	}
	return nil
}
