package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"wbautoslot/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, phone, email, password_hash, is_active, created_at)
		 VALUES (?,?,?,?,?,?)`,
		u.ID, u.Phone, nullStr(u.Email), u.PasswordHash, u.IsActive,
		u.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrConflict
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.userBy(ctx, `id = ?`, id)
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (domain.User, error) {
	return s.userBy(ctx, `phone = ?`, phone)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.userBy(ctx, `email = ?`, email)
}

func (s *Store) userBy(ctx context.Context, where string, arg any) (domain.User, error) {
	var (
		u       domain.User
		email   sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phone, email, password_hash, is_active, created_at FROM users WHERE `+where,
		arg).Scan(&u.ID, &u.Phone, &email, &u.PasswordHash, &u.IsActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.Email = email.String
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return u, nil
}

// UserStats aggregates the dashboard counters for one user.
type UserStats struct {
	ActiveTasks int
	TotalTasks  int
	FoundSlots  int
	Events      int
	Accounts    int
}

func (s *Store) GetUserStats(ctx context.Context, userID string) (UserStats, error) {
	var st UserStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tasks WHERE user_id = ?1 AND status = 'active'),
			(SELECT COUNT(*) FROM tasks WHERE user_id = ?1),
			(SELECT COALESCE(SUM(found_slots), 0) FROM tasks WHERE user_id = ?1),
			(SELECT COUNT(*) FROM events WHERE user_id = ?1),
			(SELECT COUNT(*) FROM supplier_accounts WHERE user_id = ?1)`,
		userID).Scan(&st.ActiveTasks, &st.TotalTasks, &st.FoundSlots, &st.Events, &st.Accounts)
	return st, err
}
