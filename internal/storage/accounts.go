package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"wbautoslot/internal/domain"
)

func (s *Store) CreateAccount(ctx context.Context, a domain.SupplierAccount) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO supplier_accounts (id, user_id, name, cookies, is_active, last_login, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.Name, nullStr(a.Cookies), a.IsActive,
		nullTime(a.LastLogin), a.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) GetAccount(ctx context.Context, id string) (domain.SupplierAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, cookies, is_active, last_login, created_at
		 FROM supplier_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (s *Store) ListAccountsByUser(ctx context.Context, userID string) ([]domain.SupplierAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, cookies, is_active, last_login, created_at
		 FROM supplier_accounts WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SupplierAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveAccount(ctx context.Context, a domain.SupplierAccount) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE supplier_accounts SET name=?, cookies=?, is_active=?, last_login=? WHERE id=?`,
		a.Name, nullStr(a.Cookies), a.IsActive, nullTime(a.LastLogin), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM supplier_accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row rowScanner) (domain.SupplierAccount, error) {
	var (
		a                  domain.SupplierAccount
		cookies, lastLogin sql.NullString
		created            string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &cookies, &a.IsActive, &lastLogin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SupplierAccount{}, ErrNotFound
	}
	if err != nil {
		return domain.SupplierAccount{}, err
	}
	a.Cookies = cookies.String
	a.LastLogin = parseTime(lastLogin)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return a, nil
}
