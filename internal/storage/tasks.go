package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"wbautoslot/internal/domain"
)

const taskColumns = `id, user_id, account_id, name, warehouse, date_from, date_to,
	min_coefficient, packaging, shipment_number, auto_book, status,
	last_checked_at, found_slots, poll_interval_s, created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, t domain.Task) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, nullStr(t.AccountID), t.Name, t.Warehouse,
		t.DateFrom.Format(time.RFC3339Nano), t.DateTo.Format(time.RFC3339Nano),
		t.MinCoefficient, t.Packaging, nullStr(t.ShipmentNumber), t.AutoBook,
		string(t.Status), nullTime(t.LastCheckedAt), t.FoundSlots,
		int64(t.PollInterval.Seconds()),
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// SaveTask persists all mutable task fields. It is the write path used by
// both the orchestrator (status, last_checked_at, found_slots) and task
// management updates.
func (s *Store) SaveTask(ctx context.Context, t domain.Task) error {
	t.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET account_id=?, name=?, warehouse=?, date_from=?, date_to=?,
		 min_coefficient=?, packaging=?, shipment_number=?, auto_book=?, status=?,
		 last_checked_at=?, found_slots=?, poll_interval_s=?, updated_at=?
		 WHERE id=?`,
		nullStr(t.AccountID), t.Name, t.Warehouse,
		t.DateFrom.Format(time.RFC3339Nano), t.DateTo.Format(time.RFC3339Nano),
		t.MinCoefficient, t.Packaging, nullStr(t.ShipmentNumber), t.AutoBook,
		string(t.Status), nullTime(t.LastCheckedAt), t.FoundSlots,
		int64(t.PollInterval.Seconds()),
		t.UpdatedAt.Format(time.RFC3339Nano), t.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListTasksByUser(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListActiveTasks returns every task with status=active. Used on startup to
// rebuild the scheduler registry, which holds no durable state of its own.
func (s *Store) ListActiveTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at`, string(domain.TaskActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t                                  domain.Task
		accountID, shipment, lastChecked   sql.NullString
		dateFrom, dateTo, created, updated string
		status                             string
		pollSeconds                        int64
	)
	err := row.Scan(
		&t.ID, &t.UserID, &accountID, &t.Name, &t.Warehouse, &dateFrom, &dateTo,
		&t.MinCoefficient, &t.Packaging, &shipment, &t.AutoBook, &status,
		&lastChecked, &t.FoundSlots, &pollSeconds, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	t.AccountID = accountID.String
	t.ShipmentNumber = shipment.String
	t.Status = domain.TaskStatus(status)
	t.LastCheckedAt = parseTime(lastChecked)
	t.PollInterval = time.Duration(pollSeconds) * time.Second
	t.DateFrom, _ = time.Parse(time.RFC3339Nano, dateFrom)
	t.DateTo, _ = time.Parse(time.RFC3339Nano, dateTo)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
