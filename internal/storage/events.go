package storage

import (
	"context"
	"database/sql"
	"time"

	"wbautoslot/internal/domain"
)

// AppendEvent inserts one event log entry. Events are append-only.
func (s *Store) AppendEvent(ctx context.Context, e domain.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (task_id, user_id, kind, message, details, created_at)
		 VALUES (?,?,?,?,?,?)`,
		e.TaskID, e.UserID, string(e.Kind), e.Message, nullStr(e.Details),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// ListEventsByUser returns the newest events first, capped at limit.
func (s *Store) ListEventsByUser(ctx context.Context, userID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, user_id, kind, message, details, created_at
		 FROM events WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *Store) ListEventsByTask(ctx context.Context, taskID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, user_id, kind, message, details, created_at
		 FROM events WHERE task_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var out []domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			kind    string
			details sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &kind, &e.Message, &details, &created); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		e.Details = details.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
