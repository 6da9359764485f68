package storage

import (
	"context"
	"fmt"
	"time"

	"finledger/internal/core"
)

func (r *SQLiteRepository) Enqueue(ctx context.Context, n core.Notification) error {
	if n.Status == "" {
		n.Status = core.NotificationPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = n.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_outbox
			(id, user_id, kind, category, amount, currency, status, attempts, next_attempt_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Kind), n.Category, n.Amount.String(), n.Currency, string(n.Status),
		n.Attempts, formatTime(n.NextAttemptAt), n.LastError, formatTime(n.CreatedAt), formatTime(n.CreatedAt))
	return core.StorageError("enqueue notification", err)
}

// Due returns up to limit pending or failed notifications whose next attempt is not after now, oldest first.
func (r *SQLiteRepository) Due(ctx context.Context, now time.Time, limit int) ([]core.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, kind, category, amount, currency, status, attempts, next_attempt_at, last_error, created_at
		FROM notification_outbox
		WHERE status IN (?, ?) AND next_attempt_at <= ?
		ORDER BY created_at, id
		LIMIT ?`,
		string(core.NotificationPending), string(core.NotificationFailed), formatTime(now), limit)
	if err != nil {
		return nil, core.StorageError("load due notifications", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n                 core.Notification
			kind, status      string
			nextAt, createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Category, &n.Amount, &n.Currency, &status,
			&n.Attempts, &nextAt, &n.LastError, &createdAt); err != nil {
			return nil, core.StorageError("scan notification", err)
		}
		n.Kind = core.NotificationKind(kind)
		n.Status = core.NotificationStatus(status)
		if n.NextAttemptAt, err = parseTime(nextAt); err != nil {
			return nil, core.StorageError("parse notification timestamp", err)
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, core.StorageError("parse notification timestamp", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("load due notifications", err)
	}
	return out, nil
}

func (r *SQLiteRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.updateNotification(ctx, "mark notification sent", `
		UPDATE notification_outbox
		SET status = ?, attempts = attempts + 1, last_error = '', updated_at = ?
		WHERE id = ?`,
		string(core.NotificationSent), formatTime(at), id)
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string, next time.Time, lastErr string, dead bool) error {
	status := core.NotificationFailed
	if dead {
		status = core.NotificationDead
	}
	return r.updateNotification(ctx, "mark notification failed", `
		UPDATE notification_outbox
		SET status = ?, attempts = attempts + 1, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(status), formatTime(next), lastErr, formatTime(time.Now()), id)
}

func (r *SQLiteRepository) updateNotification(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return core.StorageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.StorageError(op, err)
	}
	if n == 0 {
		return core.StorageError(op, fmt.Errorf("notification %s not found", args[len(args)-1]))
	}
	return nil
}
