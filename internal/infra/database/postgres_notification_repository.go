// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"patient_recommender/internal/domain/notification"

	"github.com/google/uuid"
)

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

const notificationColumns = `id, patient_reference, message, receiver_device_type, kind, read, date_sent, date_read`

func scanNotification(row interface{ Scan(...any) error }) (*notification.Notification, error) {
	n := &notification.Notification{}
	var readAt sql.NullTime
	if err := row.Scan(&n.ID, &n.PatientReference, &n.Message, &n.Channel, &n.Kind, &n.Read, &n.SentAt, &readAt); err != nil {
		return nil, err
	}
	if readAt.Valid {
		at := readAt.Time
		n.ReadAt = &at
	}
	return n, nil
}

// Helper to scan multiple rows
func scanNotifications(rows *sql.Rows) ([]*notification.Notification, error) {
	notifications := make([]*notification.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification row: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return notifications, nil
}

// parseID rejects ids that cannot be a notification key.
func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, notification.ErrNotFound
	}
	return parsed, nil
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("error getting notification by ID: %w", err)
	}
	return n, nil
}

// MarkRead only touches unread rows, so a repeated receipt keeps the
// first read timestamp.
func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) (*notification.Notification, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	query := `UPDATE notifications
               SET read = TRUE, date_read = COALESCE(date_read, $2)
               WHERE id = $1
               RETURNING ` + notificationColumns
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, key, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("error marking notification %s read: %w", id, err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) ListByPatient(ctx context.Context, patientRef string, from, to time.Time) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + `
               FROM notifications
               WHERE patient_reference = $1 AND date_sent BETWEEN $2 AND $3
               ORDER BY date_sent, id`
	rows, err := r.db.QueryContext(ctx, query, patientRef, from, to)
	if err != nil {
		return nil, fmt.Errorf("error querying notification history: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *PostgresNotificationRepository) ListUnreadByKind(ctx context.Context, patientRef string, kind notification.Kind, since time.Time) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + `
               FROM notifications
               WHERE patient_reference = $1 AND kind = $2 AND read = FALSE AND date_sent >= $3
               ORDER BY date_sent ASC` // Oldest reminders first
	rows, err := r.db.QueryContext(ctx, query, patientRef, kind, since)
	if err != nil {
		return nil, fmt.Errorf("error querying unread %s notifications: %w", kind, err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}
