package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when an insert collides with an existing id.
// Callers using deterministic ids treat this as "already generated".
var ErrDuplicateID = errors.New("duplicate notification id")

// Repository handles database operations for notifications and user content
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateNotification inserts a new notification row. The record id is
// caller-assigned; inserting an id that already exists returns
// ErrDuplicateID without touching the existing row.
func (r *Repository) CreateNotification(ctx context.Context, rec *NotificationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO notifications (
			id, user_id, title, message, notification_type,
			scheduled_time, recurring_pattern, metadata,
			is_sent, is_active, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Title,
		rec.Message,
		rec.NotificationType,
		rec.ScheduledTime.UTC(),
		rec.RecurringPattern,
		meta,
		rec.IsSent,
		rec.IsActive,
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", rec.ID),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrDuplicateID
	}

	r.logger.Info("notification created",
		zap.String("notification_id", rec.ID),
		zap.String("user_id", rec.UserID),
		zap.String("type", rec.NotificationType),
		zap.Time("scheduled_time", rec.ScheduledTime),
	)

	return nil
}

const notificationColumns = `
	id, user_id, title, message, notification_type,
	scheduled_time, recurring_pattern, metadata,
	is_sent, is_active, created_at, sent_at
`

func scanNotification(row pgx.Row) (*NotificationRecord, error) {
	var rec NotificationRecord
	var meta []byte

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Title,
		&rec.Message,
		&rec.NotificationType,
		&rec.ScheduledTime,
		&rec.RecurringPattern,
		&meta,
		&rec.IsSent,
		&rec.IsActive,
		&rec.CreatedAt,
		&rec.SentAt,
	)
	if err != nil {
		return nil, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

// GetNotification retrieves a notification by id
func (r *Repository) GetNotification(ctx context.Context, id string) (*NotificationRecord, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	rec, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get notification",
			zap.Error(err),
			zap.String("notification_id", id),
		)
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return rec, nil
}

// GetPendingNotifications returns active, unsent notifications in scheduled
// order. The limit bounds memory use when a backlog accumulates.
func (r *Repository) GetPendingNotifications(ctx context.Context, limit int) ([]*NotificationRecord, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE is_sent = false AND is_active = true
		ORDER BY scheduled_time ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer rows.Close()

	var records []*NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// MarkSent flips is_sent exactly once. Returns true if this call won the
// transition, false if the record was already sent (or does not exist) —
// the caller uses that to detect a concurrent delivery.
func (r *Repository) MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	query := `
		UPDATE notifications
		SET is_sent = true, sent_at = $2
		WHERE id = $1 AND is_sent = false
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, sentAt.UTC())
	if err != nil {
		r.logger.Error("failed to mark notification sent",
			zap.Error(err),
			zap.String("notification_id", id),
		)
		return false, fmt.Errorf("mark sent: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// CancelNotification deactivates a notification before it fires.
// Sent records keep is_sent = true; cancellation never undoes a send.
func (r *Repository) CancelNotification(ctx context.Context, id string) error {
	query := `UPDATE notifications SET is_active = false WHERE id = $1`

	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("failed to cancel notification",
			zap.Error(err),
			zap.String("notification_id", id),
		)
		return fmt.Errorf("cancel notification: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("notification cancelled", zap.String("notification_id", id))

	return nil
}

// ListNotificationsByUser retrieves a user's notifications with pagination
func (r *Repository) ListNotificationsByUser(ctx context.Context, userID string, limit, offset int) ([]*NotificationRecord, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY scheduled_time DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var records []*NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// GetActiveUsers returns preferences for every active user. Used by the
// periodic generators to fan out briefings and resurfacing.
func (r *Repository) GetActiveUsers(ctx context.Context) ([]*UserPreferences, error) {
	query := `
		SELECT user_id, timezone, channel, address, memory_resurface_frequency
		FROM user_preferences
		WHERE is_active = true
		LIMIT 500
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()

	var users []*UserPreferences
	for rows.Next() {
		var u UserPreferences
		if err := rows.Scan(&u.UserID, &u.Timezone, &u.Channel, &u.Address, &u.ResurfaceFrequency); err != nil {
			return nil, fmt.Errorf("scan user preferences: %w", err)
		}
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return users, nil
}

// GetUserPreferences fetches one user's delivery settings
func (r *Repository) GetUserPreferences(ctx context.Context, userID string) (*UserPreferences, error) {
	query := `
		SELECT user_id, timezone, channel, address, memory_resurface_frequency
		FROM user_preferences
		WHERE user_id = $1
	`

	var u UserPreferences
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&u.UserID, &u.Timezone, &u.Channel, &u.Address, &u.ResurfaceFrequency,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user preferences: %w", err)
	}

	return &u, nil
}

// GetUserTimezone returns the user's IANA timezone, falling back to
// DefaultTimezone when unset or invalid.
func (r *Repository) GetUserTimezone(ctx context.Context, userID string) string {
	prefs, err := r.GetUserPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("timezone lookup failed, using default",
				zap.Error(err),
				zap.String("user_id", userID),
			)
		}
		return DefaultTimezone
	}

	if prefs.Timezone == "" {
		return DefaultTimezone
	}
	if _, err := time.LoadLocation(prefs.Timezone); err != nil {
		return DefaultTimezone
	}

	return prefs.Timezone
}

// CountTasks returns how many tasks a user has saved
func (r *Repository) CountTasks(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM content WHERE user_id = $1 AND content_type = 'task' AND completed_at IS NULL`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// GetRecentContent returns a user's most recently saved items
func (r *Repository) GetRecentContent(ctx context.Context, userID string, limit int) ([]*ContentItem, error) {
	query := `
		SELECT id, user_id, content_type, title, content, created_at
		FROM content
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent content: %w", err)
	}
	defer rows.Close()

	return scanContentItems(rows)
}

// GetTodayActivity aggregates the user's saves, completions and searches
// since local midnight UTC. Feeds the evening summary.
func (r *Repository) GetTodayActivity(ctx context.Context, userID string) (*TodayActivity, error) {
	var a TodayActivity

	err := r.db.Pool().QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', now())),
			COUNT(*) FILTER (WHERE completed_at >= date_trunc('day', now()))
		FROM content
		WHERE user_id = $1
	`, userID).Scan(&a.Saves, &a.CompletedTasks)
	if err != nil {
		return nil, fmt.Errorf("aggregate content activity: %w", err)
	}

	err = r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM search_history WHERE user_id = $1 AND created_at >= date_trunc('day', now())`,
		userID,
	).Scan(&a.Searches)
	if err != nil {
		return nil, fmt.Errorf("count searches: %w", err)
	}

	return &a, nil
}

// GetResurfaceCandidates returns older saved items, skipping the most
// recent skipRecent rows so freshly saved content is not resurfaced.
func (r *Repository) GetResurfaceCandidates(ctx context.Context, userID string, skipRecent, limit int) ([]*ContentItem, error) {
	query := `
		SELECT id, user_id, content_type, title, content, created_at
		FROM content
		WHERE user_id = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, skipRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query resurface candidates: %w", err)
	}
	defer rows.Close()

	return scanContentItems(rows)
}

func scanContentItems(rows pgx.Rows) ([]*ContentItem, error) {
	var items []*ContentItem
	for rows.Next() {
		var it ContentItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.ContentType, &it.Title, &it.Content, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, &it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return items, nil
}
