package db

import (
	"time"
)

// NotificationRecord is one scheduled unit of outbound communication.
// The id is assigned by the caller so that retried creates of the same
// logical notification collapse onto one row.
type NotificationRecord struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Title            string            `json:"title"`
	Message          string            `json:"message"`
	NotificationType string            `json:"notification_type"`
	ScheduledTime    time.Time         `json:"scheduled_time"`
	RecurringPattern *string           `json:"recurring_pattern,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	IsSent           bool              `json:"is_sent"`
	IsActive         bool              `json:"is_active"`
	CreatedAt        time.Time         `json:"created_at"`
	SentAt           *time.Time        `json:"sent_at,omitempty"`
}

// Notification type constants
const (
	TypeReminder        = "reminder"
	TypeTask            = "task"
	TypeMorningBrief    = "morning_brief"
	TypeEveningSummary  = "evening_summary"
	TypeMemoryResurface = "memory_resurface"
)

// Channel constants
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
)

// DefaultTimezone is used when a user has no (or an invalid) timezone set.
const DefaultTimezone = "Asia/Kolkata"

// UserPreferences holds per-user delivery settings.
type UserPreferences struct {
	UserID             string `json:"user_id"`
	Timezone           string `json:"timezone"`
	Channel            string `json:"channel"`
	Address            string `json:"address"`
	ResurfaceFrequency string `json:"memory_resurface_frequency"`
}

// ContentItem is a saved note/task/link that the periodic generators
// summarize and resurface.
type ContentItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ContentType string    `json:"content_type"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// TodayActivity aggregates a user's activity for the evening summary.
type TodayActivity struct {
	Saves          int `json:"saves"`
	CompletedTasks int `json:"completed_tasks"`
	Searches       int `json:"searches"`
}
