package scheduler

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/secondmind/notify/internal/db"
)

// trailingTimeRe matches redundant "at 3pm" / "at 15:30" suffixes that users
// type into reminder text; the rendered scheduled time replaces them.
var trailingTimeRe = regexp.MustCompile(`(?i)(?:^|\s)at\s+\d{1,2}(:\d{2})?(\s?(am|pm))?\b.*$`)

// FormatMessage renders the outbound text for a notification according to
// its type. Missing fields shorten the output, they never fail it.
func FormatMessage(rec *db.NotificationRecord, loc *time.Location) string {
	switch rec.NotificationType {
	case db.TypeReminder:
		return formatReminder(rec, loc)

	case db.TypeTask:
		return fmt.Sprintf("📋 **Task Due**\n\n%s\n\n_Use /complete to mark as done_", rec.Message)

	case db.TypeMorningBrief, db.TypeEveningSummary:
		// already fully formatted by the generator
		return rec.Message

	case db.TypeMemoryResurface:
		origDate := rec.Metadata["original_date"]
		if origDate == "" {
			origDate = "unknown date"
		}
		return fmt.Sprintf("🧠 **Memory from your Second Brain**\n\n%s\n\n_Originally saved on %s_", rec.Message, origDate)

	default:
		return fmt.Sprintf("🔔 **Notification**\n\n%s", rec.Message)
	}
}

func formatReminder(rec *db.NotificationRecord, loc *time.Location) string {
	text := rec.Message
	if text == "" {
		text = "Reminder"
	}
	text = strings.TrimSpace(trailingTimeRe.ReplaceAllString(text, ""))
	if text == "" {
		text = "Reminder"
	}

	local := rec.ScheduledTime.In(loc)
	return fmt.Sprintf("⏰ Reminder: %s\nTime: %s %s",
		text,
		local.Format("Jan 02, 03:04 PM"),
		local.Format("MST"),
	)
}
