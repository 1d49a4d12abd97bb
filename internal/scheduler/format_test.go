package scheduler

import (
	"strings"
	"testing"
	"time"

	"github.com/secondmind/notify/internal/db"
)

func TestFormatReminderStripsTrailingTimePhrase(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 15:00 IST on March 5th
	at := time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"at_pm", "Call mom at 3pm", "Call mom"},
		{"at_clock", "Standup at 9:30", "Standup"},
		{"at_clock_ampm", "Dentist at 10:15 am", "Dentist"},
		{"at_with_trailing", "Pay rent at 5pm tomorrow", "Pay rent"},
		{"no_time_phrase", "Water the plants", "Water the plants"},
		{"empty_falls_back", "", "Reminder"},
		{"only_time_phrase_falls_back", "at 3pm", "Reminder"},
		{"only_clock_phrase_falls_back", "At 15:30", "Reminder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &db.NotificationRecord{
				NotificationType: db.TypeReminder,
				Message:          tt.message,
				ScheduledTime:    at,
			}

			got := FormatMessage(rec, kolkata)

			if !strings.HasPrefix(got, "⏰ Reminder: "+tt.want+"\n") {
				t.Errorf("FormatMessage() = %q, want text %q", got, tt.want)
			}
			if !strings.Contains(got, "Mar 05, 03:00 PM") {
				t.Errorf("FormatMessage() = %q, missing local time render", got)
			}
			if !strings.Contains(got, "IST") {
				t.Errorf("FormatMessage() = %q, missing zone abbreviation", got)
			}
		})
	}
}

func TestFormatTaskIncludesCompleteHint(t *testing.T) {
	rec := &db.NotificationRecord{
		NotificationType: db.TypeTask,
		Message:          "Submit expense report",
	}

	got := FormatMessage(rec, time.UTC)

	if !strings.Contains(got, "Submit expense report") {
		t.Errorf("task body missing message: %q", got)
	}
	if !strings.Contains(got, "/complete") {
		t.Errorf("task body missing complete hint: %q", got)
	}
}

func TestFormatBriefingsPassThrough(t *testing.T) {
	for _, typ := range []string{db.TypeMorningBrief, db.TypeEveningSummary} {
		rec := &db.NotificationRecord{
			NotificationType: typ,
			Message:          "☀️ Good Morning!\n\nAlready formatted.",
		}

		if got := FormatMessage(rec, time.UTC); got != rec.Message {
			t.Errorf("%s: FormatMessage() = %q, want verbatim pass-through", typ, got)
		}
	}
}

func TestFormatMemoryResurface(t *testing.T) {
	rec := &db.NotificationRecord{
		NotificationType: db.TypeMemoryResurface,
		Message:          "📎 That article about sourdough",
		Metadata:         map[string]string{"original_date": "January 12, 2026"},
	}

	got := FormatMessage(rec, time.UTC)

	if !strings.Contains(got, "That article about sourdough") {
		t.Errorf("memory body missing content: %q", got)
	}
	if !strings.Contains(got, "Originally saved on January 12, 2026") {
		t.Errorf("memory body missing original date: %q", got)
	}
}

func TestFormatUnknownTypeWrapsMessage(t *testing.T) {
	rec := &db.NotificationRecord{
		NotificationType: "announcement",
		Message:          "Maintenance window tonight",
	}

	got := FormatMessage(rec, time.UTC)

	if got != "🔔 **Notification**\n\nMaintenance window tonight" {
		t.Errorf("FormatMessage() = %q, want generic notification wrapper", got)
	}
}

func TestFormatMemoryResurfaceMissingDate(t *testing.T) {
	rec := &db.NotificationRecord{
		NotificationType: db.TypeMemoryResurface,
		Message:          "old note",
	}

	got := FormatMessage(rec, time.UTC)

	if !strings.Contains(got, "unknown date") {
		t.Errorf("missing metadata should render %q placeholder: %q", "unknown date", got)
	}
}
