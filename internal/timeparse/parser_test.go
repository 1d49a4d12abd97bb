package timeparse

import (
	"errors"
	"testing"
	"time"
)

// Monday, August 31 2026, 10:00 local
var ref = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

func TestParseRelative(t *testing.T) {
	tests := []struct {
		phrase string
		want   time.Time
	}{
		{"in 5 minutes", ref.Add(5 * time.Minute)},
		{"in 90 min", ref.Add(90 * time.Minute)},
		{"in 2 hours", ref.Add(2 * time.Hour)},
		{"in 1 hr", ref.Add(time.Hour)},
		{"in 3 days", ref.AddDate(0, 0, 3)},
		{"30 minutes from now", ref.Add(30 * time.Minute)},
		{"2 hours from now", ref.Add(2 * time.Hour)},
		{"remind me to stretch in 10 minutes", ref.Add(10 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, ok := Parse(tt.phrase, ref)
			if !ok {
				t.Fatalf("Parse(%q) not recognized", tt.phrase)
			}
			if !got.At.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.phrase, got.At, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		phrase string
		want   time.Time
	}{
		{"at 3pm", time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)},
		{"at 15:30", time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC)},
		{"at 9:15 pm", time.Date(2026, 8, 31, 21, 15, 0, 0, time.UTC)},
		{"call mom at 12pm", time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)},
		{"5pm", time.Date(2026, 8, 31, 17, 0, 0, 0, time.UTC)},
		// 8am already passed at the 10:00 reference, rolls to tomorrow
		{"at 8am", time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)},
		{"at 12am", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, ok := Parse(tt.phrase, ref)
			if !ok {
				t.Fatalf("Parse(%q) not recognized", tt.phrase)
			}
			if !got.At.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.phrase, got.At, tt.want)
			}
		})
	}
}

func TestParseDayWords(t *testing.T) {
	tests := []struct {
		phrase string
		want   time.Time
	}{
		{"tomorrow", time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)},
		{"tomorrow at 3pm", time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)},
		{"today at 6pm", time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)},
		{"tonight at 11pm", time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)},
		// ref is a Monday; "friday" is 4 days out
		{"on friday", time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC)},
		{"next friday at 2pm", time.Date(2026, 9, 4, 14, 0, 0, 0, time.UTC)},
		// same weekday as ref means next week
		{"monday", time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, ok := Parse(tt.phrase, ref)
			if !ok {
				t.Fatalf("Parse(%q) not recognized", tt.phrase)
			}
			if !got.At.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.phrase, got.At, tt.want)
			}
		})
	}
}

func TestParseRecurrence(t *testing.T) {
	tests := []struct {
		phrase string
		want   string
	}{
		{"every day at 9am", "daily"},
		{"every week", "weekly"},
		{"every month", "monthly"},
		{"every year", "yearly"},
		{"daily standup at 10am", "daily"},
		{"every 3 hours", "every_3_hours"},
		{"every 2 weeks", "every_2_weeks"},
		{"in 5 minutes", ""},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, ok := Parse(tt.phrase, ref)
			if !ok {
				t.Fatalf("Parse(%q) not recognized", tt.phrase)
			}
			if got.Recurrence != tt.want {
				t.Errorf("Parse(%q).Recurrence = %q, want %q", tt.phrase, got.Recurrence, tt.want)
			}
		})
	}
}

func TestParseBareRecurrenceAnchorsToDefaultHour(t *testing.T) {
	got, ok := Parse("every day", ref)
	if !ok {
		t.Fatal("bare recurrence phrase not recognized")
	}
	// 09:00 already passed at the 10:00 reference
	want := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	if !got.At.Equal(want) {
		t.Errorf("anchor = %v, want %v", got.At, want)
	}
}

func TestParseUnrecognized(t *testing.T) {
	phrases := []string{
		"",
		"whenever",
		"do the thing",
		"at 25:00",
	}

	for _, phrase := range phrases {
		if result, ok := Parse(phrase, ref); ok {
			t.Errorf("Parse(%q) = %+v, want not recognized", phrase, result)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{"future", ref.Add(time.Hour), nil},
		{"just_now", ref.Add(-30 * time.Second), nil},
		{"past", ref.Add(-time.Hour), ErrPastTime},
		{"two_years_out", ref.AddDate(2, 0, 1), ErrTooFarOut},
		{"almost_two_years", ref.AddDate(1, 11, 0), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.at, ref)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate(%v) = %v, want %v", tt.at, err, tt.want)
			}
		})
	}
}
