package briefing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
)

var motivationalLines = []string{
	"💪 You've got this! Make today count!",
	"🎯 Focus on what matters most today!",
	"✨ Every small step counts towards your goals!",
	"🚀 Ready to tackle today's challenges!",
	"🌟 Make today better than yesterday!",
}

// runMorning fans a morning briefing out to every active user. The id is
// deterministic per user per day, so re-runs inside the window are no-ops.
func (g *Generator) runMorning(ctx context.Context, now time.Time) {
	users, err := g.store.GetActiveUsers(ctx)
	if err != nil {
		g.logger.Error("failed to list users for morning briefing", zap.Error(err))
		return
	}

	for _, u := range users {
		rec := &db.NotificationRecord{
			ID:               fmt.Sprintf("morning_%s_%s", u.UserID, now.Format("20060102")),
			UserID:           u.UserID,
			Title:            "Good Morning!",
			Message:          g.buildMorningBrief(ctx, u.UserID),
			NotificationType: db.TypeMorningBrief,
			ScheduledTime:    time.Now().UTC(),
			IsActive:         true,
		}
		g.scheduleGenerated(ctx, rec, "morning_brief")
	}
}

// buildMorningBrief assembles the briefing text. Sections with no data are
// simply omitted.
func (g *Generator) buildMorningBrief(ctx context.Context, userID string) string {
	parts := []string{"🌅 **Good Morning!**\n"}

	if weather := g.weatherLine(); weather != "" {
		parts = append(parts, fmt.Sprintf("🌤️ **Weather**: %s\n", weather))
	}

	if count, err := g.store.CountTasks(ctx, userID); err == nil && count > 0 {
		parts = append(parts, fmt.Sprintf("📋 **Today's Tasks**: %d tasks in your list\n", count))
	}

	if recent, err := g.store.GetRecentContent(ctx, userID, 5); err == nil && len(recent) > 0 {
		entries := make([]string, 0, len(recent))
		for _, item := range recent {
			title := item.Title
			if title == "" {
				title = truncate(item.Content, 30)
			}
			entries = append(entries, fmt.Sprintf("%s: %s", item.ContentType, title))
		}
		parts = append(parts, fmt.Sprintf("📚 **Recent Saves**: %s\n", strings.Join(entries, ", ")))
	}

	parts = append(parts, motivationalLines[g.rand.Intn(len(motivationalLines))])

	return strings.Join(parts, "\n")
}

// weatherLine returns a weather summary when an API key is configured.
// TODO: wire a real OpenWeatherMap call; the placeholder matches the
// current bot behavior.
func (g *Generator) weatherLine() string {
	if g.cfg.WeatherAPIKey == "" {
		return ""
	}
	return "Sunny, 22°C (Perfect day to be productive!)"
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
