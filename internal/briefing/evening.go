package briefing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
)

// runEvening fans a daily summary out to every active user.
func (g *Generator) runEvening(ctx context.Context, now time.Time) {
	users, err := g.store.GetActiveUsers(ctx)
	if err != nil {
		g.logger.Error("failed to list users for evening summary", zap.Error(err))
		return
	}

	for _, u := range users {
		rec := &db.NotificationRecord{
			ID:               fmt.Sprintf("evening_%s_%s", u.UserID, now.Format("20060102")),
			UserID:           u.UserID,
			Title:            "Daily Summary",
			Message:          g.buildEveningSummary(ctx, u.UserID),
			NotificationType: db.TypeEveningSummary,
			ScheduledTime:    time.Now().UTC(),
			IsActive:         true,
		}
		g.scheduleGenerated(ctx, rec, "evening_summary")
	}
}

// buildEveningSummary assembles today's activity recap: counts of saves,
// completions and searches plus up to three content highlights.
func (g *Generator) buildEveningSummary(ctx context.Context, userID string) string {
	parts := []string{"🌙 **Daily Summary**\n"}
	hasAny := false

	activity, err := g.store.GetTodayActivity(ctx, userID)
	if err != nil {
		g.logger.Warn("failed to aggregate today's activity",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		activity = &db.TodayActivity{}
	}

	if activity.Saves > 0 {
		parts = append(parts, fmt.Sprintf("📝 You saved %d items today", activity.Saves))
		hasAny = true
	}
	if activity.CompletedTasks > 0 {
		parts = append(parts, fmt.Sprintf("✅ Completed %d tasks", activity.CompletedTasks))
		hasAny = true
	}
	if activity.Searches > 0 {
		parts = append(parts, fmt.Sprintf("🔍 Performed %d searches", activity.Searches))
		hasAny = true
	}

	if highlights := g.contentHighlights(ctx, userID); highlights != "" {
		parts = append(parts, fmt.Sprintf("\n💡 **Today's Highlights**:\n%s", highlights))
		hasAny = true
	}

	if !hasAny {
		parts = append(parts, "📭 No new activity today")
	}

	parts = append(parts, "\n🎯 Ready for tomorrow? Set some goals for a productive day ahead!")

	return strings.Join(parts, "\n")
}

// contentHighlights returns up to three bullet lines for the user's latest
// saved items.
func (g *Generator) contentHighlights(ctx context.Context, userID string) string {
	items, err := g.store.GetRecentContent(ctx, userID, 3)
	if err != nil || len(items) == 0 {
		return ""
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		title := item.Title
		if title == "" {
			title = truncate(item.Content, 50)
		}
		lines = append(lines, fmt.Sprintf("• %s", title))
	}

	return strings.Join(lines, "\n")
}
