package briefing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
)

// skipNewest keeps freshly saved content out of the resurfacing pool.
const skipNewest = 10

var contentEmoji = map[string]string{
	"note":     "📝",
	"task":     "📋",
	"link":     "🔗",
	"reminder": "⏰",
}

// resurfaceProbability maps the user's frequency preference to a
// per-run chance. Runs happen every ResurfaceInterval, so "daily" at 50%
// yields roughly two resurfaces a day with the default six-hour interval.
func resurfaceProbability(frequency string) float64 {
	switch frequency {
	case "daily":
		return 0.5
	case "weekly":
		return 0.25
	case "monthly":
		return 0.1
	default:
		return 0.2
	}
}

// runResurface rolls the dice for each active user and surfaces one random
// older saved item for those selected.
func (g *Generator) runResurface(ctx context.Context, now time.Time) {
	users, err := g.store.GetActiveUsers(ctx)
	if err != nil {
		g.logger.Error("failed to list users for memory resurfacing", zap.Error(err))
		return
	}

	for _, u := range users {
		if g.rand.Float64() >= resurfaceProbability(u.ResurfaceFrequency) {
			continue
		}

		item := g.pickMemory(ctx, u.UserID)
		if item == nil {
			continue
		}

		rec := &db.NotificationRecord{
			ID:               fmt.Sprintf("memory_%s_%s", u.UserID, now.Format("20060102_1504")),
			UserID:           u.UserID,
			Title:            "Memory from your Second Brain",
			Message:          formatMemoryContent(item),
			NotificationType: db.TypeMemoryResurface,
			ScheduledTime:    time.Now().UTC(),
			IsActive:         true,
			Metadata: map[string]string{
				"original_date": item.CreatedAt.Format("January 2, 2006"),
			},
		}
		g.scheduleGenerated(ctx, rec, "memory_resurface")
	}
}

// pickMemory returns a random older item, preferring content outside the
// newest skipNewest saves. Users with only a handful of items fall back to
// the full set.
func (g *Generator) pickMemory(ctx context.Context, userID string) *db.ContentItem {
	pool, err := g.store.GetResurfaceCandidates(ctx, userID, skipNewest, 190)
	if err != nil {
		g.logger.Warn("failed to fetch resurface candidates",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return nil
	}

	if len(pool) == 0 {
		pool, err = g.store.GetResurfaceCandidates(ctx, userID, 0, skipNewest)
		if err != nil || len(pool) == 0 {
			return nil
		}
	}

	return pool[g.rand.Intn(len(pool))]
}

// formatMemoryContent renders the resurfaced item with a type emoji and a
// bounded snippet.
func formatMemoryContent(item *db.ContentItem) string {
	contentType := item.ContentType
	if contentType == "" {
		contentType = "item"
	}

	title := item.Title
	if title == "" {
		title = "Untitled"
	}

	emoji, ok := contentEmoji[contentType]
	if !ok {
		emoji = "📄"
	}

	snippet := truncate(item.Content, 200)
	msg := fmt.Sprintf("%s **%s**\n\n%s", emoji, title, snippet)
	if len([]rune(item.Content)) > 200 {
		msg += "..."
	}
	msg += fmt.Sprintf("\n\n_This %s might be worth revisiting!_", contentType)

	return msg
}
