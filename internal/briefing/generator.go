// Package briefing runs the periodic content generators: morning briefings,
// evening summaries, and memory resurfacing. Each run synthesizes
// notification records and hands them to the scheduler; delivery then
// follows the normal path. Deterministic ids make the generators safe to
// re-run: an insert conflict means the window already fired.
package briefing

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
	"github.com/secondmind/notify/internal/metrics"
)

// wallClockWindow is how long a briefing time stays matchable. Checks run
// every checkInterval, so the window must cover at least one tick.
const (
	checkInterval   = 5 * time.Minute
	wallClockWindow = 5 * time.Minute
)

// Store is the read surface the generators aggregate from.
// *db.Repository satisfies it.
type Store interface {
	GetActiveUsers(ctx context.Context) ([]*db.UserPreferences, error)
	CountTasks(ctx context.Context, userID string) (int, error)
	GetRecentContent(ctx context.Context, userID string, limit int) ([]*db.ContentItem, error)
	GetTodayActivity(ctx context.Context, userID string) (*db.TodayActivity, error)
	GetResurfaceCandidates(ctx context.Context, userID string, skipRecent, limit int) ([]*db.ContentItem, error)
}

// Scheduler accepts the records the generators produce.
type Scheduler interface {
	Schedule(ctx context.Context, rec *db.NotificationRecord) error
}

// Config holds generator settings.
type Config struct {
	MorningTime       string // "HH:MM" in Timezone (default "08:00")
	EveningTime       string // "HH:MM" in Timezone (default "23:00")
	Timezone          string // reference zone for wall-clock checks
	ResurfaceInterval time.Duration
	WeatherAPIKey     string
}

func (c *Config) applyDefaults() {
	if c.MorningTime == "" {
		c.MorningTime = "08:00"
	}
	if c.EveningTime == "" {
		c.EveningTime = "23:00"
	}
	if c.Timezone == "" {
		c.Timezone = db.DefaultTimezone
	}
	if c.ResurfaceInterval <= 0 {
		c.ResurfaceInterval = 6 * time.Hour
	}
}

// Generator produces periodic notifications for all active users.
type Generator struct {
	store  Store
	sched  Scheduler
	logger *zap.Logger
	cfg    Config
	loc    *time.Location
	rand   *rand.Rand
}

// New creates a generator. Call Start on its own goroutine.
func New(cfg Config, store Store, sched Scheduler, logger *zap.Logger) (*Generator, error) {
	cfg.applyDefaults()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return &Generator{
		store:  store,
		sched:  sched,
		logger: logger,
		cfg:    cfg,
		loc:    loc,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Start runs wall-clock checks every five minutes for the briefing windows
// and a fixed interval for memory resurfacing. Blocks until ctx is
// cancelled.
func (g *Generator) Start(ctx context.Context) {
	g.logger.Info("briefing generator started",
		zap.String("morning_time", g.cfg.MorningTime),
		zap.String("evening_time", g.cfg.EveningTime),
		zap.String("timezone", g.cfg.Timezone),
		zap.Duration("resurface_interval", g.cfg.ResurfaceInterval),
	)

	clockTicker := time.NewTicker(checkInterval)
	defer clockTicker.Stop()

	resurfaceTicker := time.NewTicker(g.cfg.ResurfaceInterval)
	defer resurfaceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("briefing generator stopped")
			return
		case <-clockTicker.C:
			now := time.Now().In(g.loc)
			if inWindow(now, g.cfg.MorningTime) {
				g.runMorning(ctx, now)
			}
			if inWindow(now, g.cfg.EveningTime) {
				g.runEvening(ctx, now)
			}
		case <-resurfaceTicker.C:
			g.runResurface(ctx, time.Now().In(g.loc))
		}
	}
}

// inWindow reports whether now falls in [target, target+window) on today's
// local clock. The deterministic notification id makes a second match in
// the same window harmless.
func inWindow(now time.Time, target string) bool {
	t, err := time.Parse("15:04", target)
	if err != nil {
		return false
	}

	start := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	return !now.Before(start) && now.Before(start.Add(wallClockWindow))
}

// scheduleGenerated persists one generator-produced record. A duplicate id
// means this window already fired for the user; that is the normal
// idempotency path, not an error.
func (g *Generator) scheduleGenerated(ctx context.Context, rec *db.NotificationRecord, kind string) {
	err := g.sched.Schedule(ctx, rec)
	if errors.Is(err, db.ErrDuplicateID) {
		g.logger.Debug("window already generated",
			zap.String("notification_id", rec.ID),
			zap.String("kind", kind),
		)
		return
	}
	if err != nil {
		g.logger.Error("failed to schedule generated notification",
			zap.Error(err),
			zap.String("notification_id", rec.ID),
			zap.String("kind", kind),
		)
		return
	}

	metrics.RecordGeneratorRun(kind)
}
