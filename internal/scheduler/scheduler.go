// Package scheduler delivers notifications at their scheduled time using
// two cooperating mechanisms: a coarse fixed-interval poller that sweeps
// the store for anything due, and precise in-process timers armed for
// records due within a short horizon. Both paths converge on a single
// deliver function that guards against double-sending.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
	"github.com/secondmind/notify/internal/metrics"
	"github.com/secondmind/notify/internal/sender"
)

// Store is the persistence surface the scheduler depends on.
// *db.Repository satisfies it.
type Store interface {
	CreateNotification(ctx context.Context, rec *db.NotificationRecord) error
	GetNotification(ctx context.Context, id string) (*db.NotificationRecord, error)
	GetPendingNotifications(ctx context.Context, limit int) ([]*db.NotificationRecord, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error)
	CancelNotification(ctx context.Context, id string) error
	GetUserPreferences(ctx context.Context, userID string) (*db.UserPreferences, error)
}

// EventPublisher receives delivery outcomes for downstream consumers.
type EventPublisher interface {
	PublishDelivery(ctx context.Context, notificationID, userID, notificationType, channel, outcome string) error
}

// Config holds scheduler tuning parameters.
type Config struct {
	PollInterval time.Duration // sweep cadence (default 15s)
	Grace        time.Duration // forward-looking window treated as "due now" (default 2s)
	TimerHorizon time.Duration // arm precise timers for records due within this (default 120s)
	PollBatch    int           // max records fetched per sweep (default 200)
	StoreTimeout time.Duration // per-call store deadline (default 10s)
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.Grace <= 0 {
		c.Grace = 2 * time.Second
	}
	if c.TimerHorizon <= 0 {
		c.TimerHorizon = 120 * time.Second
	}
	if c.PollBatch <= 0 {
		c.PollBatch = 200
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
}

// Scheduler owns the dual delivery paths. Construct with New, then call
// Start on its own goroutine; Start blocks until ctx is cancelled.
type Scheduler struct {
	store  Store
	sender sender.Sender
	events EventPublisher // nil disables event publishing
	logger *zap.Logger
	cfg    Config

	mu      sync.Mutex
	timers  map[string]*time.Timer
	sending map[string]struct{}
}

// New creates a scheduler. It does not start any goroutines.
func New(cfg Config, store Store, snd sender.Sender, events EventPublisher, logger *zap.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		store:   store,
		sender:  snd,
		events:  events,
		logger:  logger,
		cfg:     cfg,
		timers:  make(map[string]*time.Timer),
		sending: make(map[string]struct{}),
	}
}

// Start runs the poll loop until ctx is cancelled. An initial sweep runs
// immediately so pending records survive a restart without waiting a full
// interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Duration("timer_horizon", s.cfg.TimerHorizon),
		zap.Int("poll_batch", s.cfg.PollBatch),
	)

	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAllTimers()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

// Schedule durably persists the record, then arms a precise timer when the
// record is due within the horizon. Persistence is the only durability
// guarantee; if the insert fails the operation fails outright. A failed
// timer arm is not an error, the poller is the correctness backstop.
func (s *Scheduler) Schedule(ctx context.Context, rec *db.NotificationRecord) error {
	if !rec.IsActive {
		rec.IsActive = true
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.store.CreateNotification(storeCtx, rec); err != nil {
		return err
	}

	metrics.RecordNotificationScheduled(rec.NotificationType)

	if time.Until(rec.ScheduledTime) <= s.cfg.TimerHorizon {
		s.ensureTimer(rec)
	}

	return nil
}

// Cancel deactivates a notification. The durable flag flip is what gates
// delivery; stopping an armed timer is opportunistic cleanup.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.store.CancelNotification(storeCtx, id); err != nil {
		return err
	}

	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	return nil
}

// pollOnce sweeps the store and partitions pending records into due-now
// (deliver), due-soon (arm precise timer), and due-later (skip).
func (s *Scheduler) pollOnce(ctx context.Context) {
	metrics.RecordPollTick()

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	pending, err := s.store.GetPendingNotifications(storeCtx, s.cfg.PollBatch)
	cancel()
	if err != nil {
		s.logger.Error("poll sweep failed", zap.Error(err))
		return
	}

	now := time.Now()
	for _, rec := range pending {
		until := rec.ScheduledTime.Sub(now)
		switch {
		case until <= s.cfg.Grace:
			go s.deliver(ctx, rec)
		case until <= s.cfg.TimerHorizon:
			s.ensureTimer(rec)
		}
	}
}

// ensureTimer arms a precise timer for the record unless one is already
// armed. The timer fires the same deliver path the poller uses.
func (s *Scheduler) ensureTimer(rec *db.NotificationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, armed := s.timers[rec.ID]; armed {
		return
	}

	delay := time.Until(rec.ScheduledTime)
	if delay < 0 {
		delay = 0
	}

	id := rec.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.deliver(context.Background(), rec)
	})

	metrics.RecordPreciseTimerArmed()
	s.logger.Debug("precise timer armed",
		zap.String("notification_id", id),
		zap.Duration("delay", delay),
	)
}

// deliver is the single delivery code path for both triggers. It must be
// idempotent under concurrent invocation: in-process guard, store re-check,
// then a conditional mark-sent that only one racer can win.
func (s *Scheduler) deliver(ctx context.Context, rec *db.NotificationRecord) {
	s.mu.Lock()
	if _, inFlight := s.sending[rec.ID]; inFlight {
		s.mu.Unlock()
		return
	}
	s.sending[rec.ID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sending, rec.ID)
		s.mu.Unlock()
	}()

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	fresh, err := s.store.GetNotification(storeCtx, rec.ID)
	cancel()
	if err != nil {
		s.logger.Error("delivery re-check failed",
			zap.Error(err),
			zap.String("notification_id", rec.ID),
		)
		return
	}
	if fresh.IsSent || !fresh.IsActive {
		metrics.RecordDuplicateSuppressed()
		return
	}

	// early fire protection: a timer or poll may trip slightly ahead
	if wait := time.Until(fresh.ScheduledTime); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	channel, address, loc := s.resolveDestination(ctx, fresh.UserID)

	msg := &sender.Message{
		NotificationID: fresh.ID,
		Channel:        channel,
		Address:        address,
		Subject:        fresh.Title,
		Body:           FormatMessage(fresh, loc),
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		metrics.RecordDeliveryFailure(channel)
		s.logger.Error("delivery failed, record stays pending",
			zap.Error(err),
			zap.String("notification_id", fresh.ID),
			zap.String("channel", channel),
		)
		s.publishEvent(fresh, channel, "failed")
		return
	}

	storeCtx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
	won, err := s.store.MarkSent(storeCtx, fresh.ID, time.Now())
	cancel()
	if err != nil {
		s.logger.Error("failed to mark sent after delivery",
			zap.Error(err),
			zap.String("notification_id", fresh.ID),
		)
		return
	}
	if !won {
		metrics.RecordDuplicateSuppressed()
		s.logger.Warn("concurrent delivery detected",
			zap.String("notification_id", fresh.ID),
		)
		return
	}

	metrics.RecordNotificationDelivered(fresh.NotificationType, channel)
	metrics.RecordDeliveryLatency(time.Since(fresh.ScheduledTime))
	s.logger.Info("notification delivered",
		zap.String("notification_id", fresh.ID),
		zap.String("user_id", fresh.UserID),
		zap.String("type", fresh.NotificationType),
		zap.String("channel", channel),
	)
	s.publishEvent(fresh, channel, "delivered")
}

// resolveDestination looks up the user's channel, address and timezone.
// Missing preferences fall back to Telegram with the user id as chat id.
func (s *Scheduler) resolveDestination(ctx context.Context, userID string) (channel, address string, loc *time.Location) {
	loc, _ = time.LoadLocation(db.DefaultTimezone)
	channel = db.ChannelTelegram
	address = userID

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	prefs, err := s.store.GetUserPreferences(storeCtx, userID)
	cancel()
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Warn("preference lookup failed, using defaults",
				zap.Error(err),
				zap.String("user_id", userID),
			)
		}
		return channel, address, loc
	}

	if prefs.Channel != "" {
		channel = prefs.Channel
	}
	if prefs.Address != "" {
		address = prefs.Address
	}
	if prefs.Timezone != "" {
		if l, err := time.LoadLocation(prefs.Timezone); err == nil {
			loc = l
		}
	}

	return channel, address, loc
}

func (s *Scheduler) publishEvent(rec *db.NotificationRecord, channel, outcome string) {
	if s.events == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.events.PublishDelivery(ctx, rec.ID, rec.UserID, rec.NotificationType, channel, outcome); err != nil {
			s.logger.Warn("failed to publish delivery event",
				zap.Error(err),
				zap.String("notification_id", rec.ID),
			)
		}
	}()
}

func (s *Scheduler) stopAllTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// ArmedTimers reports how many precise timers are currently armed.
func (s *Scheduler) ArmedTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
