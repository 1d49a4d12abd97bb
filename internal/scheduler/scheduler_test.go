package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
	"github.com/secondmind/notify/internal/sender"
)

// fakeStore is an in-memory Store for exercising the delivery paths.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*db.NotificationRecord
	prefs   map[string]*db.UserPreferences

	failCreate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*db.NotificationRecord),
		prefs:   make(map[string]*db.UserPreferences),
	}
}

func (f *fakeStore) CreateNotification(ctx context.Context, rec *db.NotificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return errors.New("store unavailable")
	}
	if _, exists := f.records[rec.ID]; exists {
		return db.ErrDuplicateID
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeStore) GetNotification(ctx context.Context, id string) (*db.NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) GetPendingNotifications(ctx context.Context, limit int) ([]*db.NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*db.NotificationRecord
	for _, rec := range f.records {
		if !rec.IsSent && rec.IsActive {
			cp := *rec
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok || rec.IsSent {
		return false, nil
	}
	rec.IsSent = true
	rec.SentAt = &sentAt
	return true, nil
}

func (f *fakeStore) CancelNotification(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return db.ErrNotFound
	}
	rec.IsActive = false
	return nil
}

func (f *fakeStore) GetUserPreferences(ctx context.Context, userID string) (*db.UserPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.prefs[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// countingSender records every delivered message.
type countingSender struct {
	mu    sync.Mutex
	sent  []*sender.Message
	times []time.Time
	fail  bool
}

func (c *countingSender) Send(ctx context.Context, msg *sender.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return errors.New("channel down")
	}
	c.sent = append(c.sent, msg)
	c.times = append(c.times, time.Now())
	return nil
}

func (c *countingSender) SupportsChannel(channel string) bool { return true }

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func testRecord(id string, at time.Time) *db.NotificationRecord {
	return &db.NotificationRecord{
		ID:               id,
		UserID:           "user-1",
		Message:          "drink water",
		NotificationType: db.TypeReminder,
		ScheduledTime:    at,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
}

func newTestScheduler(store Store, snd sender.Sender) *Scheduler {
	return New(Config{
		PollInterval: 50 * time.Millisecond,
		Grace:        20 * time.Millisecond,
		TimerHorizon: 500 * time.Millisecond,
		PollBatch:    200,
		StoreTimeout: time.Second,
	}, store, snd, nil, zap.NewNop())
}

func TestConcurrentDeliverSendsOnce(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	rec := testRecord("n1", time.Now().Add(-time.Second))
	store.records[rec.ID] = rec

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.deliver(context.Background(), rec)
		}()
	}
	wg.Wait()

	if got := snd.count(); got != 1 {
		t.Errorf("concurrent deliver sent %d times, want 1", got)
	}
	if !store.records["n1"].IsSent {
		t.Error("record not marked sent")
	}
}

func TestDeliverWaitsUntilScheduledTime(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	due := time.Now().Add(150 * time.Millisecond)
	rec := testRecord("n1", due)
	store.records[rec.ID] = rec

	s.deliver(context.Background(), rec)

	if got := snd.count(); got != 1 {
		t.Fatalf("sent %d times, want 1", got)
	}
	if snd.times[0].Before(due) {
		t.Errorf("delivered at %v, before scheduled time %v", snd.times[0], due)
	}
}

func TestScheduleFailsWhenPersistenceFails(t *testing.T) {
	store := newFakeStore()
	store.failCreate = true
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	rec := testRecord("n1", time.Now().Add(100*time.Millisecond))
	if err := s.Schedule(context.Background(), rec); err == nil {
		t.Fatal("Schedule succeeded despite persistence failure")
	}
	if s.ArmedTimers() != 0 {
		t.Error("timer armed for unpersisted record")
	}
}

func TestSchedulePassesThroughDuplicateID(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	rec := testRecord("n1", time.Now().Add(time.Hour))
	if err := s.Schedule(context.Background(), rec); err != nil {
		t.Fatalf("first Schedule failed: %v", err)
	}
	if err := s.Schedule(context.Background(), rec); !errors.Is(err, db.ErrDuplicateID) {
		t.Errorf("second Schedule err = %v, want ErrDuplicateID", err)
	}
}

func TestDeliverSkipsAlreadySent(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	rec := testRecord("n1", time.Now().Add(-time.Second))
	rec.IsSent = true
	store.records[rec.ID] = rec

	s.deliver(context.Background(), rec)

	if got := snd.count(); got != 0 {
		t.Errorf("sent %d times for already-sent record, want 0", got)
	}
}

func TestCancelGatesDelivery(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	rec := testRecord("n1", time.Now().Add(-time.Second))
	store.records[rec.ID] = rec

	if err := s.Cancel(context.Background(), rec.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	s.deliver(context.Background(), rec)

	if got := snd.count(); got != 0 {
		t.Errorf("sent %d times for cancelled record, want 0", got)
	}
	if store.records["n1"].IsSent {
		t.Error("cancelled record marked sent")
	}
}

func TestFailedSendStaysPending(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{fail: true}
	s := newTestScheduler(store, snd)

	rec := testRecord("n1", time.Now().Add(-time.Second))
	store.records[rec.ID] = rec

	s.deliver(context.Background(), rec)

	if store.records["n1"].IsSent {
		t.Error("record marked sent after failed delivery")
	}

	// channel recovers; the next attempt succeeds
	snd.fail = false
	s.deliver(context.Background(), rec)

	if got := snd.count(); got != 1 {
		t.Errorf("sent %d times after recovery, want 1", got)
	}
	if !store.records["n1"].IsSent {
		t.Error("record not marked sent after successful retry")
	}
}

func TestPollPartitionsByDueness(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	now := time.Now()
	store.records["due"] = testRecord("due", now.Add(-time.Second))
	store.records["soon"] = testRecord("soon", now.Add(300*time.Millisecond))
	store.records["later"] = testRecord("later", now.Add(time.Hour))

	s.pollOnce(context.Background())

	// due-now delivery runs on its own goroutine
	deadline := time.Now().Add(time.Second)
	for snd.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if got := snd.count(); got != 1 {
		t.Fatalf("delivered %d records immediately, want 1", got)
	}
	snd.mu.Lock()
	deliveredID := snd.sent[0].NotificationID
	snd.mu.Unlock()
	if deliveredID != "due" {
		t.Errorf("delivered %q, want %q", deliveredID, "due")
	}

	if s.ArmedTimers() != 1 {
		t.Errorf("armed %d timers, want 1 (the due-soon record)", s.ArmedTimers())
	}
}

func TestPreciseTimerDeliversNearDueTime(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	due := time.Now().Add(200 * time.Millisecond)
	rec := testRecord("n1", due)

	if err := s.Schedule(context.Background(), rec); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if s.ArmedTimers() != 1 {
		t.Fatalf("armed %d timers, want 1", s.ArmedTimers())
	}

	deadline := time.Now().Add(2 * time.Second)
	for snd.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if got := snd.count(); got != 1 {
		t.Fatalf("sent %d times, want 1", got)
	}
	if snd.times[0].Before(due) {
		t.Errorf("timer delivered at %v, before due time %v", snd.times[0], due)
	}
}

func TestEnsureTimerIsIdempotent(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store, &countingSender{})

	rec := testRecord("n1", time.Now().Add(time.Minute))
	s.ensureTimer(rec)
	s.ensureTimer(rec)
	s.ensureTimer(rec)

	if s.ArmedTimers() != 1 {
		t.Errorf("armed %d timers, want 1", s.ArmedTimers())
	}
}

func TestDeliverUsesUserPreferences(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	store.prefs["user-1"] = &db.UserPreferences{
		UserID:   "user-1",
		Timezone: "America/New_York",
		Channel:  db.ChannelEmail,
		Address:  "u1@example.com",
	}
	rec := testRecord("n1", time.Now().Add(-time.Second))
	store.records[rec.ID] = rec

	s.deliver(context.Background(), rec)

	if got := snd.count(); got != 1 {
		t.Fatalf("sent %d times, want 1", got)
	}
	msg := snd.sent[0]
	if msg.Channel != db.ChannelEmail {
		t.Errorf("channel = %q, want email", msg.Channel)
	}
	if msg.Address != "u1@example.com" {
		t.Errorf("address = %q, want u1@example.com", msg.Address)
	}
}

func TestDeliverDefaultsToTelegramWithoutPreferences(t *testing.T) {
	store := newFakeStore()
	snd := &countingSender{}
	s := newTestScheduler(store, snd)

	rec := testRecord("n1", time.Now().Add(-time.Second))
	store.records[rec.ID] = rec

	s.deliver(context.Background(), rec)

	if got := snd.count(); got != 1 {
		t.Fatalf("sent %d times, want 1", got)
	}
	msg := snd.sent[0]
	if msg.Channel != db.ChannelTelegram {
		t.Errorf("channel = %q, want telegram", msg.Channel)
	}
	if msg.Address != "user-1" {
		t.Errorf("address = %q, want user id fallback", msg.Address)
	}
}
