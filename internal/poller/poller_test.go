package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	publisherapi "curator/pkg/api/publisher"
	"curator/pkg/models"

	"curator/internal/conflict"
	"curator/internal/publish"
	"curator/internal/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type mockSource struct {
	mu       sync.Mutex
	calendar *publisherapi.CalendarResponse
	queue    *publisherapi.QueueResponse
	calErr   error

	calendarCalls int
	block         chan struct{}
}

func (m *mockSource) GetCalendar(ctx context.Context, start, end time.Time) (*publisherapi.CalendarResponse, error) {
	m.mu.Lock()
	m.calendarCalls++
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if m.calErr != nil {
		return nil, m.calErr
	}
	return m.calendar, nil
}

func (m *mockSource) GetApprovalQueue(ctx context.Context) (*publisherapi.QueueResponse, error) {
	return m.queue, nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestPoller(src *mockSource, cfg Config) (*Poller, *store.ScheduleStore, *store.QueueStore) {
	schedule := store.NewScheduleStore()
	queue := store.NewQueueStore()
	detector := conflict.NewDetector(0, 0)
	if cfg.Clock == nil {
		cfg.Clock = &fakeClock{now: testNow}
	}
	tracker := publish.NewTracker(schedule, nil, publish.Config{Clock: cfg.Clock})
	return New(src, schedule, queue, detector, tracker, cfg), schedule, queue
}

func TestRefreshReplacesAndAnnotates(t *testing.T) {
	sameHour := testNow.Add(3 * time.Hour)
	src := &mockSource{
		calendar: &publisherapi.CalendarResponse{
			Items: []models.ScheduledItem{
				{ID: "a", ScheduledTime: sameHour, Status: models.StatusScheduled},
				{ID: "b", ScheduledTime: sameHour.Add(20 * time.Minute), Status: models.StatusScheduled},
				{ID: "soon", ScheduledTime: testNow.Add(30 * time.Minute), Status: models.StatusScheduled},
			},
		},
		queue: &publisherapi.QueueResponse{
			Items: []models.ApprovalQueueItem{{ID: "q1"}, {ID: "q2"}},
		},
	}
	p, schedule, queue := newTestPoller(src, Config{})

	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if len(queue.Items()) != 2 {
		t.Errorf("queue should hold 2 items, got %d", len(queue.Items()))
	}

	a, _ := schedule.Get("a")
	if len(a.ConflictIDs) != 1 || a.ConflictIDs[0] != "b" {
		t.Errorf("item a should conflict with b, got %v", a.ConflictIDs)
	}
	if a.IsImminent {
		t.Errorf("item 3h out should not be imminent")
	}
	soon, _ := schedule.Get("soon")
	if !soon.IsImminent {
		t.Errorf("item 30m out should be imminent")
	}
	if len(soon.ConflictIDs) != 0 {
		t.Errorf("lone item should have no conflicts, got %v", soon.ConflictIDs)
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	src := &mockSource{
		calendar: &publisherapi.CalendarResponse{
			Items: []models.ScheduledItem{{ID: "a", ScheduledTime: testNow.Add(3 * time.Hour)}},
		},
		queue: &publisherapi.QueueResponse{Items: []models.ApprovalQueueItem{{ID: "q1"}}},
	}
	p, schedule, queue := newTestPoller(src, Config{})

	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	src.calErr = errors.New("publisher error (503): unavailable")
	if err := p.RefreshNow(context.Background()); err == nil {
		t.Fatalf("expected refresh to fail")
	}

	if _, ok := schedule.Get("a"); !ok {
		t.Errorf("failed refresh must not clear the schedule")
	}
	if len(queue.Items()) != 1 {
		t.Errorf("failed refresh must not clear the queue")
	}
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	block := make(chan struct{})
	src := &mockSource{
		calendar: &publisherapi.CalendarResponse{},
		queue:    &publisherapi.QueueResponse{},
		block:    block,
	}
	p, _, _ := newTestPoller(src, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.RefreshNow(context.Background())
		}()
	}

	// Let the goroutines pile up behind the in-flight fetch
	time.Sleep(20 * time.Millisecond)
	close(block)
	wg.Wait()

	src.mu.Lock()
	calls := src.calendarCalls
	src.mu.Unlock()
	if calls >= 5 {
		t.Errorf("concurrent refreshes should share a fetch, got %d upstream calls", calls)
	}
}

type recordingEvents struct {
	mu      sync.Mutex
	updates int
}

func (r *recordingEvents) CalendarUpdated(items []models.ScheduledItem, buckets map[time.Time]conflict.Bucket) {
	r.mu.Lock()
	r.updates++
	r.mu.Unlock()
}

func TestRefreshNotifiesEvents(t *testing.T) {
	src := &mockSource{
		calendar: &publisherapi.CalendarResponse{},
		queue:    &publisherapi.QueueResponse{},
	}
	events := &recordingEvents{}
	p, _, _ := newTestPoller(src, Config{Events: events})

	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if events.updates != 1 {
		t.Errorf("expected one calendar_updated event, got %d", events.updates)
	}
}
