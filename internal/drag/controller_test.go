package drag

import (
	"context"
	"errors"
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

type mockRescheduler struct {
	calls []string
	times []time.Time
	err   error
	resp  *publisherapi.RescheduleResponse
}

func (m *mockRescheduler) Reschedule(ctx context.Context, itemID string, newPublishTime time.Time, force bool) (*publisherapi.RescheduleResponse, error) {
	m.calls = append(m.calls, itemID)
	m.times = append(m.times, newPublishTime)
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &publisherapi.RescheduleResponse{Success: true, NewPublishTime: newPublishTime}, nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestController(items []models.ScheduledItem, client Rescheduler) (*Controller, *store.ScheduleStore) {
	clock := &fakeClock{now: testNow}
	schedule := store.NewScheduleStore()
	schedule.Replace(items)
	detector := conflict.NewDetector(0, 0)
	tracker := publish.NewTracker(schedule, nil, publish.Config{Clock: clock})
	ctrl := NewController(schedule, detector, tracker, client, Config{Clock: clock})
	return ctrl, schedule
}

func scheduledAt(id string, offset time.Duration) models.ScheduledItem {
	return models.ScheduledItem{
		ID:            id,
		ScheduledTime: testNow.Add(offset),
		Status:        models.StatusScheduled,
	}
}

func TestStartDragRejectsLockedItems(t *testing.T) {
	ctrl, _ := newTestController([]models.ScheduledItem{
		scheduledAt("soon", 30*time.Minute),
		scheduledAt("later", 3*time.Hour),
	}, &mockRescheduler{})

	if err := ctrl.StartDrag("soon"); !errors.Is(err, ErrItemLocked) {
		t.Fatalf("expected ErrItemLocked for item 30m out, got %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("rejected drag must leave controller idle, got %s", ctrl.State())
	}

	if err := ctrl.StartDrag("later"); err != nil {
		t.Fatalf("item 3h out should be draggable: %v", err)
	}
	if ctrl.State() != StateDragging {
		t.Errorf("expected dragging, got %s", ctrl.State())
	}
}

func TestStartDragRejectsSecondDrag(t *testing.T) {
	ctrl, _ := newTestController([]models.ScheduledItem{
		scheduledAt("a", 3*time.Hour),
		scheduledAt("b", 4*time.Hour),
	}, &mockRescheduler{})

	if err := ctrl.StartDrag("a"); err != nil {
		t.Fatalf("first drag: %v", err)
	}
	if err := ctrl.StartDrag("b"); !errors.Is(err, ErrDragInProgress) {
		t.Fatalf("expected ErrDragInProgress, got %v", err)
	}
}

func TestHoverExcludesDraggedItem(t *testing.T) {
	// "a" and "b" share the 15:00 hour; dragging "a" within that hour
	// must not count "a" itself
	ctrl, _ := newTestController([]models.ScheduledItem{
		scheduledAt("a", 3*time.Hour),
		scheduledAt("b", 3*time.Hour+20*time.Minute),
	}, &mockRescheduler{})

	if err := ctrl.StartDrag("a"); err != nil {
		t.Fatalf("start drag: %v", err)
	}

	preview, err := ctrl.Hover(testNow.Add(3*time.Hour + 40*time.Minute))
	if err != nil {
		t.Fatalf("hover: %v", err)
	}
	if preview.Count != 2 {
		t.Errorf("expected count 2 (dragged item plus b), got %d", preview.Count)
	}
	if preview.Severity != conflict.SeverityWarning {
		t.Errorf("expected warning, got %s", preview.Severity)
	}
	if ctrl.State() != StateHovering {
		t.Errorf("expected hovering, got %s", ctrl.State())
	}

	// Hovering an empty hour is clean
	preview, err = ctrl.Hover(testNow.Add(6 * time.Hour))
	if err != nil {
		t.Fatalf("hover: %v", err)
	}
	if preview.Count != 1 || preview.Severity != conflict.SeverityNone {
		t.Errorf("empty hour should preview count=1 severity=none, got count=%d severity=%s", preview.Count, preview.Severity)
	}
}

func TestHoverRequiresActiveDrag(t *testing.T) {
	ctrl, _ := newTestController(nil, &mockRescheduler{})
	if _, err := ctrl.Hover(testNow.Add(2 * time.Hour)); !errors.Is(err, ErrNotDragging) {
		t.Fatalf("expected ErrNotDragging, got %v", err)
	}
}

func TestDropCommitsOptimistically(t *testing.T) {
	client := &mockRescheduler{}
	ctrl, schedule := newTestController([]models.ScheduledItem{
		scheduledAt("a", 3*time.Hour),
	}, client)

	target := testNow.Add(5 * time.Hour)
	if err := ctrl.StartDrag("a"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	result, err := ctrl.Drop(context.Background(), target)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if result.ItemID != "a" || !result.NewPublishTime.Equal(target) {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected one reschedule call, got %d", len(client.calls))
	}
	item, _ := schedule.Get("a")
	if !item.ScheduledTime.Equal(target) {
		t.Errorf("schedule should hold the new time, got %s", item.ScheduledTime)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("expected idle after commit, got %s", ctrl.State())
	}
}

func TestDropRequestsRefreshAndAppliesServerTime(t *testing.T) {
	// The publisher answers with an adjusted time; the store must hold the
	// server's time, not the client-side target
	target := testNow.Add(5 * time.Hour)
	adjusted := target.Add(10 * time.Minute)
	client := &mockRescheduler{resp: &publisherapi.RescheduleResponse{Success: true, NewPublishTime: adjusted}}

	clock := &fakeClock{now: testNow}
	schedule := store.NewScheduleStore()
	schedule.Replace([]models.ScheduledItem{scheduledAt("a", 3*time.Hour)})
	tracker := publish.NewTracker(schedule, nil, publish.Config{Clock: clock})

	var refreshes int
	ctrl := NewController(schedule, conflict.NewDetector(0, 0), tracker, client, Config{
		Clock:   clock,
		Refresh: func(context.Context) { refreshes++ },
	})

	if err := ctrl.StartDrag("a"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	if _, err := ctrl.Drop(context.Background(), target); err != nil {
		t.Fatalf("drop: %v", err)
	}

	item, _ := schedule.Get("a")
	if !item.ScheduledTime.Equal(adjusted) {
		t.Errorf("store should hold the publisher's adjusted time, got %s", item.ScheduledTime)
	}
	if refreshes != 1 {
		t.Errorf("committed drop should request one canonical refresh, got %d", refreshes)
	}
}

func TestDropFailureStillRequestsRefresh(t *testing.T) {
	clock := &fakeClock{now: testNow}
	schedule := store.NewScheduleStore()
	schedule.Replace([]models.ScheduledItem{scheduledAt("a", 3*time.Hour)})
	tracker := publish.NewTracker(schedule, nil, publish.Config{Clock: clock})

	var refreshes int
	client := &mockRescheduler{err: errors.New("publisher error (503): unavailable")}
	ctrl := NewController(schedule, conflict.NewDetector(0, 0), tracker, client, Config{
		Clock:   clock,
		Refresh: func(context.Context) { refreshes++ },
	})

	if err := ctrl.StartDrag("a"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	if _, err := ctrl.Drop(context.Background(), testNow.Add(5*time.Hour)); err == nil {
		t.Fatalf("expected drop to fail")
	}
	if refreshes != 1 {
		t.Errorf("failed drop should still request a canonical refresh, got %d", refreshes)
	}
}

func TestDropInvalidTargetCancelsWithoutAPICall(t *testing.T) {
	client := &mockRescheduler{}
	ctrl, schedule := newTestController([]models.ScheduledItem{
		scheduledAt("a", 3*time.Hour),
	}, client)

	cases := []struct {
		name   string
		target time.Time
	}{
		{"past", testNow.Add(-time.Hour)},
		{"now", testNow},
		{"inside lock window", testNow.Add(30 * time.Minute)},
	}
	for _, tc := range cases {
		if err := ctrl.StartDrag("a"); err != nil {
			t.Fatalf("%s: start drag: %v", tc.name, err)
		}
		if _, err := ctrl.Drop(context.Background(), tc.target); !errors.Is(err, ErrDropTargetInvalid) {
			t.Fatalf("%s: expected ErrDropTargetInvalid, got %v", tc.name, err)
		}
		if ctrl.State() != StateIdle {
			t.Errorf("%s: invalid drop should cancel the drag", tc.name)
		}
	}
	if len(client.calls) != 0 {
		t.Errorf("invalid drops must not reach the publisher, got %d calls", len(client.calls))
	}
	item, _ := schedule.Get("a")
	if !item.ScheduledTime.Equal(testNow.Add(3 * time.Hour)) {
		t.Errorf("schedule should be untouched, got %s", item.ScheduledTime)
	}
}

func TestDropFailureRollsBackAndRetainsError(t *testing.T) {
	client := &mockRescheduler{err: errors.New("publisher error (409): slot taken")}
	ctrl, schedule := newTestController([]models.ScheduledItem{
		scheduledAt("a", 3*time.Hour),
	}, client)

	original := testNow.Add(3 * time.Hour)
	if err := ctrl.StartDrag("a"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	if _, err := ctrl.Drop(context.Background(), testNow.Add(5*time.Hour)); err == nil {
		t.Fatalf("expected drop to fail")
	}

	item, _ := schedule.Get("a")
	if !item.ScheduledTime.Equal(original) {
		t.Errorf("failed commit must roll back, got %s", item.ScheduledTime)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("expected idle after rollback, got %s", ctrl.State())
	}
	if ctrl.LastError() == nil {
		t.Fatalf("commit error should be retained")
	}
	ctrl.ClearError()
	if ctrl.LastError() != nil {
		t.Errorf("ClearError should discard the retained error")
	}
}

func TestCancelAbandonsDrag(t *testing.T) {
	client := &mockRescheduler{}
	ctrl, schedule := newTestController([]models.ScheduledItem{
		scheduledAt("a", 3*time.Hour),
	}, client)

	if err := ctrl.StartDrag("a"); err != nil {
		t.Fatalf("start drag: %v", err)
	}
	if _, err := ctrl.Hover(testNow.Add(4 * time.Hour)); err != nil {
		t.Fatalf("hover: %v", err)
	}
	ctrl.Cancel()

	if ctrl.State() != StateIdle {
		t.Errorf("expected idle after cancel, got %s", ctrl.State())
	}
	if len(client.calls) != 0 {
		t.Errorf("cancel must not reach the publisher")
	}
	item, _ := schedule.Get("a")
	if !item.ScheduledTime.Equal(testNow.Add(3 * time.Hour)) {
		t.Errorf("cancel must not move the item")
	}
	if _, active := ctrl.DraggedItem(); active {
		t.Errorf("no item should be held after cancel")
	}
}
