package drag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	publisherapi "curator/pkg/api/publisher"
	"curator/pkg/logging"

	"curator/internal/conflict"
	"curator/internal/publish"
	"curator/internal/store"
)

// DefaultLockWindow is how close to publish time an item may still be
// dragged or dropped
const DefaultLockWindow = 60 * time.Minute

// State is the drag lifecycle phase
type State string

const (
	StateIdle       State = "idle"
	StateDragging   State = "dragging"
	StateHovering   State = "hovering"
	StateCommitting State = "committing"
)

var (
	// ErrItemLocked means the item publishes too soon to be moved
	ErrItemLocked = errors.New("item is inside its lock window")
	// ErrDropTargetInvalid means the drop time is in the past or inside the lock window
	ErrDropTargetInvalid = errors.New("drop target is invalid")
	// ErrNotDragging means the operation needs an active drag and there is none
	ErrNotDragging = errors.New("no drag in progress")
	// ErrDragInProgress means a drag or commit is already active
	ErrDragInProgress = errors.New("drag already in progress")
)

// Rescheduler is the slice of the publisher API the controller needs
type Rescheduler interface {
	Reschedule(ctx context.Context, itemID string, newPublishTime time.Time, force bool) (*publisherapi.RescheduleResponse, error)
}

// Result reports the outcome of a committed drop
type Result struct {
	ItemID          string            `json:"item_id"`
	NewPublishTime  time.Time         `json:"new_publish_time"`
	Conflicts       []string          `json:"conflicts,omitempty"`
	PreviewSeverity conflict.Severity `json:"preview_severity"`
}

// Controller runs the drag-to-reschedule lifecycle: idle, dragging,
// hovering, committing. One drag at a time; a failed commit rolls the
// schedule back and retains the error until cleared.
type Controller struct {
	schedule *store.ScheduleStore
	detector *conflict.Detector
	tracker  *publish.Tracker
	client   Rescheduler
	clock    publish.Clock
	refresh  func(ctx context.Context)
	logger   logging.Logger

	lockWindow time.Duration

	mu      sync.Mutex
	state   State
	itemID  string
	hoverAt time.Time
	preview conflict.Preview
	lastErr error
}

// Config configures a Controller. Zero values fall back to defaults.
type Config struct {
	LockWindow time.Duration
	Clock      publish.Clock
	Refresh    func(ctx context.Context)
	Logger     logging.Logger
}

// NewController creates a drag controller over the schedule store
func NewController(schedule *store.ScheduleStore, detector *conflict.Detector, tracker *publish.Tracker, client Rescheduler, cfg Config) *Controller {
	if cfg.LockWindow <= 0 {
		cfg.LockWindow = DefaultLockWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = publish.SystemClock()
	}
	return &Controller{
		schedule:   schedule,
		detector:   detector,
		tracker:    tracker,
		client:     client,
		clock:      cfg.Clock,
		refresh:    cfg.Refresh,
		logger:     cfg.Logger,
		lockWindow: cfg.LockWindow,
		state:      StateIdle,
	}
}

// State returns the current lifecycle phase
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DraggedItem returns the id of the item being dragged, if any
func (c *Controller) DraggedItem() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemID, c.state == StateDragging || c.state == StateHovering || c.state == StateCommitting
}

// LastError returns the retained error from the most recent failed commit
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError discards the retained commit error
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

func (c *Controller) withinLockWindow(t, now time.Time) bool {
	until := t.Sub(now)
	return until > 0 && until <= c.lockWindow
}

// StartDrag begins dragging an item. Items that are imminent or inside the
// lock window refuse the drag.
func (c *Controller) StartDrag(itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrDragInProgress
	}

	item, ok := c.schedule.Get(itemID)
	if !ok {
		return fmt.Errorf("unknown item %s", itemID)
	}

	now := c.clock.Now()
	if item.IsImminent || c.withinLockWindow(item.ScheduledTime, now) || c.tracker.IsImminent(item, now) {
		return fmt.Errorf("%w: %s publishes at %s", ErrItemLocked, itemID, item.ScheduledTime.Format(time.RFC3339))
	}

	c.state = StateDragging
	c.itemID = itemID
	c.hoverAt = time.Time{}
	c.preview = conflict.Preview{}
	return nil
}

// Hover previews the conflict a drop at target would create. The dragged
// item's current slot is excluded so moving within the same hour does not
// count against itself.
func (c *Controller) Hover(target time.Time) (conflict.Preview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDragging && c.state != StateHovering {
		return conflict.Preview{}, ErrNotDragging
	}

	preview := c.detector.PreviewConflict(c.schedule.Items(), target, c.itemID)
	c.state = StateHovering
	c.hoverAt = target
	c.preview = preview
	return preview, nil
}

// Cancel abandons the drag without touching the schedule
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting {
		return
	}
	c.reset()
}

func (c *Controller) requestRefresh(ctx context.Context) {
	if c.refresh != nil {
		c.refresh(ctx)
	}
}

// caller holds c.mu
func (c *Controller) reset() {
	c.state = StateIdle
	c.itemID = ""
	c.hoverAt = time.Time{}
	c.preview = conflict.Preview{}
}

// Drop commits the drag at target. An invalid target (past, or inside the
// lock window) cancels the drag without calling the publisher. A valid
// target applies the move locally first, then confirms with the publisher;
// a rejected confirmation rolls the move back and retains the error. Either
// way a canonical refresh is requested once the round-trip resolves.
func (c *Controller) Drop(ctx context.Context, target time.Time) (*Result, error) {
	c.mu.Lock()
	if c.state != StateDragging && c.state != StateHovering {
		c.mu.Unlock()
		return nil, ErrNotDragging
	}

	itemID := c.itemID
	now := c.clock.Now()
	if !target.After(now) || c.withinLockWindow(target, now) {
		c.reset()
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDropTargetInvalid, target.Format(time.RFC3339))
	}

	preview := c.detector.PreviewConflict(c.schedule.Items(), target, itemID)
	c.state = StateCommitting
	c.mu.Unlock()

	rollback, ok := c.schedule.ApplyReschedule(itemID, target)
	if !ok {
		c.mu.Lock()
		c.reset()
		c.mu.Unlock()
		return nil, fmt.Errorf("unknown item %s", itemID)
	}

	resp, err := c.client.Reschedule(ctx, itemID, target, false)
	if err != nil {
		rollback()
		c.mu.Lock()
		c.lastErr = err
		c.reset()
		c.mu.Unlock()
		c.requestRefresh(ctx)
		if c.logger != nil {
			c.logger.WithFields(logging.Fields{
				"item_id": itemID,
				"target":  target.Format(time.RFC3339),
				"error":   err.Error(),
			}).Warn("Reschedule rejected, rolled back")
		}
		return nil, fmt.Errorf("reschedule failed: %w", err)
	}

	// The publisher may adjust the requested time; its answer wins
	if !resp.NewPublishTime.IsZero() && !resp.NewPublishTime.Equal(target) {
		c.schedule.ApplyReschedule(itemID, resp.NewPublishTime)
	}

	c.mu.Lock()
	c.lastErr = nil
	c.reset()
	c.mu.Unlock()
	c.requestRefresh(ctx)

	if c.logger != nil {
		c.logger.WithFields(logging.Fields{
			"item_id": itemID,
			"target":  target.Format(time.RFC3339),
		}).Info("Item rescheduled")
	}

	return &Result{
		ItemID:          itemID,
		NewPublishTime:  resp.NewPublishTime,
		Conflicts:       resp.Conflicts,
		PreviewSeverity: preview.Severity,
	}, nil
}
