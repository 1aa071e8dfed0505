package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	publisherapi "curator/pkg/api/publisher"
	"curator/pkg/logging"
	"curator/pkg/models"

	"curator/internal/store"
)

// Default derivation thresholds
const (
	DefaultInterval          = 60 * time.Second
	DefaultImminentThreshold = 60 * time.Minute
	DefaultLockedThreshold   = 30 * time.Minute
)

var (
	// ErrNotRetryable is returned when a publish retry is requested for an
	// item that is not in the publish_failed state
	ErrNotRetryable = errors.New("publish retry only allowed from publish_failed")
	// ErrUnknownItem is returned for item ids absent from the schedule
	ErrUnknownItem = errors.New("unknown item")
)

// Clock abstracts wall-clock time so tests can drive virtual time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a clock backed by time.Now
func SystemClock() Clock { return systemClock{} }

// ItemState is the derived publish-readiness of one scheduled item
type ItemState struct {
	ID             string            `json:"id"`
	ScheduledTime  time.Time         `json:"scheduled_time"`
	MsUntilPublish int64             `json:"ms_until_publish"`
	Imminent       bool              `json:"imminent"`
	Locked         bool              `json:"locked"`
	Status         models.ItemStatus `json:"status"`
	PublishError   string            `json:"publish_error,omitempty"`
}

// Snapshot is a point-in-time derivation over the whole list, sorted
// ascending by time-to-publish
type Snapshot struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Items       []ItemState `json:"items"`
}

// RetryClient is the slice of the publisher API the tracker needs
type RetryClient interface {
	RetryPublish(ctx context.Context, itemID string, force bool) (*publisherapi.RetryPublishResponse, error)
}

// Tracker derives imminent/locked flags from scheduled times on a fixed
// interval. It is read-side only: it never mutates item state, and its
// output is recomputable at any instant from (items, now) alone.
type Tracker struct {
	schedule *store.ScheduleStore
	client   RetryClient
	clock    Clock
	logger   logging.Logger

	interval          time.Duration
	imminentThreshold time.Duration
	lockedThreshold   time.Duration

	mu     sync.RWMutex
	latest Snapshot
	onTick func(Snapshot)
}

// Config configures a Tracker. Zero values fall back to defaults.
type Config struct {
	Interval          time.Duration
	ImminentThreshold time.Duration
	LockedThreshold   time.Duration
	Clock             Clock
	Logger            logging.Logger
}

// NewTracker creates a publish-status tracker over the schedule store
func NewTracker(schedule *store.ScheduleStore, client RetryClient, cfg Config) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ImminentThreshold <= 0 {
		cfg.ImminentThreshold = DefaultImminentThreshold
	}
	if cfg.LockedThreshold <= 0 {
		cfg.LockedThreshold = DefaultLockedThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Tracker{
		schedule:          schedule,
		client:            client,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
		interval:          cfg.Interval,
		imminentThreshold: cfg.ImminentThreshold,
		lockedThreshold:   cfg.LockedThreshold,
	}
}

// SetOnTick registers a callback receiving each fresh snapshot
func (t *Tracker) SetOnTick(fn func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = fn
}

// Compute derives a snapshot from an item list and an instant. Pure: no
// tracker state is read or written beyond the configured thresholds.
func (t *Tracker) Compute(items []models.ScheduledItem, now time.Time) Snapshot {
	snap := Snapshot{GeneratedAt: now}
	for _, item := range items {
		until := item.ScheduledTime.Sub(now)
		if until <= 0 {
			continue
		}
		snap.Items = append(snap.Items, ItemState{
			ID:             item.ID,
			ScheduledTime:  item.ScheduledTime,
			MsUntilPublish: until.Milliseconds(),
			Imminent:       until <= t.imminentThreshold,
			Locked:         until <= t.lockedThreshold,
			Status:         item.Status,
			PublishError:   item.PublishError,
		})
	}
	sort.Slice(snap.Items, func(i, j int) bool {
		return snap.Items[i].MsUntilPublish < snap.Items[j].MsUntilPublish
	})
	return snap
}

// IsImminent reports whether an item publishes within the imminent threshold
func (t *Tracker) IsImminent(item models.ScheduledItem, now time.Time) bool {
	until := item.ScheduledTime.Sub(now)
	return until > 0 && until <= t.imminentThreshold
}

// IsLocked reports whether an item is inside the locked window, where
// editing and dragging are forbidden
func (t *Tracker) IsLocked(item models.ScheduledItem, now time.Time) bool {
	until := item.ScheduledTime.Sub(now)
	return until > 0 && until <= t.lockedThreshold
}

// Latest returns the most recent snapshot
func (t *Tracker) Latest() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}

// Tick recomputes the snapshot once and delivers it to the tick callback
func (t *Tracker) Tick() Snapshot {
	snap := t.Compute(t.schedule.Items(), t.clock.Now())

	t.mu.Lock()
	t.latest = snap
	fn := t.onTick
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return snap
}

// Run drives the tracker on its interval until the context is cancelled
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if t.logger != nil {
		t.logger.WithField("interval", t.interval.String()).Info("Starting publish-status tracker")
	}

	t.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// RetryPublish forwards a retry request for a failed publish. Only items in
// publish_failed may be retried, and a successful request does not flip the
// local status; the publisher reports the new state on the next refresh.
func (t *Tracker) RetryPublish(ctx context.Context, itemID string, force bool) (*publisherapi.RetryPublishResponse, error) {
	item, ok := t.schedule.Get(itemID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if item.Status != models.StatusPublishFailed {
		return nil, fmt.Errorf("%w: item %s is %s", ErrNotRetryable, itemID, item.Status)
	}

	resp, err := t.client.RetryPublish(ctx, itemID, force)
	if err != nil {
		return nil, fmt.Errorf("retry publish failed: %w", err)
	}

	if t.logger != nil {
		t.logger.WithFields(logging.Fields{
			"item_id": itemID,
			"success": resp.Success,
		}).Info("Publish retry requested")
	}
	return resp, nil
}
