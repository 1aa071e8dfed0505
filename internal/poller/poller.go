package poller

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	publisherapi "curator/pkg/api/publisher"
	"curator/pkg/logging"
	"curator/pkg/models"

	"curator/internal/conflict"
	"curator/internal/publish"
	"curator/internal/store"
)

// Default polling window
const (
	DefaultInterval   = 30 * time.Second
	DefaultLookBehind = 24 * time.Hour
	DefaultLookAhead  = 14 * 24 * time.Hour
)

// Source is the slice of the publisher API the poller reads from
type Source interface {
	GetCalendar(ctx context.Context, start, end time.Time) (*publisherapi.CalendarResponse, error)
	GetApprovalQueue(ctx context.Context) (*publisherapi.QueueResponse, error)
}

// EventSink is notified when a canonical refresh lands. The websocket hub
// implements this; a nil sink is allowed.
type EventSink interface {
	CalendarUpdated(items []models.ScheduledItem, buckets map[time.Time]conflict.Bucket)
}

// Poller owns the canonical refresh loop: it pulls the calendar and the
// approval queue from the publisher, annotates scheduled items with derived
// conflict and imminence flags, and replaces both store snapshots. Whatever
// the publisher says wins over any local optimistic state.
type Poller struct {
	client   Source
	schedule *store.ScheduleStore
	queue    *store.QueueStore
	detector *conflict.Detector
	tracker  *publish.Tracker
	events   EventSink
	clock    publish.Clock
	logger   logging.Logger

	interval   time.Duration
	lookBehind time.Duration
	lookAhead  time.Duration

	// coalesces concurrent forced refreshes into one upstream fetch
	group singleflight.Group
}

// Config configures a Poller. Zero values fall back to defaults.
type Config struct {
	Interval   time.Duration
	LookBehind time.Duration
	LookAhead  time.Duration
	Events     EventSink
	Clock      publish.Clock
	Logger     logging.Logger
}

// New creates a poller over the given stores
func New(client Source, schedule *store.ScheduleStore, queue *store.QueueStore, detector *conflict.Detector, tracker *publish.Tracker, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LookBehind <= 0 {
		cfg.LookBehind = DefaultLookBehind
	}
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = DefaultLookAhead
	}
	if cfg.Clock == nil {
		cfg.Clock = publish.SystemClock()
	}
	return &Poller{
		client:     client,
		schedule:   schedule,
		queue:      queue,
		detector:   detector,
		tracker:    tracker,
		events:     cfg.Events,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		interval:   cfg.Interval,
		lookBehind: cfg.LookBehind,
		lookAhead:  cfg.LookAhead,
	}
}

// Run polls on the configured interval until the context is cancelled
func (p *Poller) Run(ctx context.Context) {
	if p.logger != nil {
		p.logger.WithField("interval", p.interval.String()).Info("Starting calendar poller")
	}

	if err := p.RefreshNow(ctx); err != nil && p.logger != nil {
		p.logger.WithField("error", err.Error()).Warn("Initial refresh failed")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RefreshNow(ctx); err != nil && p.logger != nil {
				p.logger.WithField("error", err.Error()).Warn("Calendar refresh failed")
			}
		}
	}
}

// RefreshNow forces a canonical refresh. Concurrent callers share one
// upstream fetch; the previous snapshot stays visible if the fetch fails.
func (p *Poller) RefreshNow(ctx context.Context) error {
	_, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		return nil, p.refresh(ctx)
	})
	return err
}

func (p *Poller) refresh(ctx context.Context) error {
	now := p.clock.Now()
	start := now.Add(-p.lookBehind)
	end := now.Add(p.lookAhead)

	cal, err := p.client.GetCalendar(ctx, start, end)
	if err != nil {
		return fmt.Errorf("calendar fetch failed: %w", err)
	}
	queue, err := p.client.GetApprovalQueue(ctx)
	if err != nil {
		return fmt.Errorf("approval queue fetch failed: %w", err)
	}

	items := p.annotate(cal.Items, now)
	p.schedule.Replace(items)
	p.queue.Replace(queue.Items)
	p.tracker.Tick()

	if p.events != nil {
		p.events.CalendarUpdated(items, p.detector.ComputeConflicts(items))
	}

	if p.logger != nil {
		p.logger.WithFields(logging.Fields{
			"scheduled_items": len(items),
			"queue_items":     len(queue.Items),
		}).Debug("Canonical refresh applied")
	}
	return nil
}

// annotate recomputes the derived per-item fields. They are never taken
// from the wire; the publisher's values, if present, are overwritten.
func (p *Poller) annotate(items []models.ScheduledItem, now time.Time) []models.ScheduledItem {
	conflictIDs := p.detector.ConflictIDsFor(items)
	out := make([]models.ScheduledItem, len(items))
	for i, item := range items {
		item.ConflictIDs = conflictIDs[item.ID]
		item.IsImminent = p.tracker.IsImminent(item, now)
		out[i] = item
	}
	return out
}
